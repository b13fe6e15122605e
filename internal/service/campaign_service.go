package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"foundry/shared/interfaces"
	"foundry/shared/models"
	"foundry/shared/utils"
	"foundry/shared/validation"

	"github.com/oklog/ulid/v2"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// syncConcurrency ограничивает параллельные запросы к MailerLite внутри пачки.
const syncConcurrency = 8

// DefaultCampaignTemplate - шаблон письма, если ни запрос, ни настройки его не задают.
const DefaultCampaignTemplate = `
  <div style="font-family: Arial, sans-serif; color: #0f172a; background: #f8fafc; padding: 24px;">
    <h2 style="margin: 0 0 12px; color: #0f172a;">New update: {{newsTitle}}</h2>
    {{newsSection}}
    <p style="font-size: 12px; color: #475569; margin-top: 24px;">
      <a href="{{manageUrl}}" style="color: #0f172a; font-weight: 600;">Manage preferences</a>&nbsp;&middot;&nbsp;
      <a href="{{unsubscribeUrl}}" style="color: #ef4444; font-weight: 600;">Unsubscribe</a>
    </p>
  </div>
`

var newsSectionTemplate = template.Must(template.New("news-section").Parse(`
    <div style="background:#fff;border:1px solid #e2e8f0;border-radius:16px;padding:16px;margin:16px 0;">
      {{- if .Meta}}
      <div style="font-size: 12px; color:#64748b; text-transform: uppercase; letter-spacing: .08em;">{{range $i, $m := .Meta}}{{if $i}} &middot; {{end}}<span style="display:inline-block;margin-right:8px;">{{$m}}</span>{{end}}</div>
      {{- end}}
      {{- if .PlatformNames}}
      <div style="margin: 6px 0 0; color:#475569; font-size: 13px;">{{.PlatformLabel}}: {{.PlatformNames}}</div>
      {{- end}}
      {{- if and .ImageURL .NewsURL}}
      <a href="{{.NewsURL}}"><img src="{{.ImageURL}}" alt="{{.ImageAlt}}" style="width:100%;max-width:640px;border-radius:12px;box-shadow:0 6px 20px rgba(0,0,0,0.12);margin: 12px 0;" /></a>
      {{- end}}
      {{- range .Summary}}
      <p style="margin: 10px 0; color:#1f2937;">{{range $i, $line := .}}{{if $i}}<br />{{end}}{{$line}}{{end}}</p>
      {{- end}}
      {{- if .Content}}
      <div style="margin: 10px 0; color:#1f2937;">{{.Content}}</div>
      {{- end}}
      {{- if .Links}}
      <div style="margin-top: 14px;">{{range .Links}}<a href="{{.URL}}" style="display:inline-block;padding:10px 14px;margin:6px 6px 0 0;background:#0f172a;color:#e2e8f0;text-decoration:none;border-radius:10px;font-size:13px;font-weight:600;">{{.Label}}</a>{{end}}</div>
      {{- end}}
      {{- if .NewsURL}}
      <p style="margin: 16px 0 0;"><a href="{{.NewsURL}}" style="color: #0f172a; font-weight: 700;">Read the full update</a></p>
      {{- end}}
    </div>
`))

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// CampaignEnv - значения из окружения, используемые, когда их нет в настройках сайта.
type CampaignEnv struct {
	FromEmail        string
	MailerLiteAPIKey string
	SiteURL          string
}

// EmailDashboard - ответ GET /email/stats.
type EmailDashboard struct {
	Active         int    `json:"active"`
	Unsubscribed   int    `json:"unsubscribed"`
	Total          int    `json:"total"`
	TotalSent      int    `json:"totalSent"`
	TotalFailed    int    `json:"totalFailed"`
	TotalCampaigns int    `json:"totalCampaigns"`
	LastSentAt     string `json:"lastSentAt,omitempty"`
}

// CampaignService отправляет рассылки подписчикам.
type CampaignService struct {
	store   interfaces.DocumentStore
	config  *ConfigService
	subs    *SubscriptionService
	sender  interfaces.EmailSender
	sync    interfaces.SubscriberSync
	env     CampaignEnv
	statsMu sync.Mutex
	now     func() time.Time
	logger  *zap.Logger
}

// NewCampaignService создает сервис. sender и sync могут быть nil.
func NewCampaignService(
	store interfaces.DocumentStore,
	config *ConfigService,
	subs *SubscriptionService,
	sender interfaces.EmailSender,
	subscriberSync interfaces.SubscriberSync,
	env CampaignEnv,
	logger *zap.Logger,
) *CampaignService {
	env.SiteURL = strings.TrimSuffix(env.SiteURL, "/")
	return &CampaignService{
		store:  store,
		config: config,
		subs:   subs,
		sender: sender,
		sync:   subscriberSync,
		env:    env,
		now:    time.Now,
		logger: logger.Named("CampaignService"),
	}
}

// HydrateTemplate заменяет все вхождения {{key}} значениями.
func HydrateTemplate(tmpl string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Chunk делит список на части не длиннее size.
func Chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// BatchSize возвращает размер пачки: из настроек, не больше 490.
func BatchSize(settings models.EmailSettings) int {
	size := models.MaxEmailBatchSize
	if settings.BatchSize != nil && *settings.BatchSize > 0 {
		size = *settings.BatchSize
	}
	if size > models.MaxEmailBatchSize {
		size = models.MaxEmailBatchSize
	}
	return size
}

// MatchSubscribers отбирает получателей рассылки.
func MatchSubscribers(subs []models.Subscriber, sendToAll bool, platformIDs []string) []models.Subscriber {
	wanted := make(map[string]struct{}, len(platformIDs))
	for _, id := range platformIDs {
		wanted[id] = struct{}{}
	}
	out := make([]models.Subscriber, 0, len(subs))
	for _, s := range subs {
		if s.Status == models.SubscriberUnsubscribed {
			continue
		}
		if sendToAll || (s.SubscribeAll != nil && *s.SubscribeAll) {
			out = append(out, s)
			continue
		}
		for _, id := range s.PlatformIDs {
			if _, ok := wanted[id]; ok {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Send выполняет рассылку. Ошибка учитывается в статистике (totalFailed, lastError).
func (s *CampaignService) Send(ctx context.Context, req models.CampaignRequest) (*models.CampaignResult, error) {
	result, err := s.send(ctx, req)
	if err != nil {
		s.logger.Error("Campaign failed", zap.String("newsId", req.NewsID), zap.Error(err))
		now := isoTimestamp(s.now())
		if statsErr := s.updateStats(ctx, func(st *models.EmailStats) {
			st.TotalFailed++
			st.LastError = err.Error()
			st.LastSentAt = now
		}); statsErr != nil {
			s.logger.Warn("Failed to update email stats", zap.Error(statsErr))
		}
		return nil, err
	}
	return result, nil
}

func (s *CampaignService) send(ctx context.Context, req models.CampaignRequest) (*models.CampaignResult, error) {
	cfg := s.config.GetSiteConfig(ctx)
	settings := cfg.Email()
	apiKey := ResolveMailerLiteKey(settings, s.env.MailerLiteAPIKey)

	fromEmail := settings.FromEmail
	if fromEmail == "" {
		fromEmail = s.env.FromEmail
	}
	if fromEmail == "" {
		return nil, errors.New("Missing fromEmail (set Admin > Email settings or EMAIL_SENDER env var)")
	}
	if s.sender == nil {
		return nil, errors.New("Missing RESEND_API_KEY")
	}
	from := fromEmail
	if settings.FromName != "" {
		from = fmt.Sprintf("%s <%s>", settings.FromName, fromEmail)
	}
	batchSize := BatchSize(settings)

	news := s.loadNews(ctx, req.NewsID)
	platforms := s.loadPlatforms(ctx, news)

	sendToAll := len(req.PlatformIDs) == 0
	if req.SendToAll != nil {
		sendToAll = *req.SendToAll
	}
	active, err := s.subs.Active(ctx)
	if err != nil {
		return nil, err
	}
	recipients := MatchSubscribers(active, sendToAll, req.PlatformIDs)
	if len(recipients) == 0 {
		return &models.CampaignResult{OK: true, Message: "No subscribers matched filter", Campaigns: []string{}, Total: 0}, nil
	}

	base := s.env.SiteURL
	manageURL := settings.ManageURL
	if manageURL == "" {
		manageURL = base + "/subscribe"
	}
	newsURL := firstNonEmpty(buildNewsURL(base, news), manageURL, base, "#")
	unsubscribeURL := firstNonEmpty(manageURL, base, "#")

	subject := firstNonEmpty(req.Subject, settings.TemplateSubject)
	if subject == "" {
		if news != nil {
			subject = "Foundry update: " + news.Title
		} else {
			subject = "New update from Foundry"
		}
	}
	templateHTML := firstNonEmpty(req.HTML, settings.TemplateHTML, DefaultCampaignTemplate)

	section, err := renderNewsSection(news, platforms, newsURL)
	if err != nil {
		return nil, err
	}
	values := map[string]string{
		"newsTitle":      "New update",
		"newsUrl":        newsURL,
		"manageUrl":      manageURL,
		"unsubscribeUrl": unsubscribeURL,
		"platformNames":  platformNames(platforms),
		"newsSummary":    "",
		"newsContent":    "",
		"imageUrl":       "",
		"newsSection":    section,
	}
	if news != nil {
		values["newsTitle"] = news.Title
		values["newsSummary"] = news.Summary
		values["newsContent"] = news.Content
		values["imageUrl"] = news.ImageURL
	}
	html := HydrateTemplate(templateHTML, values)

	byEmail := make(map[string]models.Subscriber, len(recipients))
	emails := make([]string, 0, len(recipients))
	for _, r := range recipients {
		byEmail[r.Email] = r
		emails = append(emails, r.Email)
	}

	campaigns := []string{}
	totalSent := 0
	for i, batch := range Chunk(emails, batchSize) {
		s.syncBatch(ctx, apiKey, settings, batch, byEmail)

		id, err := s.sender.Send(ctx, interfaces.Email{
			From:    from,
			To:      []string{fromEmail},
			Bcc:     batch,
			Subject: subject,
			HTML:    html,
			Headers: map[string]string{"X-Foundry-Send": fmt.Sprintf("batch-%d", i+1)},
		})
		if err != nil {
			return nil, fmt.Errorf("send batch %d: %w", i+1, err)
		}
		if id == "" {
			id = "send-" + strings.ToLower(ulid.Make().String())
		}
		campaigns = append(campaigns, id)
		totalSent += len(batch)
	}

	message := fmt.Sprintf("Queued %d campaign(s) across %d subscribers (batch size %d).", len(campaigns), len(recipients), batchSize)
	s.logger.Info(message, zap.String("newsId", req.NewsID), zap.String("reason", req.Reason))

	now := isoTimestamp(s.now())
	if err := s.updateStats(ctx, func(st *models.EmailStats) {
		st.TotalSent += totalSent
		st.TotalCampaigns++
		st.LastSentAt = now
	}); err != nil {
		s.logger.Warn("Failed to update email stats", zap.Error(err))
	}

	return &models.CampaignResult{OK: true, Campaigns: campaigns, Total: len(recipients), Message: message}, nil
}

// syncBatch параллельно добавляет адреса пачки в MailerLite. Ошибки только
// логируются и не прерывают остальные запросы.
func (s *CampaignService) syncBatch(ctx context.Context, apiKey string, settings models.EmailSettings, batch []string, byEmail map[string]models.Subscriber) {
	if s.sync == nil || apiKey == "" {
		return
	}
	var g errgroup.Group
	g.SetLimit(syncConcurrency)
	for _, email := range batch {
		g.Go(func() error {
			groups := subscriberGroups(settings, byEmail[email])
			if _, err := s.sync.UpsertSubscriber(ctx, apiKey, email, groups); err != nil {
				s.logger.Warn("Failed to upsert subscriber", zap.String("email", email), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *CampaignService) loadNews(ctx context.Context, id string) *models.NewsPost {
	if id == "" {
		return nil
	}
	raw, err := s.store.Get(ctx, models.ContainerNews, id)
	if err != nil {
		s.logger.Warn("Failed to load news", zap.String("newsId", id), zap.Error(err))
		return nil
	}
	doc, err := utils.UnmarshalMap(raw)
	if err != nil {
		return nil
	}
	var news models.NewsPost
	if err := validation.Decode("news", doc, &news); err != nil {
		s.logger.Warn("News fails validation, sending without it", zap.String("newsId", id), zap.Error(err))
		return nil
	}
	return &news
}

func (s *CampaignService) loadPlatforms(ctx context.Context, news *models.NewsPost) []models.Platform {
	if news == nil {
		return nil
	}
	platforms := []models.Platform{}
	for _, id := range news.PlatformIDs {
		raw, err := s.store.Get(ctx, models.ContainerPlatforms, id)
		if err != nil {
			continue
		}
		doc, err := utils.UnmarshalMap(raw)
		if err != nil {
			continue
		}
		var p models.Platform
		if err := validation.Decode("platform", doc, &p); err == nil {
			platforms = append(platforms, p)
		}
	}
	return platforms
}

// Stats возвращает счетчики подписчиков и накопленную статистику рассылок.
func (s *CampaignService) Stats(ctx context.Context) (*EmailDashboard, error) {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := &EmailDashboard{Total: len(subs)}
	for _, sub := range subs {
		if sub.Status == models.SubscriberUnsubscribed {
			out.Unsubscribed++
		} else {
			out.Active++
		}
	}
	stats, err := s.loadStats(ctx)
	if err != nil {
		return nil, err
	}
	out.TotalSent = stats.TotalSent
	out.TotalFailed = stats.TotalFailed
	out.TotalCampaigns = stats.TotalCampaigns
	out.LastSentAt = stats.LastSentAt
	return out, nil
}

func (s *CampaignService) loadStats(ctx context.Context) (*models.EmailStats, error) {
	stats := &models.EmailStats{ID: models.EmailStatsID}
	raw, err := s.store.Get(ctx, models.ContainerConfig, models.EmailStatsID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return stats, nil
		}
		return nil, fmt.Errorf("load email stats: %w", err)
	}
	doc, err := utils.UnmarshalMap(raw)
	if err != nil {
		return nil, err
	}
	if err := utils.FromMap(doc, stats); err != nil {
		s.logger.Warn("Email stats document is malformed, starting over", zap.Error(err))
		return &models.EmailStats{ID: models.EmailStatsID}, nil
	}
	stats.ID = models.EmailStatsID
	return stats, nil
}

func (s *CampaignService) updateStats(ctx context.Context, apply func(*models.EmailStats)) error {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	stats, err := s.loadStats(ctx)
	if err != nil {
		return err
	}
	apply(stats)
	return s.store.Upsert(ctx, models.ContainerConfig, models.EmailStatsID, stats)
}

type newsLink struct {
	Label string
	URL   string
}

type newsSectionData struct {
	Meta          []string
	PlatformLabel string
	PlatformNames string
	ImageURL      string
	ImageAlt      string
	NewsURL       string
	Summary       [][]string
	Content       template.HTML
	Links         []newsLink
}

// renderNewsSection рендерит блок новости. Markdown контента превращается в HTML.
func renderNewsSection(news *models.NewsPost, platforms []models.Platform, newsURL string) (string, error) {
	if news == nil {
		return "", nil
	}
	data := newsSectionData{
		PlatformNames: platformNames(platforms),
		ImageURL:      news.ImageURL,
		ImageAlt:      firstNonEmpty(news.ImageAlt, news.Title),
		Summary:       paragraphs(news.Summary),
	}
	if newsURL != "#" {
		data.NewsURL = newsURL
	}
	data.PlatformLabel = "Related platforms"
	if len(platforms) == 1 {
		data.PlatformLabel = "Related platform"
	}
	for _, m := range []string{news.Type, news.Status, news.PublishDate} {
		if m != "" {
			data.Meta = append(data.Meta, m)
		}
	}
	if strings.TrimSpace(news.Content) != "" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(news.Content), &buf); err != nil {
			return "", fmt.Errorf("render news markdown: %w", err)
		}
		data.Content = template.HTML(buf.String())
	}
	labels := make([]string, 0, len(news.Links))
	for label, url := range news.Links {
		if url != "" {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	for _, label := range labels {
		data.Links = append(data.Links, newsLink{Label: label, URL: news.Links[label]})
	}

	var out bytes.Buffer
	if err := newsSectionTemplate.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render news section: %w", err)
	}
	return out.String(), nil
}

func paragraphs(text string) [][]string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	var out [][]string
	for _, p := range paragraphBreak.Split(trimmed, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.Split(p, "\n"))
		}
	}
	return out
}

func platformNames(platforms []models.Platform) string {
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, firstNonEmpty(p.Name, p.ID))
	}
	return strings.Join(names, ", ")
}

func buildNewsURL(base string, news *models.NewsPost) string {
	if base == "" || news == nil {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/news/" + news.ID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
