package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"foundry/shared/interfaces"
	"foundry/shared/models"
	"foundry/shared/utils"

	"go.uber.org/zap"
)

const (
	usageDocType  = "ai-usage"
	usageDayFmt   = "2006-01-02"
	usageWindow   = 30
	defaultSource = "manual"
)

var modelKeyCleaner = regexp.MustCompile(`[^a-z0-9.-]+`)

// UsageSummary - счетчики бакета и стоимость в долларах (nil, если цена неизвестна).
type UsageSummary struct {
	PromptTokens     int      `json:"promptTokens"`
	CompletionTokens int      `json:"completionTokens"`
	TotalTokens      int      `json:"totalTokens"`
	Requests         int      `json:"requests"`
	CostUSD          *float64 `json:"costUsd"`
}

// UsageGroup - сводка по моделям одной категории (чат или изображения).
type UsageGroup struct {
	Models map[string]UsageSummary `json:"models"`
	Totals UsageSummary            `json:"totals"`
}

type UsagePeriod struct {
	Models UsageGroup `json:"models"`
	Images UsageGroup `json:"images"`
}

type PricingView struct {
	Source    string                         `json:"source"`
	UpdatedAt string                         `json:"updatedAt,omitempty"`
	Models    map[string]models.PricingModel `json:"models"`
}

// UsageReport - ответ GET /ai/usage.
type UsageReport struct {
	UpdatedAt  string      `json:"updatedAt"`
	Pricing    PricingView `json:"pricing"`
	AllTime    UsagePeriod `json:"allTime"`
	Last30Days UsagePeriod `json:"last30Days"`
}

// UsageService ведет учет токенов OpenAI в документе stats-ai.
type UsageService struct {
	store  interfaces.DocumentStore
	config *ConfigService
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

func NewUsageService(store interfaces.DocumentStore, config *ConfigService, logger *zap.Logger) *UsageService {
	return &UsageService{
		store:  store,
		config: config,
		now:    time.Now,
		logger: logger.Named("UsageService"),
	}
}

// RecordChat добавляет usage запроса к чату. Пустая модель игнорируется.
func (s *UsageService) RecordChat(ctx context.Context, model string, usage models.TokenUsage) error {
	return s.record(ctx, model, usage, false)
}

// RecordImage добавляет usage генерации изображения.
func (s *UsageService) RecordImage(ctx context.Context, model string, usage models.TokenUsage) error {
	return s.record(ctx, model, usage, true)
}

func (s *UsageService) record(ctx context.Context, model string, usage models.TokenUsage, image bool) error {
	key := strings.TrimSpace(model)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	day := now.Format(usageDayFmt)
	buckets, ok := doc.Days[day]
	if !ok {
		buckets = models.NewUsageBuckets()
	}
	addUsage(&buckets, key, usage, image)
	doc.Days[day] = buckets
	addUsage(&doc.Totals, key, usage, image)
	doc.UpdatedAt = isoTimestamp(now)

	if err := s.store.Upsert(ctx, models.ContainerConfig, models.UsageStatsID, doc); err != nil {
		return fmt.Errorf("save usage: %w", err)
	}
	return nil
}

func addUsage(b *models.UsageBuckets, key string, usage models.TokenUsage, image bool) {
	if b.Models == nil {
		b.Models = map[string]*models.UsageBucket{}
	}
	if b.Images == nil {
		b.Images = map[string]*models.UsageBucket{}
	}
	target := b.Models
	if image {
		target = b.Images
	}
	bucket, ok := target[key]
	if !ok {
		bucket = &models.UsageBucket{}
		target[key] = bucket
	}
	bucket.Add(usage)
}

func (s *UsageService) load(ctx context.Context) (*models.UsageDoc, error) {
	fresh := &models.UsageDoc{
		ID:        models.UsageStatsID,
		Type:      usageDocType,
		UpdatedAt: isoTimestamp(s.now()),
		Days:      map[string]models.UsageBuckets{},
		Totals:    models.NewUsageBuckets(),
	}
	raw, err := s.store.Get(ctx, models.ContainerConfig, models.UsageStatsID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fresh, nil
		}
		return nil, fmt.Errorf("load usage: %w", err)
	}
	doc, err := utils.UnmarshalMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	var out models.UsageDoc
	if err := utils.FromMap(doc, &out); err != nil {
		s.logger.Warn("Usage document is malformed, starting over", zap.Error(err))
		return fresh, nil
	}
	if out.Days == nil {
		out.Days = map[string]models.UsageBuckets{}
	}
	out.ID = models.UsageStatsID
	out.Type = usageDocType
	return &out, nil
}

// Summary считает сводку за все время и за последние 30 дней по UTC.
func (s *UsageService) Summary(ctx context.Context) (*UsageReport, error) {
	s.mu.Lock()
	doc, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	pricing := s.config.GetSiteConfig(ctx).Pricing()
	prices := pricing.Models
	if prices == nil {
		prices = map[string]models.PricingModel{}
	}
	source := pricing.Source
	if source == "" {
		source = defaultSource
	}

	now := s.now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(usageWindow - 1))
	recent := models.NewUsageBuckets()
	for day, buckets := range doc.Days {
		date, err := time.Parse(usageDayFmt, day)
		if err != nil || date.Before(cutoff) {
			continue
		}
		mergeBuckets(recent.Models, buckets.Models)
		mergeBuckets(recent.Images, buckets.Images)
	}

	return &UsageReport{
		UpdatedAt: doc.UpdatedAt,
		Pricing:   PricingView{Source: source, UpdatedAt: pricing.UpdatedAt, Models: prices},
		AllTime: UsagePeriod{
			Models: summarize(doc.Totals.Models, prices),
			Images: summarize(doc.Totals.Images, prices),
		},
		Last30Days: UsagePeriod{
			Models: summarize(recent.Models, prices),
			Images: summarize(recent.Images, prices),
		},
	}, nil
}

func mergeBuckets(dst, src map[string]*models.UsageBucket) {
	for model, b := range src {
		if b == nil {
			continue
		}
		target, ok := dst[model]
		if !ok {
			target = &models.UsageBucket{}
			dst[model] = target
		}
		target.Merge(*b)
	}
}

func summarize(buckets map[string]*models.UsageBucket, prices map[string]models.PricingModel) UsageGroup {
	group := UsageGroup{Models: map[string]UsageSummary{}}
	total := 0.0
	known := true
	for model, b := range buckets {
		if b == nil {
			continue
		}
		cost := CostForUsage(*b, FindPricing(model, prices))
		if cost == nil {
			known = false
		} else {
			total += *cost
		}
		group.Models[model] = UsageSummary{
			PromptTokens:     b.PromptTokens,
			CompletionTokens: b.CompletionTokens,
			TotalTokens:      b.TotalTokens,
			Requests:         b.Requests,
			CostUSD:          cost,
		}
		group.Totals.PromptTokens += b.PromptTokens
		group.Totals.CompletionTokens += b.CompletionTokens
		group.Totals.TotalTokens += b.TotalTokens
		group.Totals.Requests += b.Requests
	}
	if known {
		rounded := round6(total)
		group.Totals.CostUSD = &rounded
	}
	return group
}

// CostForUsage - стоимость бакета по цене за миллион токенов, 6 знаков после запятой.
func CostForUsage(b models.UsageBucket, price *models.PricingModel) *float64 {
	if price == nil {
		return nil
	}
	input := float64(b.PromptTokens) / 1_000_000 * price.InputUSDPerMillion
	output := float64(b.CompletionTokens) / 1_000_000 * price.OutputUSDPerMillion
	cost := round6(input + output)
	return &cost
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// NormalizeModelKey приводит имя модели к ключу прайс-листа.
func NormalizeModelKey(name string) string {
	key := modelKeyCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(key, "-")
}

// FindPricing ищет цену: точное имя, нормализованное имя, нормализованное имя без даты (-20...).
func FindPricing(model string, prices map[string]models.PricingModel) *models.PricingModel {
	if p, ok := prices[model]; ok {
		return &p
	}
	normalized := NormalizeModelKey(model)
	if p, ok := prices[normalized]; ok {
		return &p
	}
	if idx := strings.Index(normalized, "-20"); idx > 0 {
		if p, ok := prices[normalized[:idx]]; ok {
			return &p
		}
	}
	return nil
}
