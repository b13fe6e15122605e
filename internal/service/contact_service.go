package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"foundry/shared/interfaces"
	"foundry/shared/models"
	"foundry/shared/utils"
	"foundry/shared/validation"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	DefaultContactLimit = 50
	MaxContactLimit     = 200

	defaultContactSubject = "Contact form: {{subject}}"
)

// ContactRequest - тело POST /contact.
type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject,omitempty" validate:"omitempty,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
	Company string `json:"company,omitempty" validate:"omitempty,max=200"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=100"`
	PageURL string `json:"pageUrl,omitempty" validate:"omitempty,url"`
}

var contactEmailTemplate = template.Must(template.New("contact").Parse(`
    <div style="font-family: Arial, sans-serif; color: #0f172a; background: #f8fafc; padding: 24px;">
      <h2 style="margin: 0 0 12px; color: #0f172a;">New contact request</h2>
      <p style="margin: 4px 0;"><strong>Name:</strong> {{.Name}}</p>
      <p style="margin: 4px 0;"><strong>Email:</strong> {{.Email}}</p>
      {{if .Company}}<p style="margin: 4px 0;"><strong>Company:</strong> {{.Company}}</p>{{end}}
      {{if .Phone}}<p style="margin: 4px 0;"><strong>Phone:</strong> {{.Phone}}</p>{{end}}
      {{if .Subject}}<p style="margin: 4px 0;"><strong>Subject:</strong> {{.Subject}}</p>{{end}}
      {{if .PageURL}}<p style="margin: 4px 0;"><strong>Page:</strong> {{.PageURL}}</p>{{end}}
      <div style="margin-top: 16px; padding: 12px; background: #ffffff; border-radius: 12px; border: 1px solid #e2e8f0;">
        <div style="font-size: 12px; text-transform: uppercase; letter-spacing: .08em; color: #64748b;">Message</div>
        <p style="margin-top: 8px; color: #1f2937; white-space: pre-line;">{{.Message}}</p>
      </div>
    </div>
`))

// ContactService принимает обращения с контактной формы.
type ContactService struct {
	store     interfaces.DocumentStore
	config    *ConfigService
	sender    interfaces.EmailSender
	envSender string
	now       func() time.Time
	logger    *zap.Logger
}

// NewContactService создает сервис. sender может быть nil, тогда отправка невозможна.
func NewContactService(store interfaces.DocumentStore, config *ConfigService, sender interfaces.EmailSender, envSender string, logger *zap.Logger) *ContactService {
	return &ContactService{
		store:     store,
		config:    config,
		sender:    sender,
		envSender: envSender,
		now:       time.Now,
		logger:    logger.Named("ContactService"),
	}
}

// NewContactID строит id вида contact-<unixms>-<6 символов>.
func NewContactID(now time.Time) string {
	random := strings.ToLower(ulid.Make().String())
	return fmt.Sprintf("contact-%d-%s", now.UnixMilli(), random[len(random)-6:])
}

// ClampLimit разбирает limit из запроса: пусто или мусор - 50, иначе в пределах 1..200.
func ClampLimit(raw string) int {
	limit := DefaultContactLimit
	if raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxContactLimit {
		return MaxContactLimit
	}
	return limit
}

// Submit сохраняет обращение и отправляет его на адрес из настроек.
func (s *ContactService) Submit(ctx context.Context, req ContactRequest) (string, error) {
	if err := validation.Struct("contact", req); err != nil {
		return "", err
	}

	cfg := s.config.GetSiteConfig(ctx)
	settings := cfg.ContactSettingsOrEmpty()
	if settings.Enabled == nil || !*settings.Enabled {
		return "", models.NewPublicError(models.ErrBadRequest, "Contact form is disabled.")
	}
	recipient := strings.TrimSpace(settings.RecipientEmail)
	if recipient == "" {
		return "", models.NewPublicError(models.ErrBadRequest, "Contact recipient email is not configured.")
	}
	from := cfg.Email().FromEmail
	if from == "" {
		from = s.envSender
	}
	if from == "" {
		return "", models.NewPublicError(models.ErrInternalServer, "Missing fromEmail (set Admin > Email settings or EMAIL_SENDER).")
	}
	if s.sender == nil {
		return "", models.NewPublicError(models.ErrInternalServer, "Missing RESEND_API_KEY")
	}

	now := s.now()
	submission := models.ContactSubmission{
		ID:        NewContactID(now),
		Name:      req.Name,
		Email:     req.Email,
		Subject:   req.Subject,
		Message:   req.Message,
		Company:   req.Company,
		Phone:     req.Phone,
		PageURL:   req.PageURL,
		CreatedAt: isoTimestamp(now),
		Status:    models.ContactStatusNew,
	}

	subjectTemplate := settings.SubjectTemplate
	if subjectTemplate == "" {
		subjectTemplate = defaultContactSubject
	}
	subjectValue := submission.Subject
	if subjectValue == "" {
		subjectValue = "New message"
	}
	subject := HydrateTemplate(subjectTemplate, map[string]string{
		"name":    submission.Name,
		"email":   submission.Email,
		"subject": subjectValue,
	})

	var body bytes.Buffer
	if err := contactEmailTemplate.Execute(&body, submission); err != nil {
		return "", fmt.Errorf("render contact email: %w", err)
	}

	if err := s.store.Upsert(ctx, models.ContainerContactSubmissions, submission.ID, submission); err != nil {
		return "", fmt.Errorf("save contact submission: %w", err)
	}

	_, sendErr := s.sender.Send(ctx, interfaces.Email{
		From:    from,
		To:      []string{recipient},
		Subject: subject,
		HTML:    body.String(),
		ReplyTo: submission.Email,
		Headers: map[string]string{"X-Foundry-Contact": submission.ID},
	})
	submission.Status = models.ContactStatusSent
	if sendErr != nil {
		submission.Status = models.ContactStatusFailed
	}
	if err := s.store.Upsert(ctx, models.ContainerContactSubmissions, submission.ID, submission); err != nil {
		s.logger.Error("Failed to update contact submission status", zap.String("id", submission.ID), zap.Error(err))
	}
	if sendErr != nil {
		s.logger.Error("Failed to send contact email", zap.String("id", submission.ID), zap.Error(sendErr))
		return "", models.NewPublicError(models.ErrUpstream, "Failed to send contact email.")
	}

	s.logger.Info("Contact submission sent", zap.String("id", submission.ID))
	return submission.ID, nil
}

// List возвращает последние обращения, новые первыми.
func (s *ContactService) List(ctx context.Context, limit int) ([]map[string]any, error) {
	docs, err := s.store.List(ctx, models.ContainerContactSubmissions, interfaces.DocumentQuery{
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list contact submissions: %w", err)
	}
	out := make([]map[string]any, 0, len(docs))
	for _, raw := range docs {
		doc, err := utils.UnmarshalMap(raw)
		if err != nil {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}
