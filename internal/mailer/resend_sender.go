package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"foundry/shared/interfaces"
	"foundry/shared/models"

	"github.com/resendlabs/resend-go"
	"go.uber.org/zap"
)

type resendSender struct {
	client *resend.Client
	logger *zap.Logger
}

// NewResendSender создает отправителя писем через Resend. baseURL нужен для
// тестов и может быть пустым.
func NewResendSender(apiKey, baseURL string, logger *zap.Logger) (interfaces.EmailSender, error) {
	client := resend.NewClient(apiKey)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url %q: %w", baseURL, err)
		}
		client.BaseURL = u
	}
	return &resendSender{client: client, logger: logger.Named("ResendSender")}, nil
}

func (s *resendSender) Send(ctx context.Context, email interfaces.Email) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(email.To) == 0 && len(email.Bcc) == 0 {
		return "", errors.New("email has no recipients")
	}
	params := &resend.SendEmailRequest{
		From:    email.From,
		To:      email.To,
		Bcc:     email.Bcc,
		Subject: email.Subject,
		Html:    email.HTML,
		ReplyTo: email.ReplyTo,
		Headers: email.Headers,
	}
	resp, err := s.client.Emails.Send(params)
	if err != nil {
		s.logger.Warn("Resend send failed",
			zap.String("subject", email.Subject),
			zap.Int("recipients", len(email.To)+len(email.Bcc)),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: resend: %v", models.ErrUpstream, err)
	}
	s.logger.Info("Email sent",
		zap.String("id", resp.Id),
		zap.String("subject", email.Subject),
		zap.Int("recipients", len(email.To)+len(email.Bcc)),
	)
	return resp.Id, nil
}
