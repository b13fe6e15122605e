package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"foundry/shared/interfaces"

	"go.uber.org/zap"
)

// DefaultMailerLiteURL - базовый адрес MailerLite Connect API.
const DefaultMailerLiteURL = "https://connect.mailerlite.com/api"

// ErrMissingMailerLiteKey возвращается, если ключ не задан ни в настройках, ни в окружении.
var ErrMissingMailerLiteKey = errors.New("missing MailerLite API key (set MAILERLITE_API_KEY or emailSettings.mailerLiteApiKey)")

type mailerLiteClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMailerLiteClient создает клиент MailerLite. Ключ не хранится в клиенте:
// он передается в каждый вызов.
func NewMailerLiteClient(baseURL string, timeout time.Duration, logger *zap.Logger) interfaces.SubscriberSync {
	if baseURL == "" {
		baseURL = DefaultMailerLiteURL
	}
	return &mailerLiteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("MailerLite"),
	}
}

type subscriberEnvelope struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *mailerLiteClient) UpsertSubscriber(ctx context.Context, apiKey, email string, groups []string) (string, error) {
	payload := map[string]any{"email": email, "resubscribe": true}
	if len(groups) > 0 {
		payload["groups"] = groups
	}
	var out subscriberEnvelope
	if err := c.do(ctx, apiKey, http.MethodPost, "/subscribers", payload, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

func (c *mailerLiteClient) UpdateSubscriberStatus(ctx context.Context, apiKey, idOrEmail, status string) error {
	path := "/subscribers/" + url.PathEscape(idOrEmail)
	return c.do(ctx, apiKey, http.MethodPut, path, map[string]any{"status": status}, nil)
}

func (c *mailerLiteClient) do(ctx context.Context, apiKey, method, path string, body any, out any) error {
	if strings.TrimSpace(apiKey) == "" {
		return ErrMissingMailerLiteKey
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal mailerlite request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build mailerlite request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailerlite %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(text))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("MailerLite %d: %s", resp.StatusCode, msg)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode mailerlite response: %w", err)
	}
	return nil
}
