package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"foundry/shared/interfaces"
	"foundry/shared/models"
	"foundry/shared/utils"
	"foundry/shared/validation"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

const configCacheKey = "config:public"

// ConfigService хранит глобальную конфигурацию сайта (документ global в контейнере config).
// Конфигурация хранится как произвольный JSON-объект: незнакомые ключи не теряются.
type ConfigService struct {
	store    interfaces.DocumentStore
	cache    interfaces.Cache
	cacheTTL time.Duration
	defaults map[string]any
	logger   *zap.Logger
}

// NewConfigService создает сервис. cache может быть nil.
func NewConfigService(store interfaces.DocumentStore, cache interfaces.Cache, cacheTTL time.Duration, logger *zap.Logger) (*ConfigService, error) {
	defaults := map[string]any{}
	if err := yaml.Unmarshal(defaultConfigYAML, &defaults); err != nil {
		return nil, fmt.Errorf("parse default config: %w", err)
	}
	return &ConfigService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		defaults: defaults,
		logger:   logger.Named("ConfigService"),
	}, nil
}

// DefaultConfig возвращает копию конфигурации по умолчанию.
func (s *ConfigService) DefaultConfig() map[string]any {
	return deepCopyMap(s.defaults)
}

// GetConfig возвращает сохраненную конфигурацию вместе с секретами.
// Если документа нет, возвращается {"id": "global"}.
func (s *ConfigService) GetConfig(ctx context.Context) (map[string]any, error) {
	raw, err := s.store.Get(ctx, models.ContainerConfig, models.GlobalConfigID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return map[string]any{"id": models.GlobalConfigID}, nil
		}
		return nil, fmt.Errorf("load site config: %w", err)
	}
	cfg, err := utils.UnmarshalMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decode site config: %w", err)
	}
	return cfg, nil
}

// GetSiteConfig возвращает типизированную конфигурацию. Ошибка чтения или
// несовпадение типов дают пустую конфигурацию: вызывающие используют
// значения по умолчанию и переменные окружения.
func (s *ConfigService) GetSiteConfig(ctx context.Context) *models.SiteConfig {
	raw, err := s.GetConfig(ctx)
	if err != nil {
		s.logger.Warn("Failed to load site config, using defaults", zap.Error(err))
		return &models.SiteConfig{ID: models.GlobalConfigID}
	}
	var cfg models.SiteConfig
	if err := utils.FromMap(raw, &cfg); err != nil {
		s.logger.Warn("Stored site config has unexpected shape", zap.Error(err))
		return &models.SiteConfig{ID: models.GlobalConfigID}
	}
	return &cfg
}

// PublicConfig возвращает конфигурацию для публичного GET /config: без секретов,
// с флагами hasMailerLiteApiKey и openai.hasApiKey. Нет документа - конфигурация по умолчанию.
func (s *ConfigService) PublicConfig(ctx context.Context) (map[string]any, error) {
	var cached map[string]any
	if s.cache != nil {
		if ok, _ := s.cache.GetJSON(ctx, configCacheKey, &cached); ok {
			return cached, nil
		}
	}

	raw, err := s.store.Get(ctx, models.ContainerConfig, models.GlobalConfigID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("load site config: %w", err)
	}
	cfg, err := utils.UnmarshalMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decode site config: %w", err)
	}
	if err := validation.Decode("config", cfg, &models.SiteConfig{}); err != nil {
		s.logger.Warn("Stored site config fails validation, serving it as is", zap.Error(err))
	}

	out := Sanitize(cfg)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, configCacheKey, out, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache public config", zap.Error(err))
		}
	}
	return out, nil
}

// Upsert сохраняет конфигурацию из админки и возвращает ее без секретов.
func (s *ConfigService) Upsert(ctx context.Context, incoming map[string]any) (map[string]any, error) {
	saved, err := s.SaveConfig(ctx, incoming)
	if err != nil {
		return nil, err
	}
	return Sanitize(saved), nil
}

// SaveConfig валидирует конфигурацию и сохраняет ее поверх текущей. Ключи
// MailerLite и OpenAI сохраняются, если не передан новый; openai.clearApiKey удаляет ключ OpenAI.
func (s *ConfigService) SaveConfig(ctx context.Context, incoming map[string]any) (map[string]any, error) {
	if incoming == nil {
		return nil, models.NewPublicError(models.ErrBadRequest, "config must be an object")
	}
	if err := validation.Decode("config", incoming, &models.SiteConfig{}); err != nil {
		return nil, err
	}

	existing, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	next := mergeWithSecrets(existing, incoming)
	id, _ := next["id"].(string)
	if id == "" {
		id = models.GlobalConfigID
		next["id"] = id
	}

	if err := s.store.Upsert(ctx, models.ContainerConfig, id, next); err != nil {
		return nil, fmt.Errorf("save site config: %w", err)
	}
	s.invalidate(ctx)
	s.logger.Info("Site config saved", zap.String("id", id))
	return next, nil
}

func (s *ConfigService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, "config:"); err != nil {
		s.logger.Warn("Failed to invalidate config cache", zap.Error(err))
	}
}

// mergeWithSecrets накладывает incoming на existing на верхнем уровне,
// объединяя emailSettings и ai.adminAssistant.openai так, чтобы сохраненные ключи не терялись.
func mergeWithSecrets(existing, incoming map[string]any) map[string]any {
	next := copyTop(existing)
	for k, v := range incoming {
		next[k] = v
	}

	// emailSettings
	if existing["emailSettings"] == nil && incoming["emailSettings"] == nil {
		delete(next, "emailSettings")
		return mergeAISecrets(existing, incoming, next)
	}
	existingEmail := asMap(existing["emailSettings"])
	incomingEmail := asMap(incoming["emailSettings"])
	email := copyTop(existingEmail)
	for k, v := range incomingEmail {
		email[k] = v
	}
	if !hasNonEmptyString(incomingEmail, "mailerLiteApiKey") {
		email["mailerLiteApiKey"], _ = existingEmail["mailerLiteApiKey"].(string)
	}
	if key, _ := email["mailerLiteApiKey"].(string); key != "" {
		email["hasMailerLiteApiKey"] = true
	} else {
		delete(email, "mailerLiteApiKey")
	}
	next["emailSettings"] = email
	return mergeAISecrets(existing, incoming, next)
}

// mergeAISecrets сохраняет ключ OpenAI ассистента между сохранениями.
func mergeAISecrets(existing, incoming, next map[string]any) map[string]any {
	// ai.adminAssistant.openai
	existingAI := asMap(existing["ai"])
	incomingAI := asMap(incoming["ai"])
	if existing["ai"] == nil && incoming["ai"] == nil {
		delete(next, "ai")
		return next
	}
	ai := copyTop(existingAI)
	for k, v := range incomingAI {
		ai[k] = v
	}
	existingAssistant := asMap(existingAI["adminAssistant"])
	incomingAssistant := asMap(incomingAI["adminAssistant"])
	assistant := copyTop(existingAssistant)
	for k, v := range incomingAssistant {
		assistant[k] = v
	}
	existingOpenAI := asMap(existingAssistant["openai"])
	incomingOpenAI := asMap(incomingAssistant["openai"])
	openai := copyTop(existingOpenAI)
	for k, v := range incomingOpenAI {
		openai[k] = v
	}
	wantsClear, _ := incomingOpenAI["clearApiKey"].(bool)
	switch {
	case wantsClear:
		delete(openai, "apiKey")
		delete(openai, "hasApiKey")
	case hasNonEmptyString(incomingOpenAI, "apiKey"):
	default:
		if oldKey, _ := existingOpenAI["apiKey"].(string); oldKey != "" {
			openai["apiKey"] = oldKey
		} else {
			delete(openai, "apiKey")
		}
	}
	delete(openai, "clearApiKey")
	if key, _ := openai["apiKey"].(string); key != "" {
		openai["hasApiKey"] = true
	}
	assistant["openai"] = openai
	ai["adminAssistant"] = assistant
	next["ai"] = ai
	return next
}

// Sanitize возвращает копию конфигурации без секретов.
func Sanitize(cfg map[string]any) map[string]any {
	out := deepCopyMap(cfg)
	if email, ok := out["emailSettings"].(map[string]any); ok {
		key, _ := email["mailerLiteApiKey"].(string)
		flag, _ := email["hasMailerLiteApiKey"].(bool)
		delete(email, "mailerLiteApiKey")
		email["hasMailerLiteApiKey"] = key != "" || flag
	}
	ai, ok := out["ai"].(map[string]any)
	if !ok {
		return out
	}
	assistant, ok := ai["adminAssistant"].(map[string]any)
	if !ok {
		return out
	}
	openai, _ := assistant["openai"].(map[string]any)
	if openai == nil {
		openai = map[string]any{}
	}
	key, _ := openai["apiKey"].(string)
	flag, _ := openai["hasApiKey"].(bool)
	delete(openai, "apiKey")
	delete(openai, "clearApiKey")
	openai["hasApiKey"] = key != "" || flag
	assistant["openai"] = openai
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func hasNonEmptyString(m map[string]any, key string) bool {
	s, _ := m[key].(string)
	return strings.TrimSpace(s) != ""
}

func copyTop(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
