package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"foundry/shared/interfaces"
	"foundry/shared/models"
	"foundry/shared/utils"
	"foundry/shared/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnsubscribedMessage - ответ на отписку, независимо от того, был ли адрес подписан.
const UnsubscribedMessage = "You have been unsubscribed. You can re-subscribe any time from the site."

// SubscribeRequest - тело POST /subscriptions.
type SubscribeRequest struct {
	Email        string   `json:"email" validate:"required,email"`
	SubscribeAll *bool    `json:"subscribeAll,omitempty"`
	PlatformIDs  []string `json:"platformIds,omitempty"`
}

// SubscriptionService управляет подписчиками рассылки.
type SubscriptionService struct {
	store     interfaces.DocumentStore
	config    *ConfigService
	sync      interfaces.SubscriberSync
	envAPIKey string
	now       func() time.Time
	logger    *zap.Logger
}

// NewSubscriptionService создает сервис. sync может быть nil: тогда MailerLite не используется.
func NewSubscriptionService(store interfaces.DocumentStore, config *ConfigService, sync interfaces.SubscriberSync, envMailerLiteKey string, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		store:     store,
		config:    config,
		sync:      sync,
		envAPIKey: envMailerLiteKey,
		now:       time.Now,
		logger:    logger.Named("SubscriptionService"),
	}
}

// NormalizeEmail приводит адрес к виду, который используется как id подписчика.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ResolveMailerLiteKey выбирает ключ MailerLite: из настроек сайта, иначе из окружения.
func ResolveMailerLiteKey(settings models.EmailSettings, envKey string) string {
	if key := strings.TrimSpace(settings.MailerLiteAPIKey); key != "" {
		return key
	}
	return strings.TrimSpace(envKey)
}

// Subscribe создает или обновляет подписчика. created=true, если адрес новый.
func (s *SubscriptionService) Subscribe(ctx context.Context, req SubscribeRequest) (bool, error) {
	if err := validation.Struct("subscription", req); err != nil {
		return false, err
	}
	email := NormalizeEmail(req.Email)
	subscribeAll := true
	if req.SubscribeAll != nil {
		subscribeAll = *req.SubscribeAll
	}
	platformIDs := utils.UniqueStrings(req.PlatformIDs)

	existing, err := s.get(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return false, err
	}

	now := isoTimestamp(s.now())
	record := models.Subscriber{
		ID:               email,
		Email:            email,
		SubscribeAll:     &subscribeAll,
		PlatformIDs:      platformIDs,
		Status:           models.SubscriberActive,
		UnsubscribeToken: uuid.NewString(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if existing != nil {
		record.MailerLiteID = existing.MailerLiteID
		if existing.UnsubscribeToken != "" {
			record.UnsubscribeToken = existing.UnsubscribeToken
		}
		if existing.CreatedAt != "" {
			record.CreatedAt = existing.CreatedAt
		}
	}

	if id := s.syncSubscriber(ctx, record); id != "" {
		record.MailerLiteID = id
	}

	if err := s.store.Upsert(ctx, models.ContainerSubscribers, email, record); err != nil {
		return false, fmt.Errorf("save subscriber: %w", err)
	}
	s.logger.Info("Subscribed",
		zap.String("email", email),
		zap.Strings("platformIds", platformIDs),
		zap.Bool("subscribeAll", subscribeAll),
	)
	return existing == nil, nil
}

// syncSubscriber добавляет адрес в группы MailerLite. Ошибки только логируются.
func (s *SubscriptionService) syncSubscriber(ctx context.Context, sub models.Subscriber) string {
	if s.sync == nil {
		return ""
	}
	settings := s.config.GetSiteConfig(ctx).Email()
	apiKey := ResolveMailerLiteKey(settings, s.envAPIKey)
	if apiKey == "" {
		return ""
	}
	id, err := s.sync.UpsertSubscriber(ctx, apiKey, sub.Email, subscriberGroups(settings, sub))
	if err != nil {
		s.logger.Warn("Failed to sync subscriber to MailerLite", zap.String("email", sub.Email), zap.Error(err))
		return ""
	}
	return id
}

// subscriberGroups - группы MailerLite для подписчика: общая группа при
// subscribeAll, иначе группы выбранных платформ.
func subscriberGroups(settings models.EmailSettings, sub models.Subscriber) []string {
	groups := []string{}
	if sub.SubscribeAll != nil && *sub.SubscribeAll && settings.MailerLiteAllGroupID != "" {
		groups = append(groups, settings.MailerLiteAllGroupID)
	}
	for _, pid := range sub.PlatformIDs {
		if g := settings.MailerLitePlatformGroupIDs[pid]; g != "" {
			groups = append(groups, g)
		}
	}
	return utils.UniqueStrings(groups)
}

// Unsubscribe помечает подписчика как отписавшегося. Неизвестный адрес не ошибка.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, email string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return models.NewPublicError(models.ErrBadRequest, "Email is required")
	}
	raw, err := s.store.Get(ctx, models.ContainerSubscribers, normalized)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load subscriber: %w", err)
	}
	doc, err := utils.UnmarshalMap(raw)
	if err != nil {
		return fmt.Errorf("decode subscriber: %w", err)
	}
	doc["status"] = models.SubscriberUnsubscribed
	doc["updatedAt"] = isoTimestamp(s.now())
	if err := s.store.Upsert(ctx, models.ContainerSubscribers, normalized, doc); err != nil {
		return fmt.Errorf("save subscriber: %w", err)
	}
	s.logger.Info("Unsubscribed", zap.String("email", normalized))

	if s.sync != nil {
		apiKey := ResolveMailerLiteKey(s.config.GetSiteConfig(ctx).Email(), s.envAPIKey)
		if apiKey != "" {
			target, _ := doc["mailerLiteId"].(string)
			if target == "" {
				target = normalized
			}
			if err := s.sync.UpdateSubscriberStatus(ctx, apiKey, target, models.SubscriberUnsubscribed); err != nil {
				s.logger.Warn("Failed to sync unsubscribe to MailerLite", zap.String("email", normalized), zap.Error(err))
			}
		}
	}
	return nil
}

// List возвращает всех подписчиков; записи с неверной схемой пропускаются.
func (s *SubscriptionService) List(ctx context.Context) ([]models.Subscriber, error) {
	return s.list(ctx, interfaces.DocumentQuery{})
}

// Active возвращает подписчиков со статусом, отличным от unsubscribed.
func (s *SubscriptionService) Active(ctx context.Context) ([]models.Subscriber, error) {
	return s.list(ctx, interfaces.DocumentQuery{
		NotEqual: []interfaces.FieldValue{{Field: "status", Value: models.SubscriberUnsubscribed}},
	})
}

func (s *SubscriptionService) list(ctx context.Context, q interfaces.DocumentQuery) ([]models.Subscriber, error) {
	docs, err := s.store.List(ctx, models.ContainerSubscribers, q)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	subs := make([]models.Subscriber, 0, len(docs))
	invalid := 0
	for _, raw := range docs {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			invalid++
			continue
		}
		var sub models.Subscriber
		if err := validation.Decode("subscriber", doc, &sub); err != nil {
			invalid++
			continue
		}
		subs = append(subs, sub)
	}
	if invalid > 0 {
		s.logger.Warn("Some subscriber records failed validation", zap.Int("count", invalid))
	}
	return subs, nil
}

func (s *SubscriptionService) get(ctx context.Context, email string) (*models.Subscriber, error) {
	raw, err := s.store.Get(ctx, models.ContainerSubscribers, email)
	if err != nil {
		return nil, err
	}
	var sub models.Subscriber
	if err := json.Unmarshal(raw, &sub); err != nil {
		s.logger.Warn("Stored subscriber is malformed, overwriting", zap.String("email", email), zap.Error(err))
		return &models.Subscriber{}, nil
	}
	return &sub, nil
}
