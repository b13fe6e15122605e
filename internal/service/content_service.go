package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"foundry/internal/assistant"
	"foundry/shared/interfaces"
	"foundry/shared/models"
	"foundry/shared/utils"
	"foundry/shared/validation"

	"go.uber.org/zap"
)

// NewsFilter - фильтры публичного списка новостей.
type NewsFilter struct {
	PlatformID string
	Topic      string
}

// ContentService управляет платформами, темами и новостями.
type ContentService struct {
	store     interfaces.DocumentStore
	cache     interfaces.Cache
	cacheTTL  time.Duration
	config    *ConfigService
	publisher interfaces.CampaignPublisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewContentService создает сервис контента. cache и publisher могут быть nil:
// без publisher авто-уведомления о новостях отключены.
func NewContentService(
	store interfaces.DocumentStore,
	cache interfaces.Cache,
	cacheTTL time.Duration,
	config *ConfigService,
	publisher interfaces.CampaignPublisher,
	logger *zap.Logger,
) *ContentService {
	return &ContentService{
		store:     store,
		cache:     cache,
		cacheTTL:  cacheTTL,
		config:    config,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.Named("ContentService"),
	}
}

var _ assistant.ContentStore = (*ContentService)(nil)

// ContainerFor возвращает контейнер документов для вида контента.
func ContainerFor(kind assistant.ContentKind) (string, error) {
	switch kind {
	case assistant.KindPlatform:
		return models.ContainerPlatforms, nil
	case assistant.KindTopic:
		return models.ContainerTopics, nil
	case assistant.KindNews:
		return models.ContainerNews, nil
	default:
		return "", models.NewPublicError(models.ErrBadRequest, fmt.Sprintf("unknown content kind %q", kind))
	}
}

func (s *ContentService) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	return listCached[models.Platform](ctx, s, assistant.KindPlatform, "content:platform:all", interfaces.DocumentQuery{})
}

func (s *ContentService) ListTopics(ctx context.Context) ([]models.Topic, error) {
	return listCached[models.Topic](ctx, s, assistant.KindTopic, "content:topic:all", interfaces.DocumentQuery{})
}

func (s *ContentService) ListNews(ctx context.Context, f NewsFilter) ([]models.NewsPost, error) {
	q := interfaces.DocumentQuery{}
	if f.PlatformID != "" {
		q.ArrayContains = append(q.ArrayContains, interfaces.FieldValue{Field: "platformIds", Value: f.PlatformID})
	}
	if f.Topic != "" {
		q.ArrayContains = append(q.ArrayContains, interfaces.FieldValue{Field: "topics", Value: f.Topic})
	}
	key := fmt.Sprintf("content:news:p=%s:t=%s", f.PlatformID, f.Topic)
	return listCached[models.NewsPost](ctx, s, assistant.KindNews, key, q)
}

// listCached читает документы, пропуская не прошедшие валидацию (с предупреждением).
func listCached[T any](ctx context.Context, s *ContentService, kind assistant.ContentKind, cacheKey string, q interfaces.DocumentQuery) ([]T, error) {
	if s.cache != nil {
		var cached []T
		if ok, _ := s.cache.GetJSON(ctx, cacheKey, &cached); ok {
			return cached, nil
		}
	}

	container, err := ContainerFor(kind)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.List(ctx, container, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", container, err)
	}

	items := make([]T, 0, len(docs))
	invalid := 0
	for _, raw := range docs {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			invalid++
			continue
		}
		var item T
		if err := validation.Decode(string(kind), doc, &item); err != nil {
			invalid++
			continue
		}
		items = append(items, item)
	}
	if invalid > 0 {
		s.logger.Warn("Skipped items failing validation", zap.String("kind", string(kind)), zap.Int("count", invalid))
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, items, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache content list", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return items, nil
}

// GetContent возвращает сохраненный документ как map или models.ErrNotFound.
func (s *ContentService) GetContent(ctx context.Context, kind assistant.ContentKind, id string) (map[string]any, error) {
	container, err := ContainerFor(kind)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.Get(ctx, container, id)
	if err != nil {
		return nil, err
	}
	return utils.UnmarshalMap(raw)
}

// UpsertContent валидирует документ по схеме вида контента и полностью
// заменяет сохраненный документ с тем же id.
func (s *ContentService) UpsertContent(ctx context.Context, kind assistant.ContentKind, doc map[string]any) (map[string]any, error) {
	container, err := ContainerFor(kind)
	if err != nil {
		return nil, err
	}

	var typed any
	switch kind {
	case assistant.KindPlatform:
		typed = &models.Platform{}
	case assistant.KindTopic:
		typed = &models.Topic{}
	default:
		typed = &models.NewsPost{}
	}
	if err := validation.Decode(string(kind), doc, typed); err != nil {
		return nil, err
	}

	stored, err := utils.ToMap(typed)
	if err != nil {
		return nil, err
	}
	id, _ := stored["id"].(string)

	previous, err := s.GetContent(ctx, kind, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	now := isoTimestamp(s.now())
	if _, ok := stored["createdAt"]; !ok {
		if created, ok := previous["createdAt"].(string); ok && created != "" {
			stored["createdAt"] = created
		} else {
			stored["createdAt"] = now
		}
	}
	stored["updatedAt"] = now

	if err := s.store.Upsert(ctx, container, id, stored); err != nil {
		return nil, fmt.Errorf("save %s %s: %w", kind, id, err)
	}
	s.invalidate(ctx, kind)
	s.logger.Info("Content upserted", zap.String("kind", string(kind)), zap.String("id", id))

	if kind == assistant.KindNews {
		s.maybeNotify(ctx, typed.(*models.NewsPost), previous)
	}
	return stored, nil
}

// DeleteContent удаляет документ. Платформу нельзя удалить, пока на нее ссылаются новости.
func (s *ContentService) DeleteContent(ctx context.Context, kind assistant.ContentKind, id string) error {
	container, err := ContainerFor(kind)
	if err != nil {
		return err
	}
	if id == "" {
		return models.NewPublicError(models.ErrBadRequest, "Missing id")
	}
	if kind == assistant.KindPlatform {
		referenced, err := s.store.Exists(ctx, models.ContainerNews, interfaces.DocumentQuery{
			ArrayContains: []interfaces.FieldValue{{Field: "platformIds", Value: id}},
		})
		if err != nil {
			return fmt.Errorf("check news references: %w", err)
		}
		if referenced {
			return models.NewPublicError(models.ErrConflict, "Cannot delete platform with existing news references. Remove related news first.")
		}
	}
	if err := s.store.Delete(ctx, container, id); err != nil {
		return err
	}
	s.invalidate(ctx, kind)
	s.logger.Info("Content deleted", zap.String("kind", string(kind)), zap.String("id", id))
	return nil
}

// maybeNotify ставит рассылку в очередь, когда новость впервые получает статус Published
// и в настройках включен autoNotifyOnNews.
func (s *ContentService) maybeNotify(ctx context.Context, news *models.NewsPost, previous map[string]any) {
	if s.publisher == nil || news.Status != models.NewsStatusPublished {
		return
	}
	if prevStatus, _ := previous["status"].(string); prevStatus == models.NewsStatusPublished {
		return
	}
	settings := s.config.GetSiteConfig(ctx).Email()
	if settings.AutoNotifyOnNews == nil || !*settings.AutoNotifyOnNews {
		return
	}
	req := models.CampaignRequest{NewsID: news.ID, PlatformIDs: news.PlatformIDs, Reason: "news-published"}
	if len(news.PlatformIDs) == 0 {
		sendToAll := true
		req.SendToAll = &sendToAll
	}
	if err := s.publisher.PublishCampaign(ctx, req); err != nil {
		s.logger.Error("Failed to queue news notification", zap.String("newsId", news.ID), zap.Error(err))
	}
}

func (s *ContentService) invalidate(ctx context.Context, kind assistant.ContentKind) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, "content:"+string(kind)+":"); err != nil {
		s.logger.Warn("Failed to invalidate content cache", zap.String("kind", string(kind)), zap.Error(err))
	}
}
