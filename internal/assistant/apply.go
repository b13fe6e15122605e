package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"foundry/shared/models"

	"go.uber.org/zap"
)

// ConfigStore - чтение и сохранение глобальной конфигурации сайта.
// SaveConfig обязан сохранять уже записанные секреты, если патч их не содержит.
type ConfigStore interface {
	GetConfig(ctx context.Context) (map[string]any, error)
	SaveConfig(ctx context.Context, cfg map[string]any) (map[string]any, error)
}

// ContentStore - документы платформ, тем и новостей. UpsertContent
// валидирует документ и возвращает *models.ValidationError со всеми полями.
type ContentStore interface {
	GetContent(ctx context.Context, kind ContentKind, id string) (map[string]any, error)
	UpsertContent(ctx context.Context, kind ContentKind, doc map[string]any) (map[string]any, error)
	DeleteContent(ctx context.Context, kind ContentKind, id string) error
}

// ImageGenerator генерирует изображение и кладет его в хранилище медиа.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageResult, error)
}

// ApplyResult - итог применения списка действий. Действия до FailedIndex
// уже сохранены: отката нет.
type ApplyResult struct {
	Applied     int    `json:"applied"`
	Total       int    `json:"total"`
	FailedIndex *int   `json:"failedIndex,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Engine применяет действия ассистента к сохраненному состоянию.
type Engine struct {
	config  ConfigStore
	content ContentStore
	images  ImageGenerator
	logger  *zap.Logger
}

// NewEngine создает движок применения действий.
func NewEngine(config ConfigStore, content ContentStore, images ImageGenerator, logger *zap.Logger) *Engine {
	return &Engine{
		config:  config,
		content: content,
		images:  images,
		logger:  logger.Named("ActionEngine"),
	}
}

// Apply выполняет действия строго по порядку и останавливается на первой
// ошибке. Возвращаемая ошибка - ошибка упавшего действия.
func (e *Engine) Apply(ctx context.Context, actions []Action) (ApplyResult, error) {
	result := ApplyResult{Total: len(actions)}
	for i, action := range actions {
		if err := e.ApplyOne(ctx, action); err != nil {
			idx := i
			result.FailedIndex = &idx
			result.Error = err.Error()
			actionsApplied.WithLabelValues(action.Type(), "failed").Inc()
			e.logger.Warn("Action failed, stopping",
				zap.Int("index", i),
				zap.String("type", action.Type()),
				zap.Int("applied", result.Applied),
				zap.Error(err),
			)
			return result, err
		}
		actionsApplied.WithLabelValues(action.Type(), "applied").Inc()
		result.Applied++
	}
	e.logger.Info("Actions applied", zap.Int("count", result.Applied))
	return result, nil
}

// ApplyOne применяет одно действие.
func (e *Engine) ApplyOne(ctx context.Context, action Action) error {
	switch a := action.(type) {
	case ConfigMerge:
		return e.mergeConfig(ctx, a)
	case ContentUpsert:
		return e.upsertContent(ctx, a)
	case ContentDelete:
		return e.deleteContent(ctx, a)
	case MediaGenerate:
		return e.generateMedia(ctx, a)
	case Unsupported:
		return models.NewPublicError(models.ErrBadRequest, fmt.Sprintf("unsupported action type: %s", a.RawType))
	default:
		return models.NewPublicError(models.ErrBadRequest, fmt.Sprintf("unsupported action type: %s", action.Type()))
	}
}

// deleteContent удаляет документ. Уже отсутствующий документ считается удаленным,
// чтобы повтор того же пакета не останавливался на нем.
func (e *Engine) deleteContent(ctx context.Context, a ContentDelete) error {
	err := e.content.DeleteContent(ctx, a.Kind, a.ID)
	if errors.Is(err, models.ErrNotFound) {
		e.logger.Info("Delete target already absent", zap.String("type", a.Type()), zap.String("id", a.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", a.Type(), a.ID, err)
	}
	return nil
}

func (e *Engine) mergeConfig(ctx context.Context, a ConfigMerge) error {
	current, err := e.config.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	merged, ok := DeepMerge(current, a.Patch).(map[string]any)
	if !ok {
		return models.NewPublicError(models.ErrBadRequest, "config.merge value must be an object")
	}
	merged["id"] = models.GlobalConfigID
	if _, err := e.config.SaveConfig(ctx, merged); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func (e *Engine) upsertContent(ctx context.Context, a ContentUpsert) error {
	value, ok := a.Value.(map[string]any)
	if !ok {
		return models.NewPublicError(models.ErrBadRequest, a.Type()+" value must be an object")
	}
	payload := copyMap(value)
	if a.Kind != KindTopic {
		NormalizeLinks(payload)
	}
	if _, err := e.content.UpsertContent(ctx, a.Kind, payload); err != nil {
		return err
	}
	return nil
}

// mediaPayload - value действия media.generate.
type mediaPayload struct {
	Prompt     string
	TargetType string
	TargetID   string
	Field      string
	Size       string
	Quality    string
	Background string
}

func readMediaPayload(v any) mediaPayload {
	m, _ := v.(map[string]any)
	return mediaPayload{
		Prompt:     strings.TrimSpace(looseString(m["prompt"])),
		TargetType: looseString(m["targetType"]),
		TargetID:   looseString(m["targetId"]),
		Field:      strings.TrimSpace(looseString(m["field"])),
		Size:       looseString(m["size"]),
		Quality:    looseString(m["quality"]),
		Background: looseString(m["background"]),
	}
}

// looseString приводит значение к строке: "ложные" значения дают "".
func looseString(v any) string {
	if isFalsy(v) {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (e *Engine) generateMedia(ctx context.Context, a MediaGenerate) error {
	p := readMediaPayload(a.Value)
	if p.Prompt == "" {
		return models.NewPublicError(models.ErrBadRequest, "Missing image prompt.")
	}
	if p.Field == "" {
		return models.NewPublicError(models.ErrBadRequest, "Missing target field for image placement.")
	}
	var kind ContentKind
	switch p.TargetType {
	case "config":
	case string(KindPlatform), string(KindNews):
		kind = ContentKind(p.TargetType)
	default:
		return models.NewPublicError(models.ErrBadRequest, fmt.Sprintf("Unsupported media target type %q", p.TargetType))
	}

	hint := p.TargetID
	if hint == "" {
		hint = p.TargetType
	}
	image, err := e.images.GenerateImage(ctx, models.ImageRequest{
		Prompt:       p.Prompt,
		Size:         p.Size,
		Quality:      p.Quality,
		Background:   p.Background,
		FilenameHint: hint,
	})
	if err != nil {
		return fmt.Errorf("generate image: %w", err)
	}
	e.logger.Info("Image generated for action",
		zap.String("targetType", p.TargetType),
		zap.String("targetId", p.TargetID),
		zap.String("field", p.Field),
		zap.String("blobUrl", image.BlobURL),
	)

	if kind == "" {
		current, err := e.config.GetConfig(ctx)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		next := SetNestedValue(current, p.Field, image.BlobURL)
		next["id"] = models.GlobalConfigID
		if _, err := e.config.SaveConfig(ctx, next); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		return nil
	}

	existing, err := e.content.GetContent(ctx, kind, p.TargetID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewPublicError(models.ErrNotFound, fmt.Sprintf("%s %s not found", kindTitle(kind), p.TargetID))
		}
		return fmt.Errorf("load %s %s: %w", kind, p.TargetID, err)
	}
	next := SetNestedValue(existing, p.Field, image.BlobURL)
	if _, err := e.content.UpsertContent(ctx, kind, next); err != nil {
		return err
	}
	return nil
}

func kindTitle(kind ContentKind) string {
	switch kind {
	case KindPlatform:
		return "Platform"
	case KindNews:
		return "News"
	default:
		return "Topic"
	}
}
