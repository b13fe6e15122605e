package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"foundry/internal/assistant"
	"foundry/internal/llm"
	"foundry/internal/storage"
	"foundry/shared/interfaces"
	"foundry/shared/models"
	"foundry/shared/utils"

	"go.uber.org/zap"
)

// MissingOpenAIKeyMessage - ответ, когда ключ OpenAI не сохранен в настройках.
const MissingOpenAIKeyMessage = "OpenAI API key not configured. Save it under Admin > AI assistant settings."

// Значения по умолчанию для генерации изображений.
const (
	DefaultImageModel      = "gpt-image-1.5"
	DefaultImageSize       = "1024x1024"
	DefaultImageQuality    = "auto"
	DefaultImageBackground = "auto"
	DefaultImageFormat     = "png"
)

// Лимиты листинга медиа.
const (
	DefaultMediaListLimit = 50
	MaxMediaListLimit     = 200
)

// MediaService - загрузка, листинг и генерация медиафайлов.
type MediaService struct {
	blobs  interfaces.BlobStore
	llm    llm.Client
	config *ConfigService
	usage  *UsageService
	now    func() time.Time
	logger *zap.Logger
}

var _ assistant.ImageGenerator = (*MediaService)(nil)

func NewMediaService(blobs interfaces.BlobStore, client llm.Client, config *ConfigService, usage *UsageService, logger *zap.Logger) *MediaService {
	return &MediaService{
		blobs:  blobs,
		llm:    client,
		config: config,
		usage:  usage,
		now:    time.Now,
		logger: logger.Named("MediaService"),
	}
}

// SignUpload выдает ссылку для прямой загрузки файла.
func (s *MediaService) SignUpload(filename, contentType string) (*interfaces.UploadTicket, error) {
	filename = strings.TrimSpace(filename)
	contentType = strings.TrimSpace(contentType)
	if filename == "" || contentType == "" {
		return nil, models.NewPublicError(models.ErrBadRequest, "filename and contentType are required")
	}
	return s.blobs.SignUpload(filename, contentType)
}

// Upload сохраняет файл, загруженный по подписанной ссылке.
func (s *MediaService) Upload(ctx context.Context, token, name, contentType string, data []byte) (*interfaces.StoredBlob, error) {
	if token == "" {
		return nil, models.NewPublicError(models.ErrUnauthorized, "upload token is required")
	}
	if err := s.blobs.VerifyUpload(token, name, contentType); err != nil {
		return nil, err
	}
	return s.blobs.Put(ctx, name, contentType, data)
}

// List возвращает страницу файлов. limit <= 0 означает лимит по умолчанию.
func (s *MediaService) List(ctx context.Context, prefix, continuationToken string, limit int) (*interfaces.BlobPage, error) {
	switch {
	case limit <= 0:
		limit = DefaultMediaListLimit
	case limit > MaxMediaListLimit:
		limit = MaxMediaListLimit
	}
	return s.blobs.List(ctx, prefix, continuationToken, limit)
}

// GenerateImage генерирует изображение ключом из сохраненной конфигурации и
// кладет его в хранилище. Usage учитывается в категории images.
func (s *MediaService) GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, models.NewPublicError(models.ErrBadRequest, "Missing image prompt.")
	}
	settings := s.config.GetSiteConfig(ctx).OpenAI()
	apiKey := strings.TrimSpace(settings.APIKey)
	if apiKey == "" {
		return nil, models.NewPublicError(models.ErrNotConfigured, MissingOpenAIKeyMessage)
	}

	model := strings.TrimSpace(firstNonEmpty(req.Model, settings.ImageModel, DefaultImageModel))
	format := strings.TrimSpace(firstNonEmpty(req.OutputFormat, settings.ImageOutputFormat, DefaultImageFormat))
	params := llm.ImageParams{
		APIKey:       apiKey,
		Prompt:       req.Prompt,
		Model:        model,
		Size:         strings.TrimSpace(firstNonEmpty(req.Size, settings.ImageSize, DefaultImageSize)),
		Quality:      strings.TrimSpace(firstNonEmpty(req.Quality, settings.ImageQuality, DefaultImageQuality)),
		Background:   strings.TrimSpace(firstNonEmpty(req.Background, settings.ImageBackground, DefaultImageBackground)),
		OutputFormat: format,
	}
	image, err := s.llm.GenerateImage(ctx, params)
	if err != nil {
		return nil, upstreamPublicError(err)
	}

	filename := ImageFilename(req.FilenameHint, req.Prompt, format)
	stored, err := s.blobs.Put(ctx, storage.SafeName(filename, s.now()), imageContentType(format), image.Data)
	if err != nil {
		return nil, err
	}

	if s.usage != nil {
		if err := s.usage.RecordImage(ctx, model, image.Usage); err != nil {
			s.logger.Warn("Failed to record image usage", zap.Error(err))
		}
	}
	s.logger.Info("Image stored", zap.String("name", stored.Name), zap.String("model", model))
	return &models.ImageResult{
		BlobURL: stored.BlobURL,
		Name:    stored.Name,
		Model:   model,
		Usage:   image.Usage,
	}, nil
}

// ImageFilename - slug подсказки (или первых 64 символов промпта) с расширением формата.
func ImageFilename(hint, prompt, format string) string {
	source := hint
	if source == "" {
		source = utils.Prefix(prompt, 64)
	}
	base := utils.Slugify(source)
	if base == "" {
		base = "ai-image"
	}
	ext := format
	if ext == "jpeg" {
		ext = "jpg"
	}
	return base + "." + ext
}

func imageContentType(format string) string {
	switch format {
	case "webp":
		return "image/webp"
	case "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// upstreamPublicError превращает ошибку OpenAI в PublicError с тем же статусом.
func upstreamPublicError(err error) error {
	var upstream *llm.UpstreamError
	if !errors.As(err, &upstream) {
		return err
	}
	kind := models.ErrUpstream
	if upstream.Timeout {
		kind = models.ErrUpstreamTimeout
	}
	return models.NewPublicError(kind, upstream.Message)
}
