package handler

import (
	"net/http"
	"os"

	"foundry/internal/assistant"
	"foundry/internal/service"
	"foundry/shared/middleware"
	"foundry/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes - предельный размер тела PUT /media/upload.
const DefaultMaxUploadBytes int64 = 25 << 20

// BlobFiles отдает сохраненные файлы для GET /media/files/*.
type BlobFiles interface {
	Open(name string) (*os.File, string, error)
}

// Services - сервисы, с которыми работает HTTP-слой.
type Services struct {
	Config        *service.ConfigService
	Content       *service.ContentService
	Subscriptions *service.SubscriptionService
	Contact       *service.ContactService
	Campaigns     *service.CampaignService
	Media         *service.MediaService
	Chat          *service.ChatService
	Usage         *service.UsageService
	Auth          *service.AuthService
}

// Handler обслуживает HTTP API сайта и админки.
type Handler struct {
	config        *service.ConfigService
	content       *service.ContentService
	subscriptions *service.SubscriptionService
	contact       *service.ContactService
	campaigns     *service.CampaignService
	media         *service.MediaService
	chat          *service.ChatService
	usage         *service.UsageService
	auth          *service.AuthService
	engine        *assistant.Engine
	files         BlobFiles

	MaxUploadBytes int64
	logger         *zap.Logger
}

// New создает обработчик. files может быть nil: тогда /media/files не регистрируется.
func New(s Services, files BlobFiles, logger *zap.Logger) *Handler {
	return &Handler{
		config:         s.Config,
		content:        s.Content,
		subscriptions:  s.Subscriptions,
		contact:        s.Contact,
		campaigns:      s.Campaigns,
		media:          s.Media,
		chat:           s.Chat,
		usage:          s.Usage,
		auth:           s.Auth,
		engine:         assistant.NewEngine(s.Config, s.Content, s.Media, logger),
		files:          files,
		MaxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger.Named("HTTPHandler"),
	}
}

// RegisterRoutes регистрирует маршруты API в группе api (обычно /api).
// admin проверяет роль administrator, limiter ограничивает публичные POST.
// limiter может быть nil.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, admin gin.HandlerFunc, limiter gin.HandlerFunc) {
	if limiter == nil {
		limiter = func(c *gin.Context) { c.Next() }
	}

	api.GET("/config", h.getConfig)
	api.GET("/platforms", h.listPlatforms)
	api.GET("/topics", h.listTopics)
	api.GET("/news", h.listNews)
	api.POST("/subscriptions", limiter, h.subscribe)
	api.GET("/subscriptions/unsubscribe", h.unsubscribe)
	api.POST("/subscriptions/unsubscribe", h.unsubscribe)
	api.POST("/contact", limiter, h.submitContact)
	api.PUT("/media/upload/:name", h.uploadMedia)
	api.POST("/auth/login", limiter, h.login)
	if h.files != nil {
		api.GET("/media/files/*filepath", h.serveMedia)
		api.HEAD("/media/files/*filepath", h.serveMedia)
	}

	protected := api.Group("")
	protected.Use(admin)
	{
		protected.POST("/config", h.upsertConfig)
		protected.PUT("/config", h.upsertConfig)
		protected.POST("/config/:id", h.upsertConfig)
		protected.PUT("/config/:id", h.upsertConfig)

		for _, kind := range []assistant.ContentKind{assistant.KindPlatform, assistant.KindTopic, assistant.KindNews} {
			path := "/" + routeFor(kind)
			protected.POST(path, h.upsertContent(kind))
			protected.PUT(path, h.upsertContent(kind))
			protected.POST(path+"/:id", h.upsertContent(kind))
			protected.PUT(path+"/:id", h.upsertContent(kind))
			protected.DELETE(path+"/:id", h.deleteContent(kind))
		}

		protected.GET("/subscriptions", h.listSubscriptions)
		protected.GET("/contact/submissions", h.listContact)

		protected.POST("/media/sas", h.signUpload)
		protected.GET("/media/list", h.listMedia)

		protected.POST("/email/send", h.sendCampaign)
		protected.GET("/email/stats", h.emailStats)

		protected.POST("/ai/chat", h.aiChat)
		protected.POST("/ai/actions/apply", h.applyActions)
		protected.POST("/ai/image-generate", h.generateImage)
		protected.GET("/ai/usage", h.aiUsage)
		protected.GET("/ai/pricing", h.aiPricing)
		protected.POST("/ai/pricing/refresh", h.refreshPricing)
	}
}

func routeFor(kind assistant.ContentKind) string {
	switch kind {
	case assistant.KindPlatform:
		return "platforms"
	case assistant.KindTopic:
		return "topics"
	default:
		return "news"
	}
}

func (h *Handler) handleServiceError(c *gin.Context, err error) {
	middleware.RespondError(c, err, h.logger)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: message})
}
