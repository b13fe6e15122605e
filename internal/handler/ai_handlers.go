package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"foundry/internal/assistant"
	"foundry/internal/service"
	"foundry/shared/middleware"
	"foundry/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @Summary Чат с ассистентом администратора
// @Description Возвращает ответ модели с предложенными действиями. С stream=1 отвечает потоком SSE
// @Tags ai
// @Accept json
// @Produce json
// @Produce text/event-stream
// @Param stream query string false "1 - потоковый ответ"
// @Param request body service.ChatInput true "Диалог и контекст"
// @Success 200 {object} assistant.Envelope
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Failure 504 {object} models.ErrorResponse
// @Router /api/ai/chat [post]
func (h *Handler) aiChat(c *gin.Context) {
	var in service.ChatInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid chat request: "+err.Error())
		return
	}

	if c.Query("stream") == "1" {
		chatRequestsTotal.WithLabelValues("stream").Inc()
		h.streamChat(c, in)
		return
	}

	chatRequestsTotal.WithLabelValues("sync").Inc()
	envelope, err := h.chat.Chat(c.Request.Context(), in)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope)
}

// streamChat пишет события в формате `data: <json>\n\n`.
func (h *Handler) streamChat(c *gin.Context, in service.ChatInput) {
	ctx := c.Request.Context()
	session, envelope, err := h.chat.OpenStream(ctx, in)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if envelope != nil {
		c.JSON(http.StatusOK, envelope)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	emit := func(ev service.StreamEvent) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	if err := session.Run(ctx, emit); err != nil {
		h.logger.Info("Chat stream stopped early", zap.Error(err))
	}
}

type applyRequest struct {
	Actions []any `json:"actions"`
}

type applyResponse struct {
	assistant.ApplyResult
	Fields []models.FieldError `json:"fields,omitempty"`
}

// @Summary Применение действий ассистента
// @Description Выполняет действия по порядку и останавливается на первой ошибке. Уже примененные действия не откатываются
// @Tags ai
// @Accept json
// @Produce json
// @Param request body applyRequest true "Действия"
// @Success 200 {object} applyResponse
// @Failure 400 {object} applyResponse
// @Failure 409 {object} applyResponse
// @Router /api/ai/actions/apply [post]
func (h *Handler) applyActions(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "actions must be an array")
		return
	}

	result, err := h.engine.Apply(c.Request.Context(), assistant.NormalizeActions(req.Actions))
	if err != nil {
		status := middleware.StatusForError(err)
		resp := applyResponse{ApplyResult: result}
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			resp.Fields = verr.Fields
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("Applying actions failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, applyResponse{ApplyResult: result})
}

// @Summary Генерация изображения
// @Description Генерирует изображение ключом OpenAI из настроек и сохраняет его в медиатеку
// @Tags ai
// @Accept json
// @Produce json
// @Param request body models.ImageRequest true "Параметры генерации"
// @Success 200 {object} models.ImageResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/ai/image-generate [post]
func (h *Handler) generateImage(c *gin.Context) {
	var req models.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid image request: "+err.Error())
		return
	}
	result, err := h.media.GenerateImage(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Расход токенов OpenAI
// @Tags ai
// @Produce json
// @Success 200 {object} service.UsageReport
// @Router /api/ai/usage [get]
func (h *Handler) aiUsage(c *gin.Context) {
	report, err := h.usage.Summary(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Прайс-лист моделей
// @Description Сохраненные цены моделей OpenAI; если их нет, пустой ручной прайс-лист
// @Tags ai
// @Produce json
// @Success 200 {object} service.PricingView
// @Router /api/ai/pricing [get]
func (h *Handler) aiPricing(c *gin.Context) {
	c.JSON(http.StatusOK, h.usage.Pricing(c.Request.Context()))
}

// @Summary Обновление прайс-листа
// @Description Принимает вставленный текст страницы цен (pricingText) или карту models и сохраняет ее в ai.pricing
// @Tags ai
// @Accept json
// @Produce json
// @Param request body service.PricingRefresh true "Текст или карта цен"
// @Success 200 {object} service.PricingView
// @Failure 400 {object} models.ErrorResponse
// @Router /api/ai/pricing/refresh [post]
func (h *Handler) refreshPricing(c *gin.Context) {
	var req service.PricingRefresh
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid pricing payload: "+err.Error())
		return
	}
	view, err := h.usage.RefreshPricing(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
