package handler

import (
	"net/http"

	"foundry/internal/assistant"
	"foundry/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @Summary Публичная конфигурация сайта
// @Description Возвращает глобальную конфигурацию без секретов или конфигурацию по умолчанию
// @Tags config
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/config [get]
func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.config.PublicConfig(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// @Summary Сохранение конфигурации сайта
// @Description Валидирует и сохраняет конфигурацию. Сохраненные ключи MailerLite и OpenAI не теряются
// @Tags config
// @Accept json
// @Produce json
// @Param id path string false "ID документа (по умолчанию global)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Router /api/config/{id} [put]
func (h *Handler) upsertConfig(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		badRequest(c, "config must be an object")
		return
	}
	if id := c.Param("id"); id != "" {
		if current, _ := body["id"].(string); current == "" {
			body["id"] = id
		}
	}

	saved, err := h.config.Upsert(c.Request.Context(), body)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// @Summary Список платформ
// @Tags content
// @Produce json
// @Success 200 {array} models.Platform
// @Router /api/platforms [get]
func (h *Handler) listPlatforms(c *gin.Context) {
	items, err := h.content.ListPlatforms(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// @Summary Список тем
// @Tags content
// @Produce json
// @Success 200 {array} models.Topic
// @Router /api/topics [get]
func (h *Handler) listTopics(c *gin.Context) {
	items, err := h.content.ListTopics(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// @Summary Список новостей
// @Tags content
// @Produce json
// @Param platformId query string false "Только новости платформы"
// @Param topic query string false "Только новости темы"
// @Success 200 {array} models.NewsPost
// @Router /api/news [get]
func (h *Handler) listNews(c *gin.Context) {
	items, err := h.content.ListNews(c.Request.Context(), service.NewsFilter{
		PlatformID: c.Query("platformId"),
		Topic:      c.Query("topic"),
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// upsertContent - POST/PUT /platforms|topics|news[/:id].
// id из пути используется, если в теле его нет.
func (h *Handler) upsertContent(kind assistant.ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil || body == nil {
			badRequest(c, string(kind)+" must be an object")
			return
		}
		if id := c.Param("id"); id != "" {
			if current, _ := body["id"].(string); current == "" {
				body["id"] = id
			}
		}

		saved, err := h.content.UpsertContent(c.Request.Context(), kind, body)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		contentWritesTotal.WithLabelValues(string(kind), "upsert").Inc()
		c.JSON(http.StatusOK, saved)
	}
}

// deleteContent - DELETE /platforms|topics|news/:id. Платформа, на которую
// ссылаются новости, не удаляется (409).
func (h *Handler) deleteContent(kind assistant.ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := h.content.DeleteContent(c.Request.Context(), kind, id); err != nil {
			h.logger.Debug("Content delete rejected", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
			h.handleServiceError(c, err)
			return
		}
		contentWritesTotal.WithLabelValues(string(kind), "delete").Inc()
		c.Status(http.StatusNoContent)
	}
}
