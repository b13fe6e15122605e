package handler

import (
	"net/http"

	"foundry/shared/models"

	"github.com/gin-gonic/gin"
)

// @Summary Рассылка подписчикам
// @Description Отправляет письмо подписчикам партиями. Ошибка учитывается в статистике
// @Tags email
// @Accept json
// @Produce json
// @Param request body models.CampaignRequest true "Параметры рассылки"
// @Success 200 {object} models.CampaignResult
// @Failure 500 {object} models.ErrorResponse
// @Router /api/email/send [post]
func (h *Handler) sendCampaign(c *gin.Context) {
	var req models.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	result, err := h.campaigns.Send(c.Request.Context(), req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Статистика рассылок
// @Tags email
// @Produce json
// @Success 200 {object} service.EmailDashboard
// @Router /api/email/stats [get]
func (h *Handler) emailStats(c *gin.Context) {
	stats, err := h.campaigns.Stats(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
