package handler

import (
	"errors"
	"net/http"
	"strings"

	"foundry/internal/service"
	"foundry/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @Summary Подписка на рассылку
// @Description Создает или обновляет подписчика. 201 - новый адрес, 200 - уже был
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body service.SubscribeRequest true "Адрес и платформы"
// @Success 200 {object} map[string]interface{}
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {string} string "Too many requests"
// @Router /api/subscriptions [post]
func (h *Handler) subscribe(c *gin.Context) {
	var req service.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	created, err := h.subscriptions.Subscribe(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusOK
	result := "updated"
	if created {
		status = http.StatusCreated
		result = "created"
	}
	subscriptionsTotal.WithLabelValues(result).Inc()
	c.JSON(status, gin.H{"ok": true})
}

type unsubscribeRequest struct {
	Email string `json:"email"`
}

// @Summary Отписка от рассылки
// @Description Адрес берется из query-параметра email или из тела. Повторная отписка не ошибка
// @Tags subscriptions
// @Produce plain
// @Param email query string false "Адрес подписчика"
// @Success 200 {string} string
// @Failure 400 {object} models.ErrorResponse
// @Router /api/subscriptions/unsubscribe [get]
func (h *Handler) unsubscribe(c *gin.Context) {
	email := c.Query("email")
	if email == "" && c.Request.Body != nil && c.Request.ContentLength != 0 {
		var body unsubscribeRequest
		if err := c.ShouldBindJSON(&body); err == nil {
			email = body.Email
		}
	}

	if err := h.subscriptions.Unsubscribe(c.Request.Context(), email); err != nil {
		h.handleServiceError(c, err)
		return
	}
	subscriptionsTotal.WithLabelValues("unsubscribed").Inc()
	c.String(http.StatusOK, service.UnsubscribedMessage)
}

// @Summary Список подписчиков
// @Tags subscriptions
// @Produce json
// @Success 200 {array} models.Subscriber
// @Router /api/subscriptions [get]
func (h *Handler) listSubscriptions(c *gin.Context) {
	subs, err := h.subscriptions.List(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

// @Summary Отправка контактной формы
// @Description Сохраняет обращение и отправляет письмо на адрес из настроек
// @Tags contact
// @Accept json
// @Produce json
// @Param request body service.ContactRequest true "Обращение"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse "Письмо не отправлено"
// @Router /api/contact [post]
func (h *Handler) submitContact(c *gin.Context) {
	var req service.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	id, err := h.contact.Submit(c.Request.Context(), req)
	if err != nil {
		status := "rejected"
		if errors.Is(err, models.ErrUpstream) {
			status = "failed"
		}
		contactSubmissionsTotal.WithLabelValues(status).Inc()
		h.handleServiceError(c, err)
		return
	}
	contactSubmissionsTotal.WithLabelValues("sent").Inc()
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}

// @Summary Обращения с контактной формы
// @Tags contact
// @Produce json
// @Param limit query int false "Сколько вернуть (1..200, по умолчанию 50)"
// @Success 200 {array} map[string]interface{}
// @Router /api/contact/submissions [get]
func (h *Handler) listContact(c *gin.Context) {
	items, err := h.contact.List(c.Request.Context(), service.ClampLimit(c.Query("limit")))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary Вход администратора
// @Description Проверяет логин и пароль из окружения и выдает JWT с ролью administrator
// @Tags auth
// @Accept json
// @Produce json
// @Param request body loginRequest true "Учетные данные"
// @Success 200 {object} service.LoginResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/auth/login [post]
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		loginsTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.logger.Warn("Admin login failed", zap.String("username", req.Username), zap.String("ip", c.ClientIP()))
		}
		h.handleServiceError(c, err)
		return
	}
	loginsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, result)
}
