package middleware

import (
	"errors"
	"net/http"

	"foundry/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusForError сопоставляет ошибку сервисного слоя HTTP-статусу.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrBadRequest), errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrNotConfigured):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenExpired), errors.Is(err, models.ErrTokenMalformed):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondError пишет JSON-ответ об ошибке. Сообщения PublicError и
// ValidationError уходят клиенту, для остальных используется общий текст статуса.
func RespondError(c *gin.Context, err error, logger *zap.Logger) {
	status := StatusForError(err)
	resp := models.ErrorResponse{Error: http.StatusText(status)}

	var verr *models.ValidationError
	var perr *models.PublicError
	switch {
	case errors.As(err, &verr):
		resp.Error = verr.Error()
		resp.Fields = verr.Fields
	case errors.As(err, &perr):
		resp.Error = perr.Message
	case status == http.StatusNotFound:
		resp.Error = "Not found"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, resp)
}
