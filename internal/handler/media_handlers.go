package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"foundry/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// @Summary Ссылка для загрузки файла
// @Description Выдает подписанный URL для PUT /media/upload, действует 10 минут
// @Tags media
// @Accept json
// @Produce json
// @Param request body signUploadRequest true "Имя и тип файла"
// @Success 200 {object} interfaces.UploadTicket
// @Failure 400 {object} models.ErrorResponse
// @Router /api/media/sas [post]
func (h *Handler) signUpload(c *gin.Context) {
	var req signUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	ticket, err := h.media.SignUpload(req.Filename, req.ContentType)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// @Summary Загрузка файла по подписанной ссылке
// @Tags media
// @Accept octet-stream
// @Produce json
// @Param name path string true "Имя файла из ссылки"
// @Param token query string true "Токен загрузки"
// @Success 201 {object} interfaces.StoredBlob
// @Failure 401 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Router /api/media/upload/{name} [put]
func (h *Handler) uploadMedia(c *gin.Context) {
	name := c.Param("name")
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "File is too large"})
			return
		}
		badRequest(c, "Failed to read upload body")
		return
	}

	stored, err := h.media.Upload(c.Request.Context(), c.Query("token"), name, c.ContentType(), data)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	mediaUploadsTotal.Inc()
	c.JSON(http.StatusCreated, stored)
}

// @Summary Список файлов
// @Tags media
// @Produce json
// @Param prefix query string false "Префикс имени"
// @Param continuationToken query string false "Токен следующей страницы"
// @Param limit query int false "Размер страницы (по умолчанию 50, максимум 200)"
// @Success 200 {object} interfaces.BlobPage
// @Router /api/media/list [get]
func (h *Handler) listMedia(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.media.List(c.Request.Context(), c.Query("prefix"), c.Query("continuationToken"), limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// serveMedia отдает сохраненный файл.
func (h *Handler) serveMedia(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("filepath"), "/")
	f, contentType, err := h.files.Open(name)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.logger.Error("Failed to stat blob", zap.String("name", name), zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
}
