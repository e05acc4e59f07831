package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/service"
)

// HandleServiceError 把服务层错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidStroke), errors.Is(err, service.ErrInvalidSession):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		ErrorResponse(c, http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, "no stroke to undo")
	case errors.Is(err, service.ErrSessionExists):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrChannelSubscriptionFailed):
		ErrorResponse(c, http.StatusBadGateway, "sync channel unavailable")
	case errors.Is(err, service.ErrStoreUnavailable):
		logrus.WithError(err).Warn("Store unavailable while handling request")
		ErrorResponse(c, http.StatusServiceUnavailable, "stroke store unavailable, retry later")
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
