package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collaborative-canvas/internal/service"
)

// CanvasHandler 导出会话画布
type CanvasHandler struct {
	canvas   *service.CanvasService
	sessions *service.SessionService
}

// NewCanvasHandler 创建 CanvasHandler 实例
func NewCanvasHandler(canvas *service.CanvasService, sessions *service.SessionService) *CanvasHandler {
	return &CanvasHandler{canvas: canvas, sessions: sessions}
}

// PNG 处理 GET /api/sessions/:id/canvas.png
func (h *CanvasHandler) PNG(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.sessions.GetSession(c.Request.Context(), sessionID); err != nil {
		HandleServiceError(c, err)
		return
	}
	data, err := h.canvas.PNG(c.Request.Context(), sessionID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", data)
}
