package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/service"
)

// SessionHandler 封装了会话管理相关的 HTTP 处理逻辑
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CreateSessionRequest 创建会话的请求体，两个字段都可省略
type CreateSessionRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateSession 处理 POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	session, err := h.sessions.CreateSession(c.Request.Context(), req.ID, req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithField("session_id", session.ID).Info("Handler.CreateSession: Session created")
	SuccessResponse(c, http.StatusCreated, session)
}

// GetSession 处理 GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, session)
}
