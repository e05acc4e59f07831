package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/service"
)

// SessionChecker 在升级连接前确认会话存在
type SessionChecker interface {
	EnsureSession(ctx context.Context, sessionID string) (*domain.Session, error)
}

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	sessions SessionChecker
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。allowedOrigins 为空或包含 "*" 时允许所有来源
func NewWebSocketHandler(h *hub.Hub, sessions SessionChecker, allowedOrigins []string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if sessions == nil {
		panic("SessionChecker cannot be nil for WebSocketHandler")
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		hub:      h,
		sessions: sessions,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = true
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/sessions/{id}
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	sessionID := c.Param("id")
	logCtx := logrus.WithFields(logrus.Fields{"session_id": sessionID, "request_id": middleware.GetRequestID(c)})

	if _, err := h.sessions.EnsureSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			logCtx.Warn("WS Handler: Session not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		} else {
			logCtx.WithError(err).Error("WS Handler: Error checking session existence")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to validate session"})
		}
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回 HTTP 错误响应
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	participant := domain.NewParticipant(middleware.DisplayName(c))
	logCtx = logCtx.WithField("participant_id", participant.ID)
	client := hub.NewClient(h.hub, conn, sessionID, participant)

	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	client.Run()
	logCtx.Info("WS Handler: Client connected")
}
