package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/infra/metrics"
	"collaborative-canvas/internal/replay"
	"collaborative-canvas/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 30 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 一条笔画可能包含上千个点
	maxMessageSize = 256 * 1024

	joinTimeout   = 10 * time.Second
	actionTimeout = 10 * time.Second
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type   string // "register", "unregister"
	Client *Client
}

// Hub 维护活跃客户端集合，为每个连接建立会话成员关系
type Hub struct {
	messageChan chan HubMessage

	// map[sessionID]map[*Client]bool
	sessions   map[string]map[*Client]bool
	sessionsMu sync.RWMutex

	collab *service.CollaborationService
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(collab *service.CollaborationService) *Hub {
	if collab == nil {
		panic("CollaborationService cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		sessions:    make(map[string]map[*Client]bool),
		collab:      collab,
	}
}

// Run 启动 Hub 的主事件处理循环，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	for {
		select {
		case <-ctx.Done():
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		}
	}
}

// QueueMessage 非阻塞地投递消息，通道已满时返回 false
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		return false
	}
}

// ClientCount 返回会话中已连接的客户端数量
func (h *Hub) ClientCount(sessionID string) int {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()
	return len(h.sessions[sessionID])
}

// Shutdown 断开所有客户端并离开各自的会话
func (h *Hub) Shutdown(ctx context.Context) error {
	h.sessionsMu.Lock()
	var clients []*Client
	for id, set := range h.sessions {
		for c := range set {
			clients = append(clients, c)
		}
		delete(h.sessions, id)
	}
	h.sessionsMu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.close()
			metrics.RecordConnectionClosed()
		}(c)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := client.logCtx().WithField("action", "registerClient")

	h.sessionsMu.Lock()
	if _, ok := h.sessions[client.sessionID]; !ok {
		h.sessions[client.sessionID] = make(map[*Client]bool)
		logCtx.Info("Client list created for session")
	}
	h.sessions[client.sessionID][client] = true
	h.sessionsMu.Unlock()
	metrics.RecordConnectionOpened()
	logCtx.Info("Client registered to Hub")

	go h.joinClient(client)
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	logCtx := client.logCtx().WithField("action", "unregisterClient")

	h.sessionsMu.Lock()
	clients, ok := h.sessions[client.sessionID]
	if !ok || !clients[client] {
		h.sessionsMu.Unlock()
		logCtx.Debug("Client already unregistered")
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
		logCtx.Info("Session empty, removed from Hub")
	}
	h.sessionsMu.Unlock()
	metrics.RecordConnectionClosed()

	// Unsubscribe 会等待分发 goroutine 退出，不能阻塞 Hub 主循环
	go client.close()
	logCtx.Info("Client unregistered from Hub")
}

// joinClient 为新连接加入会话，发送 welcome 与一次完整重放
func (h *Hub) joinClient(c *Client) {
	logCtx := c.logCtx().WithField("operation", "joinClient")
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	m, err := h.collab.JoinSession(ctx, c.sessionID, c.participant, service.WithHandlers(service.Handlers{
		RemoteStroke:   c.onRemoteStroke,
		PresenceChange: c.onPresenceChange,
		Reset:          c.onReset,
		CursorMove:     c.onCursorMove,
	}))
	if err != nil {
		logCtx.WithError(err).Error("Failed to join session")
		code, message := errorCode(err)
		_ = c.write(dto.ErrorFrame{Type: dto.ServerError, Code: code, Message: message}, false)
		h.QueueMessage(HubMessage{Type: "unregister", Client: c})
		return
	}
	if !c.attach(m) {
		logCtx.Info("Client left before join completed")
		return
	}

	participants, err := h.collab.Participants(ctx, c.sessionID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to load participants for welcome")
	}
	strokes := m.Strokes()

	c.seqMu.Lock()
	err = c.write(dto.WelcomeFrame{
		Type:         dto.ServerWelcome,
		SessionID:    c.sessionID,
		Participant:  c.participant,
		Participants: participants,
		StrokeCount:  len(strokes),
	}, false)
	if err == nil {
		_, err = replay.Apply(ctx, strokes, socketRenderer{c})
	}
	c.seqMu.Unlock()
	if err != nil {
		logCtx.WithError(err).Warn("Failed to send initial canvas")
		return
	}
	close(c.ready)
	logCtx.WithField("strokes", len(strokes)).Info("Initial canvas sent")
}

// handleFrame 处理一帧客户端消息，每个客户端的帧按到达顺序串行处理
func (h *Hub) handleFrame(c *Client, raw []byte) {
	logCtx := c.logCtx().WithField("operation", "handleFrame")
	var f dto.ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		logCtx.WithError(err).Debug("Malformed client frame")
		_ = c.write(dto.ErrorFrame{Type: dto.ServerError, Code: "bad_frame", Message: "Malformed frame"}, false)
		return
	}
	m := c.membership()
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	var err error
	switch f.Type {
	case dto.ClientStroke:
		if f.Stroke == nil {
			err = service.ErrInvalidStroke
			break
		}
		var stroke *domain.Stroke
		if stroke, err = m.SubmitStroke(ctx, *f.Stroke); err == nil {
			err = c.write(dto.StrokeAckFrame{Type: dto.ServerStrokeAck, Ref: f.Ref, Stroke: *stroke}, false)
		}
	case dto.ClientUndo:
		_, err = m.UndoLast(ctx)
	case dto.ClientClear:
		_, err = m.ClearSession(ctx)
	case dto.ClientCursor:
		m.MoveCursor(f.X, f.Y)
	case dto.ClientHeartbeat:
		err = m.Heartbeat(ctx)
	case dto.ClientReplay:
		c.seqMu.Lock()
		_, err = m.Replay(ctx, socketRenderer{c})
		c.seqMu.Unlock()
	default:
		_ = c.write(dto.ErrorFrame{Type: dto.ServerError, Ref: f.Ref, Code: "unknown_frame", Message: "Unknown frame type"}, false)
		return
	}
	if err != nil && !errors.Is(err, errClientGone) {
		logCtx.WithError(err).WithField("frame", f.Type).Warn("Client action failed")
		code, message := errorCode(err)
		_ = c.write(dto.ErrorFrame{Type: dto.ServerError, Ref: f.Ref, Code: code, Message: message}, false)
	}
}

func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, service.ErrInvalidStroke):
		return "invalid_stroke", err.Error()
	case errors.Is(err, service.ErrNotFound):
		return "nothing_to_undo", "There is no stroke to undo"
	case errors.Is(err, service.ErrSessionNotFound):
		return "session_not_found", "Session not found"
	case errors.Is(err, service.ErrChannelSubscriptionFailed):
		return "subscription_failed", "Could not subscribe to session updates"
	case errors.Is(err, service.ErrStoreUnavailable):
		return "store_unavailable", "Stroke store unavailable, please retry"
	default:
		return "internal", "Internal error"
	}
}
