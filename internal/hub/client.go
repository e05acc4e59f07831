package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/service"
)

var errClientGone = errors.New("client disconnected or too slow")

var heartbeatFrame = []byte(`{"type":"heartbeat"}`)

// Client 代表一个连接到 Hub 的 WebSocket 参与者
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	sessionID   string
	participant domain.Participant

	send   chan []byte // 发往客户端的缓冲通道，从不关闭
	frames chan []byte // 待处理的客户端帧
	ready  chan struct{}
	done   chan struct{}

	// seqMu 保证 welcome/重放/reset 这类多帧序列不被其他帧打断
	seqMu sync.Mutex

	mu     sync.Mutex
	closed bool
	member *service.Membership
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string, participant domain.Participant) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		sessionID:   sessionID,
		participant: participant,
		send:        make(chan []byte, 256),
		frames:      make(chan []byte, 64),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run 启动客户端的读、写与帧处理 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.actionLoop()
	go c.ReadPump()
}

func (c *Client) CloseConn() { _ = c.conn.Close() }

func (c *Client) logCtx() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"session_id": c.sessionID, "participant_id": c.participant.ID})
}

// ReadPump 把客户端帧放入处理队列，在自己的 goroutine 中运行
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", Client: c}:
		case <-time.After(1 * time.Second):
			c.logCtx().Warn("Timeout sending unregister message to Hub channel")
		}
		c.CloseConn()
		c.logCtx().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// 每次 pong 都刷新在线状态
		c.enqueueFrame(heartbeatFrame)
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logCtx().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logCtx().Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logCtx().Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.enqueueFrame(message)
	}
}

// WritePump 将 send 通道中的消息写入连接，并定期发送 Ping。
// done 关闭后先写完已排队的消息，再发送关闭帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.CloseConn()
		c.logCtx().Debug("writePump exited")
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				c.logCtx().WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				c.logCtx().WithError(err).Warn("Failed to send ping message")
				return
			}
		case <-c.done:
			for {
				select {
				case message := <-c.send:
					if err := c.writeMessage(websocket.TextMessage, message); err != nil {
						return
					}
				default:
					_ = c.writeMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// actionLoop 在加入完成后按顺序处理客户端帧，使读循环从不阻塞在存储上
func (c *Client) actionLoop() {
	select {
	case <-c.ready:
	case <-c.done:
		return
	}
	for {
		select {
		case <-c.done:
			return
		case raw := <-c.frames:
			c.hub.handleFrame(c, raw)
		}
	}
}

func (c *Client) enqueueFrame(raw []byte) {
	select {
	case c.frames <- raw:
	default:
		c.logCtx().Warn("Client frame queue full, dropping frame")
	}
}

// write 序列化并投递一帧。lossy 帧在缓冲区满时直接丢弃；
// 其他帧最多等待 writeWait，超时说明客户端过慢，断开后它重连会得到完整重放
func (c *Client) write(v interface{}, lossy bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientGone
	default:
	}
	if lossy {
		select {
		case c.send <- data:
		default:
		}
		return nil
	}
	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientGone
	case <-timer.C:
		c.logCtx().Warn("Client send buffer full, disconnecting slow client")
		c.CloseConn()
		return errClientGone
	}
}

// attach 记录成员关系；客户端已关闭时立即退出会话并返回 false
func (c *Client) attach(m *service.Membership) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go func() { _ = m.Unsubscribe() }()
		return false
	}
	c.member = m
	c.mu.Unlock()
	return true
}

func (c *Client) membership() *service.Membership {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.member
}

// close 关闭发送通道并离开会话，可重复调用
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	m := c.member
	c.mu.Unlock()

	if m != nil {
		if err := m.Unsubscribe(); err != nil {
			c.logCtx().WithError(err).Warn("Failed to leave presence on disconnect")
		}
	}
}

// 以下回调运行在成员关系的分发 goroutine 中，先等待初始画布发送完毕

func (c *Client) waitReady() bool {
	select {
	case <-c.ready:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) onRemoteStroke(s domain.Stroke) {
	if !c.waitReady() {
		return
	}
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	_ = c.write(dto.StrokeFrame{Type: dto.ServerStroke, Stroke: s}, false)
}

func (c *Client) onReset(ev domain.StrokeEvent) {
	if !c.waitReady() {
		return
	}
	m := c.membership()
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	if err := c.write(dto.ResetFrame{Type: dto.ServerReset, Event: ev.Type, Removed: ev.Removed}, false); err != nil {
		return
	}
	if _, err := m.Replay(ctx, socketRenderer{c}); err != nil && !errors.Is(err, errClientGone) {
		c.logCtx().WithError(err).Warn("Replay after reset failed")
		code, message := errorCode(err)
		_ = c.write(dto.ErrorFrame{Type: dto.ServerError, Code: code, Message: message}, false)
	}
}

func (c *Client) onPresenceChange(participants []domain.PresenceRecord) {
	if !c.waitReady() {
		return
	}
	_ = c.write(dto.PresenceFrame{Type: dto.ServerPresence, Event: domain.PresenceSync, Participants: participants}, true)
}

func (c *Client) onCursorMove(rec domain.PresenceRecord) {
	if !c.waitReady() {
		return
	}
	_ = c.write(dto.PresenceFrame{Type: dto.ServerPresence, Event: domain.PresenceCursor, Participant: &rec}, true)
}
