package dto

import (
	"collaborative-canvas/internal/domain"
)

// 客户端发往服务端的帧类型
const (
	ClientStroke    = "stroke"
	ClientUndo      = "undo"
	ClientClear     = "clear"
	ClientCursor    = "cursor"
	ClientHeartbeat = "heartbeat"
	ClientReplay    = "replay"
)

// 服务端发往客户端的帧类型
const (
	ServerWelcome   = "welcome"
	ServerClear     = "clear"
	ServerStroke    = "stroke"
	ServerStrokeAck = "stroke_ack"
	ServerPresence  = "presence"
	ServerReset     = "reset"
	ServerError     = "error"
)

// ClientFrame 表示从客户端 WebSocket 消息中解析出的一帧
type ClientFrame struct {
	Type   string              `json:"type"`
	Ref    string              `json:"ref,omitempty"` // 客户端自定义的关联 ID，原样出现在应答中
	Stroke *domain.StrokeDraft `json:"stroke,omitempty"`
	X      float64             `json:"x,omitempty"`
	Y      float64             `json:"y,omitempty"`
}

// WelcomeFrame 连接建立后发送的第一帧，随后是一次完整的 clear + stroke 重放
type WelcomeFrame struct {
	Type         string                  `json:"type"`
	SessionID    string                  `json:"session_id"`
	Participant  domain.Participant      `json:"participant"`
	Participants []domain.PresenceRecord `json:"participants"`
	StrokeCount  int                     `json:"stroke_count"`
}

// ClearFrame 要求客户端清空画布
type ClearFrame struct {
	Type string `json:"type"`
}

// StrokeFrame 携带一条需要绘制的笔画
type StrokeFrame struct {
	Type   string        `json:"type"`
	Stroke domain.Stroke `json:"stroke"`
}

// StrokeAckFrame 确认客户端提交的笔画，order_index 以此为准
type StrokeAckFrame struct {
	Type   string        `json:"type"`
	Ref    string        `json:"ref,omitempty"`
	Stroke domain.Stroke `json:"stroke"`
}

// PresenceFrame 在线列表 (event=sync) 或单个参与者的光标 (event=cursor)
type PresenceFrame struct {
	Type         string                   `json:"type"`
	Event        domain.PresenceEventType `json:"event"`
	Participants []domain.PresenceRecord  `json:"participants"`
	Participant  *domain.PresenceRecord   `json:"participant,omitempty"`
}

// ResetFrame 通知撤销或清空，紧随其后的是一次完整重放
type ResetFrame struct {
	Type    string                 `json:"type"`
	Event   domain.StrokeEventType `json:"event"`
	Removed int64                  `json:"removed,omitempty"`
}

// ErrorFrame 表示发送给客户端的错误消息
type ErrorFrame struct {
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
