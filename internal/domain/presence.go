package domain

import "time"

// Cursor 光标位置。
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresenceRecord 参与者的在线状态，仅保存在 Redis 中。
type PresenceRecord struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	Color         string    `json:"color"`
	Cursor        *Cursor   `json:"cursor,omitempty"`
	LastSeen      time.Time `json:"last_seen"`
}

// PresenceEventType 在线事件类型。
type PresenceEventType string

const (
	PresenceJoin   PresenceEventType = "join"
	PresenceLeave  PresenceEventType = "leave"
	PresenceSync   PresenceEventType = "sync"
	PresenceCursor PresenceEventType = "cursor"
)

// PresenceEvent 在 presence 频道上传递的事件。
// join/leave/cursor 携带 Participant，sync 携带完整的在线列表。
type PresenceEvent struct {
	Type         PresenceEventType `json:"type"`
	SessionID    string            `json:"session_id"`
	Participant  *PresenceRecord   `json:"participant,omitempty"`
	Participants []PresenceRecord  `json:"participants"`
	At           time.Time         `json:"at"`
}
