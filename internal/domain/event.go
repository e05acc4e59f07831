package domain

import "time"

// StrokeEventType 笔画频道上的事件类型。
type StrokeEventType string

const (
	StrokeAppended StrokeEventType = "appended"
	StrokeUndone   StrokeEventType = "undone"
	StrokeCleared  StrokeEventType = "cleared"
)

// StrokeEvent 在 strokes 频道上传递的事件，投递语义为至少一次、无序。
type StrokeEvent struct {
	Type      StrokeEventType `json:"type"`
	SessionID string          `json:"session_id"`
	Stroke    *Stroke         `json:"stroke,omitempty"`  // appended / undone
	Removed   int64           `json:"removed,omitempty"` // cleared
	At        time.Time       `json:"at"`
}

// IsReset 报告该事件是否要求接收方整体重放画布。
func (e StrokeEvent) IsReset() bool {
	return e.Type == StrokeUndone || e.Type == StrokeCleared
}
