package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Tool 表示笔画使用的绘图工具。
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// 笔画校验错误
var (
	// ErrStrokeTooShort 表示笔画少于两个点，单点笔画会被直接丢弃
	ErrStrokeTooShort = errors.New("stroke must contain at least two points")
	ErrInvalidTool    = errors.New("stroke tool must be brush or eraser")
	ErrInvalidWidth   = errors.New("stroke width must be a positive number")
	ErrInvalidPoint   = errors.New("stroke point coordinates must be finite")
)

// Point 画布上的一个坐标点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Points 有序的点序列，在数据库中以 JSON 文本存储。
type Points []Point

// Value 实现 driver.Valuer。
func (p Points) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stroke points: %w", err)
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner，兼容 MySQL ([]byte) 与 SQLite (string)。
func (p *Points) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for stroke points", src)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("failed to unmarshal stroke points: %w", err)
	}
	return nil
}

// Stroke 是一条已持久化的笔画，存入后不可修改。
// ID 由存储分配且永不复用，是去重的唯一依据；OrderIndex 是会话内的全序位置。
type Stroke struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"size:64;not null;uniqueIndex:idx_strokes_session_order,priority:1" json:"session_id"`
	AuthorID   string    `gorm:"size:64;not null" json:"author_id"`
	OrderIndex int64     `gorm:"not null;uniqueIndex:idx_strokes_session_order,priority:2" json:"order_index"`
	Points     Points    `gorm:"type:mediumtext;not null" json:"points"`
	Color      string    `gorm:"size:32;not null" json:"color"`
	Width      float64   `gorm:"not null" json:"width"`
	Tool       Tool      `gorm:"size:16;not null" json:"tool"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"` // 仅供参考，从不用于排序
}

// TableName 指定表名。
func (Stroke) TableName() string { return "strokes" }

// StrokeDraft 是参与者提交的、尚未分配顺序的笔画。
type StrokeDraft struct {
	Points Points  `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Tool   Tool    `json:"tool"`
}

// DefaultStrokeColor 未指定颜色时使用的画笔颜色。
const DefaultStrokeColor = "#000000"

// Normalize 填充缺省的工具和颜色。
func (d StrokeDraft) Normalize() StrokeDraft {
	if d.Tool == "" {
		d.Tool = ToolBrush
	}
	if d.Color == "" {
		d.Color = DefaultStrokeColor
	}
	return d
}

// Validate 在任何存储或广播之前校验草稿。
func (d StrokeDraft) Validate() error {
	if len(d.Points) < 2 {
		return ErrStrokeTooShort
	}
	for _, pt := range d.Points {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			return ErrInvalidPoint
		}
	}
	if d.Width <= 0 || math.IsNaN(d.Width) || math.IsInf(d.Width, 0) {
		return ErrInvalidWidth
	}
	switch d.Tool {
	case ToolBrush, ToolEraser, "":
	default:
		return ErrInvalidTool
	}
	return nil
}

// ToStroke 构造待写入的笔画，OrderIndex 由存储在事务内填充。
func (d StrokeDraft) ToStroke(sessionID, authorID string) Stroke {
	n := d.Normalize()
	points := make(Points, len(n.Points))
	copy(points, n.Points)
	return Stroke{
		SessionID: sessionID,
		AuthorID:  authorID,
		Points:    points,
		Color:     n.Color,
		Width:     n.Width,
		Tool:      n.Tool,
	}
}
