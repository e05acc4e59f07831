package domain

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// ParticipantPalette 参与者光标与标识可用的颜色。
var ParticipantPalette = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8", "#F7DC6F"}

// Participant 表示一次连接期间的临时参与者身份。
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Color       string `json:"color"`
}

// NewParticipant 生成一个新的临时参与者，ID 形如 user-xxxxxxxxx。
func NewParticipant(displayName string) Participant {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return Participant{
		ID:          "user-" + id,
		DisplayName: displayName,
		Color:       ParticipantPalette[rand.Intn(len(ParticipantPalette))],
	}
}

// PresenceRecord 返回该参与者的初始在线记录。
func (p Participant) PresenceRecord() PresenceRecord {
	return PresenceRecord{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Color:         p.Color,
	}
}
