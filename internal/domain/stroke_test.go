package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrokeDraft_Validate(t *testing.T) {
	two := Points{{X: 0, Y: 0}, {X: 1, Y: 1}}
	tests := []struct {
		name  string
		draft StrokeDraft
		want  error
	}{
		{"valid brush", StrokeDraft{Points: two, Width: 2, Tool: ToolBrush}, nil},
		{"valid eraser", StrokeDraft{Points: two, Width: 20, Tool: ToolEraser}, nil},
		{"tool defaults", StrokeDraft{Points: two, Width: 1}, nil},
		{"single point", StrokeDraft{Points: Points{{X: 1, Y: 1}}, Width: 2}, ErrStrokeTooShort},
		{"no points", StrokeDraft{Width: 2}, ErrStrokeTooShort},
		{"NaN point", StrokeDraft{Points: Points{{X: math.NaN()}, {X: 1}}, Width: 2}, ErrInvalidPoint},
		{"infinite point", StrokeDraft{Points: Points{{X: 0}, {Y: math.Inf(1)}}, Width: 2}, ErrInvalidPoint},
		{"zero width", StrokeDraft{Points: two}, ErrInvalidWidth},
		{"unknown tool", StrokeDraft{Points: two, Width: 2, Tool: "spray"}, ErrInvalidTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStrokeDraft_ToStrokeAppliesDefaults(t *testing.T) {
	draft := StrokeDraft{Points: Points{{X: 0, Y: 0}, {X: 3, Y: 4}}, Width: 5}
	s := draft.ToStroke("s1", "user-a")

	assert.Equal(t, ToolBrush, s.Tool)
	assert.Equal(t, DefaultStrokeColor, s.Color)
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, "user-a", s.AuthorID)

	draft.Points[0].X = 99
	assert.Equal(t, float64(0), s.Points[0].X, "points are copied")
}

func TestPoints_ScanAcceptsBytesAndString(t *testing.T) {
	var fromBytes, fromString Points
	require.NoError(t, fromBytes.Scan([]byte(`[{"x":1,"y":2},{"x":3,"y":4}]`)))
	require.NoError(t, fromString.Scan(`[{"x":1,"y":2},{"x":3,"y":4}]`))
	assert.Equal(t, fromBytes, fromString)
	assert.Len(t, fromBytes, 2)

	var bad Points
	assert.Error(t, bad.Scan(42))
	assert.Error(t, bad.Scan("not json"))

	v, err := Points(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestNewParticipant(t *testing.T) {
	p := NewParticipant("Ada")
	assert.Regexp(t, `^user-[0-9a-f]{9}$`, p.ID)
	assert.Contains(t, ParticipantPalette, p.Color)
	assert.Equal(t, "Ada", p.DisplayName)

	rec := p.PresenceRecord()
	assert.Equal(t, p.ID, rec.ParticipantID)
	assert.Nil(t, rec.Cursor)
}
