package hub

import (
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
)

// socketRenderer 把重放写成 clear + stroke 帧。调用方持有 seqMu
type socketRenderer struct {
	c *Client
}

func (r socketRenderer) Clear() error {
	return r.c.write(dto.ClearFrame{Type: dto.ServerClear}, false)
}

func (r socketRenderer) Draw(s domain.Stroke) error {
	return r.c.write(dto.StrokeFrame{Type: dto.ServerStroke, Stroke: s}, false)
}
