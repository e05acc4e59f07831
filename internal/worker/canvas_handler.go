package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/infra/metrics"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
)

// CanvasRefresher 重新渲染并缓存会话画布
type CanvasRefresher interface {
	Refresh(ctx context.Context, sessionID string) ([]byte, error)
}

// CanvasRenderHandler 处理画布重绘任务
type CanvasRenderHandler struct {
	canvas CanvasRefresher
}

// NewCanvasRenderHandler 创建 Handler 实例
func NewCanvasRenderHandler(canvas CanvasRefresher) *CanvasRenderHandler {
	if canvas == nil {
		panic("CanvasRefresher cannot be nil for CanvasRenderHandler")
	}
	return &CanvasRenderHandler{canvas: canvas}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *CanvasRenderHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)
	retry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{"task_id": taskID, "task_type": t.Type(), "retry": retry})

	payload, err := tasks.ParseCanvasRenderPayload(t)
	if err != nil {
		metrics.RecordTask(t.Type(), err)
		logCtx.WithError(err).Error("Failed to parse canvas render payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("session_id", payload.SessionID)

	data, err := h.canvas.Refresh(ctx, payload.SessionID)
	metrics.RecordTask(t.Type(), err)
	if err != nil {
		if errors.Is(err, service.ErrCanvasUnavailable) {
			logCtx.WithError(err).Error("Canvas render failed permanently")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logCtx.WithError(err).Warn("Canvas render failed, will retry")
		return err
	}
	logCtx.WithField("bytes", len(data)).Debug("Canvas rendered")
	return nil
}
