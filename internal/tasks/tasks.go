package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量
const (
	TypePresenceSweep = "presence:sweep" // 清理所有会话中超时的在线记录
	TypeCanvasRender  = "canvas:render"  // 重新渲染会话画布并写入缓存
)

// 队列名称与 worker 的优先级配置保持一致
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// CanvasRenderPayload 画布重绘任务的数据
type CanvasRenderPayload struct {
	SessionID string `json:"session_id"`
}

// NewCanvasRenderTask 创建画布重绘任务
func NewCanvasRenderTask(sessionID string) (*asynq.Task, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("canvas render task requires a session id")
	}
	payload, err := json.Marshal(CanvasRenderPayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCanvasRender, payload), nil
}

// ParseCanvasRenderPayload 解析画布重绘任务
func ParseCanvasRenderPayload(t *asynq.Task) (CanvasRenderPayload, error) {
	var p CanvasRenderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal canvas render payload: %w", err)
	}
	if p.SessionID == "" {
		return p, fmt.Errorf("canvas render payload has empty session id")
	}
	return p, nil
}

// NewPresenceSweepTask 创建在线状态清理任务，没有负载
func NewPresenceSweepTask() *asynq.Task {
	return asynq.NewTask(TypePresenceSweep, nil)
}
