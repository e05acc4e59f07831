// Package metrics 提供画布同步服务的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections 当前 WebSocket 连接数
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_active_connections",
			Help: "Number of currently connected participants",
		},
	)

	// StrokesAppended 成功写入的笔画数
	StrokesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "canvas_strokes_appended_total",
			Help: "Total number of strokes durably appended",
		},
	)

	// StrokesRejected 被校验拒绝的笔画数
	StrokesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_strokes_rejected_total",
			Help: "Total number of stroke drafts rejected before storage",
		},
		[]string{"reason"},
	)

	// StrokeOperations 撤销和清空操作计数
	StrokeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_stroke_operations_total",
			Help: "Total number of undo and clear operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// StoreErrors 存储层错误
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_store_errors_total",
			Help: "Total number of stroke store failures",
		},
		[]string{"operation"},
	)

	// PublishErrors 发布失败
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_publish_errors_total",
			Help: "Total number of sync channel publish failures",
		},
		[]string{"channel"},
	)

	// DuplicateDeliveries 被去重丢弃的重复投递
	DuplicateDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "canvas_duplicate_deliveries_total",
			Help: "Total number of stroke deliveries discarded as duplicates",
		},
	)

	// ReplayDuration 重放耗时
	ReplayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "canvas_replay_duration_seconds",
			Help:    "Duration of full canvas replays",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// PresenceParticipants 最近一次同步得到的在线人数
	PresenceParticipants = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "canvas_presence_participants",
			Help: "Live participants per session after the latest presence sync",
		},
		[]string{"session_id"},
	)

	// PresenceEvictions 因心跳超时被移除的参与者
	PresenceEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "canvas_presence_evictions_total",
			Help: "Total number of participants evicted after heartbeat timeout",
		},
	)

	// TasksProcessed 后台任务处理结果
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_tasks_processed_total",
			Help: "Total number of background tasks processed",
		},
		[]string{"task", "outcome"},
	)
)

// RecordConnectionOpened 连接建立
func RecordConnectionOpened() { ActiveConnections.Inc() }

// RecordConnectionClosed 连接关闭
func RecordConnectionClosed() { ActiveConnections.Dec() }

// RecordStrokeAppended 笔画写入成功
func RecordStrokeAppended() { StrokesAppended.Inc() }

// RecordStrokeRejected 笔画被拒绝
func RecordStrokeRejected(reason string) { StrokesRejected.WithLabelValues(reason).Inc() }

// RecordOperation 记录撤销/清空结果
func RecordOperation(operation, outcome string) {
	StrokeOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordStoreError 记录存储失败
func RecordStoreError(operation string) { StoreErrors.WithLabelValues(operation).Inc() }

// RecordPublishError 记录发布失败
func RecordPublishError(channel string) { PublishErrors.WithLabelValues(channel).Inc() }

// RecordDuplicateDelivery 记录一次重复投递
func RecordDuplicateDelivery() { DuplicateDeliveries.Inc() }

// RecordReplay 记录重放耗时
func RecordReplay(d time.Duration) { ReplayDuration.Observe(d.Seconds()) }

// RecordPresenceSync 记录同步结果
func RecordPresenceSync(sessionID string, live, evicted int) {
	if live == 0 {
		PresenceParticipants.DeleteLabelValues(sessionID)
	} else {
		PresenceParticipants.WithLabelValues(sessionID).Set(float64(live))
	}
	PresenceEvictions.Add(float64(evicted))
}

// RecordTask 记录任务处理结果
func RecordTask(task string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	TasksProcessed.WithLabelValues(task, outcome).Inc()
}
