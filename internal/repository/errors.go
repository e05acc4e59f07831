package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示写入的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrUnavailable 表示后端不可达或拒绝了写入
	ErrUnavailable = errors.New("repository: backend unavailable")
	// ErrSubscriptionFailed 表示频道订阅未得到确认
	ErrSubscriptionFailed = errors.New("repository: subscription not confirmed")
)

// 特定资源的错误
var (
	ErrSessionNotFound = ErrNotFound
	ErrStrokeNotFound  = ErrNotFound
	ErrCanvasNotCached = ErrNotFound
)
