package service

import (
	"errors"
	"fmt"

	"collaborative-canvas/internal/repository"
)

var (
	// ErrStoreUnavailable 存储不可达或拒绝写入，调用方可以自行重试
	ErrStoreUnavailable = errors.New("stroke store unavailable")
	// ErrNotFound 撤销时会话中没有笔画
	ErrNotFound = errors.New("no stroke to undo")
	// ErrChannelSubscriptionFailed 同步频道订阅未得到确认
	ErrChannelSubscriptionFailed = errors.New("sync channel subscription failed")
	// ErrInvalidStroke 笔画草稿未通过校验，未存储也未广播
	ErrInvalidStroke = errors.New("invalid stroke")
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSession 会话参数非法
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExists 会话 ID 已被占用
	ErrSessionExists = errors.New("session already exists")
	// ErrCanvasUnavailable 画布渲染失败
	ErrCanvasUnavailable = errors.New("canvas rendering unavailable")
)

// mapRepoError 将仓库层错误映射为服务层错误，保留原始错误链
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrSubscriptionFailed):
		return fmt.Errorf("%w: %w", ErrChannelSubscriptionFailed, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
