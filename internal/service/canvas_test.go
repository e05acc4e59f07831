package service_test

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/domain"
	redisstate "collaborative-canvas/internal/infra/state/redis"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/repository/mocks"
	"collaborative-canvas/internal/service"
)

func TestCanvasService_PNGUsesCache(t *testing.T) {
	strokes := new(mocks.StrokeRepository)
	cache := new(mocks.CanvasCache)
	svc := service.NewCanvasService(strokes, cache, service.CanvasOptions{Width: 32, Height: 32})
	cache.On("GetCanvasImage", mock.Anything, "s1").Return([]byte("cached"), nil).Once()

	data, err := svc.PNG(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), data)
	strokes.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestCanvasService_PNGRendersOnMiss(t *testing.T) {
	strokes := new(mocks.StrokeRepository)
	cache := new(mocks.CanvasCache)
	svc := service.NewCanvasService(strokes, cache, service.CanvasOptions{Width: 40, Height: 30})
	cache.On("GetCanvasImage", mock.Anything, "s1").Return(nil, repository.ErrCanvasNotCached).Once()
	strokes.On("List", mock.Anything, "s1").Return([]domain.Stroke{
		{ID: 1, Points: domain.Points{{X: 0, Y: 0}, {X: 40, Y: 30}}, Color: "#FF0000", Width: 3, Tool: domain.ToolBrush},
	}, nil).Once()
	cache.On("CanvasGeneration", mock.Anything, "s1").Return(int64(3), nil).Once()
	cache.On("SetCanvasImage", mock.Anything, "s1", mock.Anything, mock.Anything, int64(3)).Return(true, nil).Once()

	data, err := svc.PNG(context.Background(), "s1")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
	cache.AssertExpectations(t)
}

func TestCanvasService_RefreshStoreUnavailable(t *testing.T) {
	strokes := new(mocks.StrokeRepository)
	cache := new(mocks.CanvasCache)
	svc := service.NewCanvasService(strokes, cache, service.CanvasOptions{Width: 8, Height: 8})
	cache.On("CanvasGeneration", mock.Anything, "s1").Return(int64(0), nil).Once()
	strokes.On("List", mock.Anything, "s1").Return(nil, fmt.Errorf("gorm: %w", repository.ErrUnavailable)).Once()

	_, err := svc.Refresh(context.Background(), "s1")
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	cache.AssertNotCalled(t, "SetCanvasImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// mutatingLister 在读取笔画时模拟一次并发的修改
type mutatingLister struct {
	cache   *redisstate.RedisCanvasCache
	strokes []domain.Stroke
}

func (l *mutatingLister) List(ctx context.Context, sessionID string) ([]domain.Stroke, error) {
	if err := l.cache.InvalidateCanvasImage(ctx, sessionID); err != nil {
		return nil, err
	}
	return l.strokes, nil
}

func TestCanvasService_RefreshDoesNotCacheImageOutdatedByMutation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := redisstate.NewRedisCanvasCache(client, "")
	lister := &mutatingLister{cache: cache, strokes: []domain.Stroke{
		{ID: 1, Points: domain.Points{{X: 0, Y: 0}, {X: 8, Y: 8}}, Color: "#000000", Width: 2, Tool: domain.ToolBrush},
	}}
	svc := service.NewCanvasService(lister, cache, service.CanvasOptions{Width: 8, Height: 8})
	ctx := context.Background()

	data, err := svc.Refresh(ctx, "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = cache.GetCanvasImage(ctx, "s1")
	assert.ErrorIs(t, err, repository.ErrCanvasNotCached, "渲染期间失效的画布不能写入缓存")
}
