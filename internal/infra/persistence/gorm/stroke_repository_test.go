package gormpersistence_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"collaborative-canvas/internal/domain"
	gormpersistence "collaborative-canvas/internal/infra/persistence/gorm"
	"collaborative-canvas/internal/infra/setup"
	"collaborative-canvas/internal/repository"
)

// newTestDB 为每个测试创建独立的内存 SQLite 数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := setup.InitDB(setup.DBOptions{
		Driver:     setup.DriverSQLite,
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		LogLevel:   logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func line(x0, y0, x1, y1 float64) domain.StrokeDraft {
	return domain.StrokeDraft{
		Points: domain.Points{{X: x0, Y: y0}, {X: x1, Y: y1}},
		Color:  "#FF0000",
		Width:  3,
		Tool:   domain.ToolBrush,
	}
}

func TestStrokeRepository_AppendAssignsContiguousOrder(t *testing.T) {
	repo := gormpersistence.NewGormStrokeRepository(newTestDB(t), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s, err := repo.Append(ctx, "s1", "user-a", line(0, 0, float64(i), float64(i)))
		require.NoError(t, err)
		assert.Equal(t, int64(i), s.OrderIndex)
		assert.NotZero(t, s.ID)
	}

	// 不同会话有独立的计数器
	other, err := repo.Append(ctx, "s2", "user-a", line(0, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.OrderIndex)

	strokes, err := repo.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, strokes, 5)
	for i, s := range strokes {
		assert.Equal(t, int64(i), s.OrderIndex, "List 必须按 order_index 升序")
		assert.Equal(t, domain.Points{{X: 0, Y: 0}, {X: float64(i), Y: float64(i)}}, s.Points)
	}
}

func TestStrokeRepository_ConcurrentAppendsNeverCollide(t *testing.T) {
	repo := gormpersistence.NewGormStrokeRepository(newTestDB(t), nil)
	ctx := context.Background()

	const n = 24
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			author := fmt.Sprintf("user-%d", i%3)
			if _, err := repo.Append(ctx, "busy", author, line(0, 0, float64(i), 1)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	strokes, err := repo.List(ctx, "busy")
	require.NoError(t, err)
	require.Len(t, strokes, n)
	seen := make(map[int64]bool, n)
	for i, s := range strokes {
		assert.False(t, seen[s.OrderIndex], "order_index %d 重复", s.OrderIndex)
		seen[s.OrderIndex] = true
		assert.Equal(t, int64(i), s.OrderIndex)
	}
}

func TestStrokeRepository_DeleteLatest(t *testing.T) {
	repo := gormpersistence.NewGormStrokeRepository(newTestDB(t), nil)
	ctx := context.Background()

	_, err := repo.DeleteLatest(ctx, "empty")
	assert.ErrorIs(t, err, repository.ErrNotFound, "空会话撤销应返回 ErrNotFound")

	first, err := repo.Append(ctx, "s1", "user-a", line(0, 0, 1, 1))
	require.NoError(t, err)
	second, err := repo.Append(ctx, "s1", "user-b", line(1, 1, 2, 2))
	require.NoError(t, err)

	removed, err := repo.DeleteLatest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, removed.ID)

	strokes, err := repo.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, strokes, 1)
	assert.Equal(t, first.ID, strokes[0].ID)

	// 撤销后新笔画不复用已删除的 ID
	third, err := repo.Append(ctx, "s1", "user-a", line(2, 2, 3, 3))
	require.NoError(t, err)
	assert.Greater(t, third.ID, second.ID)
	assert.Equal(t, int64(2), third.OrderIndex)
}

func TestStrokeRepository_ConcurrentUndoOfSameStrokeHasOneWinner(t *testing.T) {
	repo := gormpersistence.NewGormStrokeRepository(newTestDB(t), nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := repo.Append(ctx, "s1", "user-a", line(0, 0, 1, float64(i)))
		require.NoError(t, err)
	}
	strokes, err := repo.List(ctx, "s1")
	require.NoError(t, err)
	observed := strokes[len(strokes)-1]

	// 两个撤销观察到同一条最大笔画
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.DeleteIfLatest(ctx, "s1", observed)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, notFound int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, repository.ErrNotFound):
			notFound++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, notFound, "竞争失败的撤销不能删除第二条笔画")

	survivors, err := repo.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, survivors, 2)
	assert.Equal(t, []int64{0, 1}, []int64{survivors[0].OrderIndex, survivors[1].OrderIndex})
}

func TestStrokeRepository_DeleteIfLatestRejectsStaleObservation(t *testing.T) {
	repo := gormpersistence.NewGormStrokeRepository(newTestDB(t), nil)
	ctx := context.Background()
	first, err := repo.Append(ctx, "s1", "user-a", line(0, 0, 1, 1))
	require.NoError(t, err)
	_, err = repo.Append(ctx, "s1", "user-b", line(1, 1, 2, 2))
	require.NoError(t, err)

	_, err = repo.DeleteIfLatest(ctx, "s1", *first)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	count, err := repo.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStrokeRepository_DeleteAllResetsCounter(t *testing.T) {
	repo := gormpersistence.NewGormStrokeRepository(newTestDB(t), nil)
	ctx := context.Background()
	var last *domain.Stroke
	for i := 0; i < 4; i++ {
		s, err := repo.Append(ctx, "s1", "user-a", line(0, 0, 1, float64(i)))
		require.NoError(t, err)
		last = s
	}
	_, err := repo.Append(ctx, "s2", "user-a", line(0, 0, 1, 1))
	require.NoError(t, err)

	deleted, err := repo.DeleteAll(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	count, err := repo.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, count)

	next, err := repo.Append(ctx, "s1", "user-b", line(5, 5, 6, 6))
	require.NoError(t, err)
	assert.Equal(t, int64(0), next.OrderIndex, "清空后计数器应从 0 重新开始")
	assert.Greater(t, next.ID, last.ID, "笔画 ID 永不复用")

	// 其他会话不受影响
	untouched, err := repo.List(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, untouched, 1)

	// 清空空会话是合法的
	deleted, err = repo.DeleteAll(ctx, "never-used")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestStrokeRepository_ClosedDatabaseIsUnavailable(t *testing.T) {
	db := newTestDB(t)
	repo := gormpersistence.NewGormStrokeRepository(db, nil)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = repo.Append(context.Background(), "s1", "user-a", line(0, 0, 1, 1))
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}

func TestSessionRepository_CreateAndFind(t *testing.T) {
	repo := gormpersistence.NewGormSessionRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Session{ID: "abc", Name: "Sketch"}))
	err := repo.Create(ctx, &domain.Session{ID: "abc", Name: "Again"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)

	found, err := repo.FindByID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Sketch", found.Name)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}
