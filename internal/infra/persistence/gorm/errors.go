package gormpersistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"collaborative-canvas/internal/repository"
)

// isDuplicateEntryError 判断是否违反唯一约束 (MySQL 1062 或 SQLite UNIQUE constraint)。
func isDuplicateEntryError(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// wrapStoreError 将底层错误映射为仓库错误。
// 唯一约束冲突映射为 ErrDuplicateEntry，其余一律视为后端不可用。
func wrapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("gorm: %s: %w", op, err)
	case isDuplicateEntryError(err):
		return fmt.Errorf("gorm: %s: %w", op, repository.ErrDuplicateEntry)
	default:
		return fmt.Errorf("gorm: %s: %w: %w", op, repository.ErrUnavailable, err)
	}
}
