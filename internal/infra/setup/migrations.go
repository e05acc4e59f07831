package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"collaborative-canvas/internal/domain"
)

// MigrateDB 迁移所有表。MySQL 下 strokes 表用自定义 SQL 创建，以固定索引和列类型。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if db.Dialector.Name() == DriverMySQL {
		if err := migrateStrokesTable(db); err != nil {
			return fmt.Errorf("failed to migrate strokes table: %w", err)
		}
	}

	err := db.AutoMigrate(
		&domain.Session{},
		&domain.SessionCounter{},
		&domain.Stroke{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	// 唯一索引是 order_index 不冲突的最后防线，缺失时直接失败
	if !db.Migrator().HasIndex(&domain.Stroke{}, "idx_strokes_session_order") {
		return fmt.Errorf("unique index idx_strokes_session_order is missing on strokes")
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// migrateStrokesTable 表不存在时用原生 SQL 创建 strokes 表
func migrateStrokesTable(db *gorm.DB) error {
	var count int64
	err := db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'strokes'").
		Scan(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	sql := `
	CREATE TABLE strokes (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		author_id VARCHAR(64) NOT NULL,
		order_index BIGINT NOT NULL,
		points MEDIUMTEXT NOT NULL,
		color VARCHAR(32) NOT NULL,
		width DOUBLE NOT NULL,
		tool VARCHAR(16) NOT NULL,
		created_at DATETIME(3),
		UNIQUE INDEX idx_strokes_session_order (session_id, order_index)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		logrus.Errorf("Failed to create strokes table: %v", err)
		return err
	}
	logrus.Info("Strokes table created successfully")
	return nil
}
