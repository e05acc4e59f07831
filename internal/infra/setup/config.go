package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 支持的数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DBOptions 数据库连接参数
type DBOptions struct {
	Driver   string // mysql | sqlite
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	// SQLitePath 为 sqlite 时的文件路径或 DSN，例如 "file::memory:?cache=shared"
	SQLitePath string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// mysqlDSN 构建 MySQL 连接字符串
func (o DBOptions) mysqlDSN() (string, error) {
	if o.User == "" {
		return "", fmt.Errorf("mysql user not set")
	}
	if o.Password == "" {
		// 不允许默认密码，强制显式配置
		return "", fmt.Errorf("mysql password not set")
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		o.User, o.Password, o.Host, o.Port, o.Name), nil
}

// InitDB 根据驱动打开数据库连接并配置连接池
func InitDB(opts DBOptions) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverMySQL, "":
		dsn, err := opts.mysqlDSN()
		if err != nil {
			return nil, fmt.Errorf("failed to build DSN: %w", err)
		}
		dialector = mysql.Open(dsn)
	case DriverSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = "canvas.db"
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	level := opts.LogLevel
	if level == 0 {
		level = logger.Warn
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if opts.Driver == DriverSQLite {
		// SQLite 只允许一个写者，单连接避免 database is locked
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(orDefault(opts.MaxOpenConns, 50))
		sqlDB.SetMaxIdleConns(orDefault(opts.MaxIdleConns, 10))
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 30 * time.Minute
	}
	sqlDB.SetConnMaxLifetime(lifetime)

	logrus.WithField("driver", opts.Driver).Info("Database connected")
	return db, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// RedisOptions Redis 连接参数
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// InitRedis 创建 Redis 客户端并 Ping 验证连通性
func InitRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     orDefault(opts.PoolSize, 20),
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	logrus.WithField("addr", opts.Addr).Info("Redis connected")
	return client, nil
}
