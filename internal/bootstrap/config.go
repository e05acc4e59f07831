package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"

	"collaborative-canvas/internal/infra/setup"
)

// Config 保存从环境变量 (以及可选的 .env 文件) 加载的配置
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"collaborative-canvas"`
	AppEnv          string        `env:"APP_ENV" envDefault:"development"`
	ServerPort      int           `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// 数据库
	DBDriver     string `env:"DB_DRIVER" envDefault:"mysql"`
	DBUser       string `env:"DB_USER"`
	DBPassword   string `env:"DB_PASSWORD"`
	DBHost       string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort       string `env:"DB_PORT" envDefault:"3306"`
	DBName       string `env:"DB_NAME" envDefault:"canvas"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"canvas.db"`
	DBMaxOpen    int    `env:"DB_MAX_OPEN_CONNS" envDefault:"50"`
	DBMaxIdle    int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBLogQueries bool   `env:"DB_LOG_QUERIES" envDefault:"false"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"cc:"`

	// 认证：token 由外部签发，这里只校验
	AuthEnabled bool   `env:"AUTH_ENABLED" envDefault:"false"`
	JWTSecret   string `env:"JWT_SECRET"`

	// 限流
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`

	// 在线状态
	PresenceTimeout       time.Duration `env:"PRESENCE_TIMEOUT" envDefault:"60s"`
	PresenceSweepSchedule string        `env:"PRESENCE_SWEEP_SCHEDULE" envDefault:"@every 30s"`
	CursorFlushInterval   time.Duration `env:"CURSOR_FLUSH_INTERVAL" envDefault:"50ms"`

	// 画布导出
	CanvasWidth       int           `env:"CANVAS_WIDTH" envDefault:"1920"`
	CanvasHeight      int           `env:"CANVAS_HEIGHT" envDefault:"1080"`
	CanvasBackground  string        `env:"CANVAS_BACKGROUND" envDefault:"#FFFFFF"`
	CanvasCacheTTL    time.Duration `env:"CANVAS_CACHE_TTL" envDefault:"10m"`
	CanvasRenderDelay time.Duration `env:"CANVAS_RENDER_DEBOUNCE" envDefault:"2s"`

	// 后台任务
	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"10"`

	// OpenTelemetry
	EnableTracing bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
}

// LoadConfig 加载 .env (如果存在) 后解析环境变量
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量
	return parseConfig()
}

func parseConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	switch cfg.DBDriver {
	case setup.DriverMySQL:
		if cfg.DBUser == "" || cfg.DBPassword == "" {
			return nil, fmt.Errorf("DB_USER and DB_PASSWORD are required when DB_DRIVER is mysql")
		}
	case setup.DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q, expected mysql or sqlite", cfg.DBDriver)
	}
	if cfg.AuthEnabled && strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is true")
	}
	if cfg.PresenceTimeout <= 0 {
		return nil, fmt.Errorf("PRESENCE_TIMEOUT must be positive")
	}
	if cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		return nil, fmt.Errorf("CANVAS_WIDTH and CANVAS_HEIGHT must be positive")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// Addr 返回 HTTP 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// IsProduction 生产环境使用 JSON 日志与 gin release 模式
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// DBOptions 转换为数据库连接参数
func (c *Config) DBOptions() setup.DBOptions {
	level := logger.Warn
	if c.DBLogQueries {
		level = logger.Info
	}
	return setup.DBOptions{
		Driver:       c.DBDriver,
		User:         c.DBUser,
		Password:     c.DBPassword,
		Host:         c.DBHost,
		Port:         c.DBPort,
		Name:         c.DBName,
		SQLitePath:   c.SQLitePath,
		MaxOpenConns: c.DBMaxOpen,
		MaxIdleConns: c.DBMaxIdle,
		LogLevel:     level,
	}
}

// RedisOptions 转换为 Redis 连接参数
func (c *Config) RedisOptions() setup.RedisOptions {
	return setup.RedisOptions{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}
