package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-canvas/internal/handler/http"
	wsHandler "collaborative-canvas/internal/handler/websocket"
	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/infra/observability"
	gormpersistence "collaborative-canvas/internal/infra/persistence/gorm"
	"collaborative-canvas/internal/infra/setup"
	redisstate "collaborative-canvas/internal/infra/state/redis"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/presence"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
	"collaborative-canvas/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	Worker      *worker.WorkerServer
	Hub         *hub.Hub
	Tracker     *presence.Tracker
	HttpServer  *http.Server

	shutdownTracing observability.Shutdown
	cancel          context.CancelFunc
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := newLogger(cfg)
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(log.Level)
	log.Info("Configuration loaded successfully")

	ctx := context.Background()
	shutdownTracing, err := observability.Setup(ctx, observability.Options{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.AppEnv,
		Enabled:      cfg.EnableTracing,
		OTLPEndpoint: cfg.OTLPEndpoint,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	// 3. 初始化基础设施
	db, err := setup.InitDB(cfg.DBOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(ctx, cfg.RedisOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Infrastructure initialized successfully")

	// 4. 初始化 Repositories
	strokeRepo := gormpersistence.NewGormStrokeRepository(db, gormpersistence.NewOrderAssigner())
	sessionRepo := gormpersistence.NewGormSessionRepository(db)
	broker := redisstate.NewRedisBroker(redisClient, cfg.KeyPrefix)
	presenceRepo := redisstate.NewRedisPresenceRepository(redisClient, cfg.KeyPrefix)
	canvasCache := redisstate.NewRedisCanvasCache(redisClient, cfg.KeyPrefix)

	// 5. 初始化 Services
	tracker := presence.NewTracker(presenceRepo, broker, cfg.PresenceTimeout,
		presence.WithCursorFlushInterval(cfg.CursorFlushInterval))
	enqueuer := tasks.NewEnqueuer(asynqClient, cfg.CanvasRenderDelay)
	collabService := service.NewCollaborationService(strokeRepo, sessionRepo, broker, tracker,
		service.WithCanvasRefresh(canvasCache, enqueuer))
	sessionService := service.NewSessionService(sessionRepo)
	canvasService := service.NewCanvasService(strokeRepo, canvasCache, service.CanvasOptions{
		Width:      cfg.CanvasWidth,
		Height:     cfg.CanvasHeight,
		Background: cfg.CanvasBackground,
		CacheTTL:   cfg.CanvasCacheTTL,
	})
	log.Info("Services initialized")

	// 6. Hub 与 Worker
	hubInstance := hub.NewHub(collabService)
	workerServer := worker.NewWorkerServer(redisClientOpt,
		worker.NewPresenceSweepHandler(tracker, cfg.PresenceTimeout),
		worker.NewCanvasRenderHandler(canvasService),
		worker.Options{Concurrency: cfg.WorkerConcurrency, SweepSchedule: cfg.PresenceSweepSchedule},
		log)

	// 7. Gin Engine 和路由
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Tracing(cfg.ServiceName))
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware(cfg.CORSOrigins))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	ws := router.Group("/ws")
	if cfg.AuthEnabled {
		api.Use(middleware.Auth(cfg.JWTSecret))
		ws.Use(middleware.Auth(cfg.JWTSecret))
	}
	httpHandler.RegisterRoutes(api,
		httpHandler.NewSessionHandler(sessionService),
		httpHandler.NewStrokeHandler(collabService),
		httpHandler.NewCanvasHandler(canvasService, sessionService))
	ws.GET("/sessions/:id", wsHandler.NewWebSocketHandler(hubInstance, collabService, cfg.CORSOrigins).HandleConnection)
	log.Info("Router setup complete")

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		Config:          cfg,
		Log:             log,
		DB:              db,
		RedisClient:     redisClient,
		AsynqClient:     asynqClient,
		Worker:          workerServer,
		Hub:             hubInstance,
		Tracker:         tracker,
		HttpServer:      httpServer,
		shutdownTracing: shutdownTracing,
	}, nil
}

func newLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel) // LoadConfig 已校验
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	return log
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Hub.Run(ctx)
	go a.Tracker.Run(ctx)
	if err := a.Worker.Start(); err != nil {
		a.Log.WithError(err).Error("Worker failed to start, background tasks are disabled")
	}
	a.Log.Info("Hub, presence tracker and worker started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()

	// 1. 停止接收新连接
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	// 2. 断开所有 WebSocket 参与者并离开在线列表
	if err := a.Hub.Shutdown(ctx); err != nil {
		a.Log.WithError(err).Warn("Hub shutdown did not complete in time")
	}
	if a.cancel != nil {
		a.cancel()
	}

	// 3. 关闭 Worker 与调度器
	a.Worker.Shutdown()

	if err := a.AsynqClient.Close(); err != nil {
		a.Log.Errorf("Error closing Asynq client: %v", err)
	}
	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Error closing Redis connection: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}
	if a.shutdownTracing != nil {
		_ = a.shutdownTracing(ctx)
	}
	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" && !strings.Contains(c.Request.URL.RawQuery, "token=") {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
			"request_id":  middleware.GetRequestID(c),
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
		} else if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed["*"] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID, X-Participant-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
