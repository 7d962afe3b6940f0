package api

import (
	"fmt"
	"os"
	"strings"

	"auditflow/api/handlers/audits"
	evidenceHandlers "auditflow/api/handlers/evidence"
	"auditflow/api/handlers/ncs"
	"auditflow/api/handlers/templates"
	"auditflow/internal/audit"
	"auditflow/internal/auth"
	"auditflow/internal/capture"
	"auditflow/internal/config"
	"auditflow/internal/evidence"
	"auditflow/internal/infra"
	"auditflow/internal/infra/queue"
	"auditflow/internal/lifecycle"
	"auditflow/internal/logger"
	"auditflow/internal/middleware"
	"auditflow/internal/nonconformance"
	"auditflow/internal/notification"
	"auditflow/internal/scoring"
	"auditflow/internal/template"
	"auditflow/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用容器，集中管理所有服务依赖
type AppContainer struct {
	// 基础设施
	DB          *gorm.DB
	Config      *config.Config
	RedisClient redis.UniversalClient // Redis 不可用时为 nil
	QueueClient queue.Client          // Redis 不可用时为 nil

	// 认证与限流
	JWTService  *auth.JWTService
	RateLimiter *middleware.RateLimiter

	// 核心服务
	Catalog   *template.Catalog
	Recorder  *audit.Recorder
	EventBus  *lifecycle.EventBus
	Lifecycle *lifecycle.Manager
	NCs       *nonconformance.Engine
	Capture   *capture.Service
	Scoring   *scoring.Engine
	Evidence  *evidence.DiskStore

	// 通知
	Deliverer notification.Deliverer
	Notifier  notification.Sink

	// 后台任务，Redis 不可用时为 nil
	WorkerServer *worker.Server
}

// Handlers 所有 HTTP 处理器
type Handlers struct {
	Audits    *audits.Handler
	NCs       *ncs.Handler
	Templates *templates.Handler
	Evidence  *evidenceHandlers.Handler
}

// InitContainer 初始化应用容器
func InitContainer(db *gorm.DB, cfg *config.Config) (*AppContainer, error) {
	container := &AppContainer{
		DB:     db,
		Config: cfg,
	}

	container.initRedis(cfg)

	if err := container.initAuth(cfg); err != nil {
		return nil, err
	}

	if err := container.initNotification(cfg); err != nil {
		return nil, err
	}

	if err := container.initCoreServices(db, cfg); err != nil {
		return nil, err
	}

	if err := container.initWorker(cfg); err != nil {
		return nil, err
	}

	return container, nil
}

// InitHandlers 创建全部处理器
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		Audits:    audits.NewHandler(c.Lifecycle, c.Capture, c.Scoring, c.Recorder),
		NCs:       ncs.NewHandler(c.NCs),
		Templates: templates.NewHandler(c.Catalog),
		Evidence:  evidenceHandlers.NewHandler(c.Evidence),
	}
}

// Close 释放容器持有的连接
func (c *AppContainer) Close() {
	if c.RateLimiter != nil {
		c.RateLimiter.Stop()
	}
	if sink, ok := c.Notifier.(*notification.DirectSink); ok {
		sink.Close()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warn("关闭任务队列客户端失败", zap.Error(err))
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			logger.Warn("关闭 Redis 连接失败", zap.Error(err))
		}
	}
}

// initRedis Redis 不可用时退回无缓存、进程内通知、无周期任务
func (c *AppContainer) initRedis(cfg *config.Config) {
	redisCfg := normalizeRedisConfig(cfg.Redis)
	cfg.Redis = redisCfg
	if redisCfg.Mode == "disabled" {
		logger.Info("Redis 已禁用，模板缓存与队列通知不可用")
		return
	}

	client, err := infra.NewRedis(&redisCfg)
	if err != nil {
		logger.Warn("Redis 不可用，模板缓存、令牌黑名单与异步通知将关闭", zap.Error(err))
		return
	}
	c.RedisClient = client
	c.QueueClient = queue.NewClient(redisCfg)
}

func (c *AppContainer) initAuth(cfg *config.Config) error {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	secret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if secret == "" {
		// 生产模式必须显式配置密钥
		if strings.EqualFold(cfg.Server.Mode, "release") || strings.EqualFold(appEnv, "prod") || strings.EqualFold(appEnv, "production") {
			return fmt.Errorf("auth.jwt_secret 未配置，生产环境禁止使用默认密钥")
		}
		secret = "dev_only_jwt_secret_change_me"
		logger.Warn("auth.jwt_secret 未配置，已回退为开发默认值")
	}
	issuer := cfg.Auth.Issuer
	if issuer == "" {
		issuer = "auditflow"
	}
	c.JWTService = auth.NewJWTService(secret, issuer, c.RedisClient)

	if cfg.Server.RateLimitRPS > 0 {
		rl := middleware.DefaultRateLimiterConfig()
		rl.RequestsPerSecond = cfg.Server.RateLimitRPS
		if cfg.Server.RateLimitBurst > 0 {
			rl.BurstSize = cfg.Server.RateLimitBurst
		}
		c.RateLimiter = middleware.NewRateLimiter(rl)
	}
	return nil
}

// initNotification 有队列时经 worker 投递，否则在进程内后台投递
func (c *AppContainer) initNotification(cfg *config.Config) error {
	deliverer, err := notification.NewDeliverer(cfg.Notification)
	if err != nil {
		return fmt.Errorf("初始化通知投递失败: %w", err)
	}
	c.Deliverer = deliverer
	if c.QueueClient != nil {
		c.Notifier = notification.NewQueueSink(c.QueueClient)
	} else {
		c.Notifier = notification.NewDirectSink(deliverer)
	}
	logger.Info("通知投递已初始化",
		zap.String("channel", deliverer.Channel()),
		zap.Bool("queued", c.QueueClient != nil),
	)
	return nil
}

func (c *AppContainer) initCoreServices(db *gorm.DB, cfg *config.Config) error {
	var cache template.Cache
	if c.RedisClient != nil {
		cache = template.NewRedisCache(c.RedisClient)
	}
	c.Catalog = template.NewCatalog(db, cache)
	c.Recorder = audit.NewRecorder(db)
	c.EventBus = lifecycle.NewEventBus(&lifecycle.EventBusConfig{BufferSize: 32})
	c.Lifecycle = lifecycle.NewManager(db, c.Recorder,
		lifecycle.WithTemplates(c.Catalog),
		lifecycle.WithEventBus(c.EventBus),
		lifecycle.WithNotifier(c.Notifier),
		lifecycle.WithManagerLogger(logger.Get()),
	)
	c.NCs = nonconformance.NewEngine(db, c.Recorder, c.Lifecycle)
	c.Capture = capture.NewService(db, c.Catalog, c.Lifecycle, c.NCs, cfg.Capture.UpsertRetries)
	c.Scoring = scoring.NewEngine(db, c.Recorder)

	store, err := evidence.NewDiskStore(cfg.Evidence)
	if err != nil {
		return fmt.Errorf("初始化证据存储失败: %w", err)
	}
	c.Evidence = store
	return nil
}

func (c *AppContainer) initWorker(cfg *config.Config) error {
	if c.QueueClient == nil {
		logger.Warn("任务队列不可用，巡检提醒周期任务未启动")
		return nil
	}
	server, err := worker.NewServer(cfg.Redis, cfg.Notification, c.Deliverer, c.Lifecycle, logger.Get())
	if err != nil {
		return fmt.Errorf("初始化 Worker 失败: %w", err)
	}
	c.WorkerServer = server
	return nil
}
