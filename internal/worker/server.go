// Package worker asynq 后台任务：通知投递与巡检提醒扫描
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auditflow/internal/config"
	"auditflow/internal/infra/queue"
	"auditflow/internal/notification"
	"auditflow/internal/worker/handlers"
	"auditflow/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server 任务处理服务器与周期任务调度器
type Server struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *zap.Logger
}

// NewServer 注册通知投递与提醒扫描处理器；reminderCron 为空时不注册周期任务
func NewServer(
	cfg config.RedisConfig,
	notifyCfg config.NotificationConfig,
	deliverer notification.Deliverer,
	reminders handlers.ReminderSender,
	logger *zap.Logger,
) (*Server, error) {
	redisOpt := queue.RedisOpt(cfg)
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueueNotifications: 6,
				tasks.QueueScheduled:     3,
				"default":                1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	window, err := ParseWindow(notifyCfg.ReminderWindow)
	if err != nil {
		return nil, err
	}

	mux := asynq.NewServeMux()
	notificationHandler := handlers.NewNotificationHandler(deliverer, logger)
	mux.HandleFunc(tasks.TypeDeliverNotification, notificationHandler.HandleDeliverNotification)
	reminderHandler := handlers.NewReminderHandler(reminders, window, logger)
	mux.HandleFunc(tasks.TypeReminderScan, reminderHandler.HandleReminderScan)

	s := &Server{server: srv, mux: mux, logger: logger}
	if notifyCfg.ReminderCron != "" {
		s.scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
		task, err := ReminderScanTask(notifyCfg.ReminderWindow)
		if err != nil {
			return nil, err
		}
		entryID, err := s.scheduler.Register(notifyCfg.ReminderCron, task,
			asynq.Queue(tasks.QueueScheduled),
			asynq.MaxRetry(3),
			asynq.Timeout(5*time.Minute),
		)
		if err != nil {
			return nil, fmt.Errorf("注册巡检提醒周期任务失败: %w", err)
		}
		logger.Info("巡检提醒周期任务已注册",
			zap.String("cron", notifyCfg.ReminderCron),
			zap.String("entry_id", entryID),
		)
	}
	return s, nil
}

// ParseWindow 解析提醒时间窗口，空值为 24h
func ParseWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("无效的 reminder_window: %q", raw)
	}
	return d, nil
}

// ReminderScanTask 构造提醒扫描任务
func ReminderScanTask(window string) (*asynq.Task, error) {
	payload, err := json.Marshal(tasks.ReminderScanPayload{Window: window})
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(tasks.TypeReminderScan, payload), nil
}

// Start 非阻塞启动处理器与调度器
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			s.server.Shutdown()
			return fmt.Errorf("启动调度器失败: %w", err)
		}
	}
	return nil
}

// Shutdown 停止调度器与处理器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	if s.scheduler != nil {
		s.scheduler.Shutdown()
	}
	s.server.Shutdown()
}
