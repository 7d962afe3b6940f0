package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"auditflow/internal/config"
	"auditflow/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueNotification(payload tasks.NotificationPayload) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// RedisOpt 转换为 asynq 连接参数
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	return &asynqClient{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *asynqClient) EnqueueNotification(payload tasks.NotificationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	// 通知投递失败由 asynq 重试，不影响触发它的业务操作
	_, err = c.client.Enqueue(asynq.NewTask(tasks.TypeDeliverNotification, data),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Queue(tasks.QueueNotifications),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
