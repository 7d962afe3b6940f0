package notification

import (
	"context"
	"sync"
	"time"

	"auditflow/internal/logger"
	"auditflow/internal/worker/tasks"

	"go.uber.org/zap"
)

// 通知类别
const (
	KindAuditAssigned = "audit_assigned"
	KindRoleAssigned  = "role_assigned"
	KindSubmitted     = "audit_submitted"
	KindRejected      = "audit_rejected"
	KindReminder      = "audit_reminder"
	KindNCRaised      = "nc_raised"
	KindNCResolved    = "nc_resolved"
	KindNCVerified    = "nc_verified"
)

// Message 一条待投递的通知，Recipient 为用户ID
type Message struct {
	Recipient string
	Subject   string
	Body      string
	AuditID   string
	Kind      string
}

// Sink 业务侧的通知出口，事务提交后调用，失败不回滚业务
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop 丢弃所有通知
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// Enqueuer 任务队列写入接口
type Enqueuer interface {
	EnqueueNotification(payload tasks.NotificationPayload) error
}

// QueueSink 写入 asynq 通知队列，由 worker 异步投递
type QueueSink struct {
	queue Enqueuer
}

// NewQueueSink 创建队列通知出口
func NewQueueSink(queue Enqueuer) *QueueSink {
	return &QueueSink{queue: queue}
}

func (s *QueueSink) Notify(ctx context.Context, msg Message) error {
	err := s.queue.EnqueueNotification(tasks.NotificationPayload{
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Body:      msg.Body,
		AuditID:   msg.AuditID,
		Kind:      msg.Kind,
	})
	if err != nil {
		return err
	}
	logger.WithContext(ctx).Debug("通知已入队",
		zap.String("recipient", msg.Recipient),
		zap.String("kind", msg.Kind),
		zap.String("audit_id", msg.AuditID),
	)
	return nil
}

// DirectSink 未配置队列时在后台协程投递，请求不等待渠道响应
type DirectSink struct {
	deliverer Deliverer
	timeout   time.Duration
	wg        sync.WaitGroup
}

// DefaultDirectTimeout 单条通知的投递时限
const DefaultDirectTimeout = 15 * time.Second

// NewDirectSink 创建后台投递出口
func NewDirectSink(d Deliverer) *DirectSink {
	return &DirectSink{deliverer: d, timeout: DefaultDirectTimeout}
}

// Notify 立即返回；投递脱离请求上下文的取消，使用独立时限，失败只记录日志
func (s *DirectSink) Notify(ctx context.Context, msg Message) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := Deliver(dctx, s.deliverer, msg); err != nil {
			logger.WithContext(dctx).Warn("通知投递失败",
				zap.String("recipient", msg.Recipient),
				zap.String("kind", msg.Kind),
				zap.String("audit_id", msg.AuditID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Close 等待在途投递结束
func (s *DirectSink) Close() {
	s.wg.Wait()
}
