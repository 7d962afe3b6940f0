package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"auditflow/internal/notification"
	"auditflow/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NotificationHandler 通过配置的渠道投递通知
type NotificationHandler struct {
	deliverer notification.Deliverer
	logger    *zap.Logger
}

func NewNotificationHandler(deliverer notification.Deliverer, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		deliverer: deliverer,
		logger:    logger,
	}
}

func (h *NotificationHandler) HandleDeliverNotification(ctx context.Context, t *asynq.Task) error {
	var p tasks.NotificationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if p.Recipient == "" {
		h.logger.Warn("通知缺少收件人，丢弃", zap.String("kind", p.Kind), zap.String("audit_id", p.AuditID))
		return nil
	}

	msg := notification.Message{
		Recipient: p.Recipient,
		Subject:   p.Subject,
		Body:      p.Body,
		AuditID:   p.AuditID,
		Kind:      p.Kind,
	}
	if err := notification.Deliver(ctx, h.deliverer, msg); err != nil {
		h.logger.Error("通知投递失败",
			zap.String("recipient", p.Recipient),
			zap.String("kind", p.Kind),
			zap.String("channel", h.deliverer.Channel()),
			zap.Error(err),
		)
		return err
	}

	h.logger.Debug("通知已投递",
		zap.String("recipient", p.Recipient),
		zap.String("kind", p.Kind),
	)
	return nil
}
