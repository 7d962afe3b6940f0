package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auditflow/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ReminderSender 巡检提醒发送抽象，便于注入 mock
type ReminderSender interface {
	SendReminders(ctx context.Context, window time.Duration) (int, error)
}

type ReminderHandler struct {
	sender        ReminderSender
	defaultWindow time.Duration
	logger        *zap.Logger
}

func NewReminderHandler(sender ReminderSender, defaultWindow time.Duration, logger *zap.Logger) *ReminderHandler {
	if defaultWindow <= 0 {
		defaultWindow = 24 * time.Hour
	}
	return &ReminderHandler{
		sender:        sender,
		defaultWindow: defaultWindow,
		logger:        logger,
	}
}

func (h *ReminderHandler) HandleReminderScan(ctx context.Context, t *asynq.Task) error {
	window := h.defaultWindow
	if len(t.Payload()) > 0 {
		var p tasks.ReminderScanPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
		}
		if p.Window != "" {
			d, err := time.ParseDuration(p.Window)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid reminder window %q: %w", p.Window, asynq.SkipRetry)
			}
			window = d
		}
	}

	sent, err := h.sender.SendReminders(ctx, window)
	if err != nil {
		h.logger.Error("巡检提醒扫描失败", zap.Duration("window", window), zap.Error(err))
		return err
	}

	h.logger.Info("巡检提醒扫描完成", zap.Duration("window", window), zap.Int("sent", sent))
	return nil
}
