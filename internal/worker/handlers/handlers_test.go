package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"auditflow/internal/notification"
	"auditflow/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDeliverer struct {
	msgs   []notification.Message
	retErr error
}

func (f *fakeDeliverer) Channel() string { return "fake" }

func (f *fakeDeliverer) Deliver(_ context.Context, msg notification.Message) error {
	f.msgs = append(f.msgs, msg)
	return f.retErr
}

func TestNotificationHandler_Success(t *testing.T) {
	d := &fakeDeliverer{}
	h := NewNotificationHandler(d, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.NotificationPayload{Recipient: "process-owner", Subject: "NC raised", AuditID: "a-1", Kind: notification.KindNCRaised})

	require.NoError(t, h.HandleDeliverNotification(context.Background(), asynq.NewTask(tasks.TypeDeliverNotification, payload)))
	require.Len(t, d.msgs, 1)
	assert.Equal(t, notification.Message{Recipient: "process-owner", Subject: "NC raised", AuditID: "a-1", Kind: notification.KindNCRaised}, d.msgs[0])
}

func TestNotificationHandler_DeliverError(t *testing.T) {
	expectedErr := errors.New("smtp down")
	d := &fakeDeliverer{retErr: expectedErr}
	h := NewNotificationHandler(d, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.NotificationPayload{Recipient: "l1-inspector", Kind: notification.KindReminder})

	err := h.HandleDeliverNotification(context.Background(), asynq.NewTask(tasks.TypeDeliverNotification, payload))
	assert.ErrorIs(t, err, expectedErr)
}

func TestNotificationHandler_BadPayloads(t *testing.T) {
	d := &fakeDeliverer{}
	h := NewNotificationHandler(d, zaptest.NewLogger(t))

	err := h.HandleDeliverNotification(context.Background(), asynq.NewTask(tasks.TypeDeliverNotification, []byte("not-json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(tasks.NotificationPayload{Subject: "nobody"})
	assert.NoError(t, h.HandleDeliverNotification(context.Background(), asynq.NewTask(tasks.TypeDeliverNotification, payload)))
	assert.Empty(t, d.msgs)
}

type fakeSender struct {
	windows []time.Duration
	retErr  error
}

func (f *fakeSender) SendReminders(_ context.Context, window time.Duration) (int, error) {
	f.windows = append(f.windows, window)
	return 3, f.retErr
}

func TestReminderHandler(t *testing.T) {
	s := &fakeSender{}
	h := NewReminderHandler(s, 0, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, h.HandleReminderScan(ctx, asynq.NewTask(tasks.TypeReminderScan, nil)))

	payload, _ := json.Marshal(tasks.ReminderScanPayload{Window: "48h"})
	require.NoError(t, h.HandleReminderScan(ctx, asynq.NewTask(tasks.TypeReminderScan, payload)))
	assert.Equal(t, []time.Duration{24 * time.Hour, 48 * time.Hour}, s.windows)

	payload, _ = json.Marshal(tasks.ReminderScanPayload{Window: "soon"})
	assert.ErrorIs(t, h.HandleReminderScan(ctx, asynq.NewTask(tasks.TypeReminderScan, payload)), asynq.SkipRetry)

	s.retErr = errors.New("db gone")
	assert.ErrorIs(t, h.HandleReminderScan(ctx, asynq.NewTask(tasks.TypeReminderScan, nil)), s.retErr)
}
