package tasks

// Task Types
const (
	TypeDeliverNotification = "notification:deliver"
	TypeReminderScan        = "audit:reminder_scan"
)

// Queues
const (
	QueueNotifications = "notifications"
	QueueScheduled     = "scheduled"
)

// NotificationPayload 通知投递任务载荷
type NotificationPayload struct {
	Recipient string `json:"recipient"` // 用户ID
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	AuditID   string `json:"audit_id,omitempty"`
	Kind      string `json:"kind,omitempty"` // nc_raised, nc_resolved, reminder ...
}

// ReminderScanPayload 巡检提醒扫描任务载荷
type ReminderScanPayload struct {
	Window string `json:"window"` // time.ParseDuration 格式，空值使用配置
}
