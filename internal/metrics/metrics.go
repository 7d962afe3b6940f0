package metrics

import (
	"auditflow/internal/common"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditflow_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 审核生命周期指标
var (
	// AuditTransitionsTotal 审核状态迁移次数
	AuditTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_audit_transitions_total",
			Help: "审核状态迁移次数",
		},
		[]string{"from", "to", "action"},
	)

	// GuardRejectionsTotal 守卫拒绝次数（Conflict/Forbidden 等）
	GuardRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_guard_rejections_total",
			Help: "状态守卫拒绝次数",
		},
		[]string{"operation", "code"},
	)

	// ComplianceScore 最近一次计算的合规率
	ComplianceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditflow_compliance_percentage",
			Help:    "审核通过时的合规率分布",
			Buckets: []float64{50, 60, 70, 80, 90, 95, 100},
		},
	)
)

// 不符合项指标
var (
	// NCEventsTotal 不符合项事件
	NCEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_nc_events_total",
			Help: "不符合项事件次数",
		},
		[]string{"event", "ref_kind"},
	)
)

// 采集指标
var (
	// CaptureUpsertsTotal 采集行保存次数
	CaptureUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_capture_upserts_total",
			Help: "采集行保存次数",
		},
		[]string{"kind", "result"},
	)

	// CaptureUpsertRetriesTotal 唯一约束冲突后的重试次数
	CaptureUpsertRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_capture_upsert_retries_total",
			Help: "采集行唯一约束冲突重试次数",
		},
		[]string{"kind"},
	)
)

// 通知指标
var (
	// NotificationsTotal 通知投递次数
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditflow_notifications_total",
			Help: "通知投递次数",
		},
		[]string{"kind", "channel", "status"},
	)

	// EventSubscribers 当前事件流订阅数
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditflow_event_subscribers",
			Help: "当前审核事件流订阅数",
		},
	)
)

// RecordGuardRejection 记录守卫拒绝
func RecordGuardRejection(operation string, code int) {
	GuardRejectionsTotal.WithLabelValues(operation, codeLabel(code)).Inc()
}

func codeLabel(code int) string {
	switch code {
	case common.CodeInvalidRequest:
		return "validation"
	case common.CodeForbidden:
		return "forbidden"
	case common.CodeNotFound:
		return "not_found"
	case common.CodeConflict:
		return "conflict"
	default:
		return "other"
	}
}
