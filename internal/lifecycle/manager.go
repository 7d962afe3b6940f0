package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auditflow/internal/audit"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/logger"
	"auditflow/internal/metrics"
	"auditflow/internal/notification"
	"auditflow/internal/scoring"
	"auditflow/internal/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NCLedger 不符合项计数，提交与撤回时在同一事务内实时查询
type NCLedger interface {
	CountOpen(tx *gorm.DB, auditID string) (int64, error)
	CountUnclosed(tx *gorm.DB, auditID string) (int64, error)
}

// TemplateLookup 模板目录只读查询
type TemplateLookup interface {
	Get(ctx context.Context, templateID string) (*template.ChecklistTemplate, error)
	QuestionsFor(ctx context.Context, templateID string) ([]template.Question, error)
}

// Manager 审核生命周期状态机
type Manager struct {
	db        *gorm.DB
	recorder  *audit.Recorder
	templates TemplateLookup
	ledger    NCLedger
	bus       *EventBus
	notifier  notification.Sink
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// ManagerOption 自定义配置
type ManagerOption func(*Manager)

// WithEventBus 注入事件总线
func WithEventBus(bus *EventBus) ManagerOption {
	return func(m *Manager) { m.bus = bus }
}

// WithNotifier 注入通知投递
func WithNotifier(sink notification.Sink) ManagerOption {
	return func(m *Manager) { m.notifier = sink }
}

// WithNCLedger 注入不符合项计数
func WithNCLedger(ledger NCLedger) ManagerOption {
	return func(m *Manager) { m.ledger = ledger }
}

// WithTemplates 注入模板目录
func WithTemplates(templates TemplateLookup) ManagerOption {
	return func(m *Manager) { m.templates = templates }
}

// WithManagerLogger 注入自定义日志器
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager 创建生命周期管理器
func NewManager(db *gorm.DB, recorder *audit.Recorder, opts ...ManagerOption) *Manager {
	m := &Manager{
		db:       db,
		recorder: recorder,
		ledger:   tableLedger{},
		bus:      NewEventBus(nil),
		notifier: notification.Nop{},
		logger:   logger.Get(),
		tracer:   otel.Tracer("auditflow/internal/lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// SetNCLedger 设置不符合项计数（nonconformance 引擎创建后回填）
func (m *Manager) SetNCLedger(ledger NCLedger) {
	if ledger != nil {
		m.ledger = ledger
	}
}

// SetNotifier 设置通知投递
func (m *Manager) SetNotifier(sink notification.Sink) {
	if sink != nil {
		m.notifier = sink
	}
}

// Bus 事件总线
func (m *Manager) Bus() *EventBus {
	return m.bus
}

// Transition 一次已写入的状态迁移，提交后用于发布事件
type Transition struct {
	AuditID string
	From    domain.AuditStatus
	To      domain.AuditStatus
	Action  audit.Action
	ActorID string
	Detail  any
	At      time.Time
}

// transition 写入新状态与审计日志，调用方须已持有审核行锁
func (m *Manager) transition(tx *gorm.DB, a *domain.Audit, to domain.AuditStatus, action audit.Action, actorID string, detail audit.Detail, extra map[string]any) (*Transition, error) {
	from := a.Status
	now := m.now()

	updates := map[string]any{"status": to, "updated_at": now}
	for k, v := range extra {
		updates[k] = v
	}
	if err := tx.Model(&domain.Audit{}).Where("id = ?", a.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新审核状态失败: %w", err)
	}

	detail.From = string(from)
	detail.To = string(to)
	if _, err := m.recorder.Append(tx, audit.Entry{
		AuditID: a.ID,
		Action:  action,
		ActorID: actorID,
		Detail:  detail,
	}); err != nil {
		return nil, err
	}

	a.Status = to
	a.UpdatedAt = now
	return &Transition{AuditID: a.ID, From: from, To: to, Action: action, ActorID: actorID, Detail: detail, At: now}, nil
}

// Emit 事务提交后发布迁移事件并计数
func (m *Manager) Emit(ctx context.Context, ts ...*Transition) {
	for _, t := range ts {
		if t == nil {
			continue
		}
		metrics.AuditTransitionsTotal.WithLabelValues(string(t.From), string(t.To), string(t.Action)).Inc()
		m.bus.Publish(Event{
			AuditID:    t.AuditID,
			Action:     string(t.Action),
			From:       string(t.From),
			To:         string(t.To),
			ActorID:    t.ActorID,
			Detail:     t.Detail,
			OccurredAt: t.At,
		})
		m.log(ctx).Info("审核状态变更",
			zap.String("audit_id", t.AuditID),
			zap.String("action", string(t.Action)),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
		)
	}
}

// PublishAction 发布不改变状态的动作（评分、整改、验证）
func (m *Manager) PublishAction(auditID string, action audit.Action, actorID string, detail any) {
	m.bus.Publish(Event{
		AuditID:    auditID,
		Action:     string(action),
		ActorID:    actorID,
		Detail:     detail,
		OccurredAt: m.now(),
	})
}

// Notify 投递通知，失败只记录日志，不影响触发它的操作
func (m *Manager) Notify(ctx context.Context, msg notification.Message) {
	if msg.Recipient == "" {
		return
	}
	if err := m.notifier.Notify(ctx, msg); err != nil {
		m.log(ctx).Warn("通知投递失败",
			zap.String("recipient", msg.Recipient),
			zap.String("kind", msg.Kind),
			zap.String("audit_id", msg.AuditID),
			zap.Error(err),
		)
	}
}

func (m *Manager) log(ctx context.Context) *zap.Logger {
	return m.logger.With(logger.Fields(ctx)...)
}

func (m *Manager) reject(op string, err error) error {
	if be, ok := common.AsBusinessError(err); ok {
		metrics.RecordGuardRejection(op, be.Code)
	}
	return err
}

// ============================================================================
// 采集与不符合项引擎请求的副作用迁移（在调用方事务内执行）
// ============================================================================

// PromoteOnCapture 首次保存采集行时 Assigned → In_Progress
func (m *Manager) PromoteOnCapture(tx *gorm.DB, a *domain.Audit, actorID string) (*Transition, error) {
	if a.Status != domain.StatusAssigned {
		return nil, nil
	}
	return m.transition(tx, a, domain.StatusInProgress, audit.ActionStarted, actorID, audit.Detail{}, nil)
}

// MarkNCOpen 提出不符合项后进入 NC_Open；NC_Open/NC_Pending_Verify 保持不变
func (m *Manager) MarkNCOpen(tx *gorm.DB, a *domain.Audit, actorID, ncID string) (*Transition, error) {
	switch a.Status {
	case domain.StatusAssigned, domain.StatusInProgress, domain.StatusRejected:
		return m.transition(tx, a, domain.StatusNCOpen, audit.ActionNCOpened, actorID,
			audit.Detail{Extra: map[string]any{"nc_id": ncID}}, nil)
	}
	return nil, nil
}

// ReconcileAfterNCDelete 撤回最后一个 Open NC 后 NC_Open → In_Progress
func (m *Manager) ReconcileAfterNCDelete(tx *gorm.DB, a *domain.Audit, actorID string) (*Transition, error) {
	if a.Status != domain.StatusNCOpen {
		return nil, nil
	}
	open, err := m.ledger.CountOpen(tx, a.ID)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, nil
	}
	return m.transition(tx, a, domain.StatusInProgress, audit.ActionNCCleared, actorID, audit.Detail{}, nil)
}

// ============================================================================
// 受守卫的迁移
// ============================================================================

// Submit L1 提交：存在 Open NC 时进入 NC_Pending_Verify，否则 Submitted_to_L2
// Open NC 数在持有审核行锁的事务内实时统计
func (m *Manager) Submit(ctx context.Context, actor domain.Actor, auditID string) (result *domain.Audit, err error) {
	ctx, span := m.tracer.Start(ctx, "Lifecycle.Submit")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID))

	var t *Transition
	var a *domain.Audit
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		a, err = domain.LockAudit(tx, auditID)
		if err != nil {
			return err
		}
		if a.L1AuditorID != actor.UserID {
			return common.NewForbidden("only the assigned L1 auditor can submit this audit")
		}
		if !a.Status.Submittable() {
			return common.NewConflict("audit cannot be submitted from status %s", a.Status)
		}
		if err := requireMandatoryAnswered(tx, a); err != nil {
			return err
		}

		open, err := m.ledger.CountOpen(tx, auditID)
		if err != nil {
			return err
		}

		to := domain.StatusSubmittedToL2
		extra := map[string]any{"submitted_at": m.now()}
		if open > 0 {
			to = domain.StatusNCPendingVerify
			extra = nil
		}
		t, err = m.transition(tx, a, to, audit.ActionSubmitted, actor.UserID,
			audit.Detail{Extra: map[string]any{"open_ncs": open}}, extra)
		return err
	})
	if err != nil {
		return nil, m.reject("submit", err)
	}

	m.Emit(ctx, t)
	if t.To == domain.StatusSubmittedToL2 {
		m.Notify(ctx, notification.Message{
			Recipient: a.L2AuditorID,
			Subject:   "Audit ready for review",
			Body:      fmt.Sprintf("Audit %s (%s) was submitted for L2 review.", a.ID, a.TargetRef),
			AuditID:   a.ID,
			Kind:      notification.KindSubmitted,
		})
	}
	span.SetAttributes(attribute.String("audit.status", string(t.To)))
	return domain.FindAudit(m.db.WithContext(ctx), auditID)
}

// ReasonMandatoryUnanswered 提交守卫失败原因
const ReasonMandatoryUnanswered = "All mandatory checklist questions must be answered before submission"

// requireMandatoryAnswered 模板中的必答检查项都须已有答案
func requireMandatoryAnswered(tx *gorm.DB, a *domain.Audit) error {
	var missing int64
	err := tx.Model(&template.ChecklistQuestion{}).
		Where("template_id = ? AND mandatory = ?", a.TemplateID, true).
		Where("id NOT IN (?)", tx.Model(&domain.ChecklistAnswer{}).Select("question_id").Where("audit_id = ?", a.ID)).
		Count(&missing).Error
	if err != nil {
		return fmt.Errorf("统计未答必答项失败: %w", err)
	}
	if missing > 0 {
		return common.NewConflict("%s (%d missing)", ReasonMandatoryUnanswered, missing)
	}
	return nil
}

// Approve L2 批准：所有答案已评分且所有 NC 已关闭
func (m *Manager) Approve(ctx context.Context, actor domain.Actor, auditID string) (result *domain.Audit, err error) {
	ctx, span := m.tracer.Start(ctx, "Lifecycle.Approve")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID))

	var t *Transition
	var compliance *scoring.Compliance
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := domain.LockAudit(tx, auditID)
		if err != nil {
			return err
		}
		if err := requireL2(a, actor); err != nil {
			return err
		}
		if a.Status != domain.StatusSubmittedToL2 {
			return common.NewConflict("audit cannot be approved from status %s", a.Status)
		}
		if err := scoring.ApprovalGate(tx, auditID); err != nil {
			return err
		}

		compliance, err = scoring.ComplianceTx(tx, auditID)
		if err != nil {
			return err
		}
		t, err = m.transition(tx, a, domain.StatusCompleted, audit.ActionApproved, actor.UserID,
			audit.Detail{Extra: map[string]any{"compliance_percentage": compliance.Percentage}},
			map[string]any{"completed_at": m.now()})
		return err
	})
	if err != nil {
		return nil, m.reject("approve", err)
	}

	metrics.ComplianceScore.Observe(compliance.Percentage)
	m.Emit(ctx, t)
	return domain.FindAudit(m.db.WithContext(ctx), auditID)
}

// Reject L2 驳回：清空本审核所有评分，状态回到可编辑的 Rejected
func (m *Manager) Reject(ctx context.Context, actor domain.Actor, auditID, reason string) (result *domain.Audit, err error) {
	ctx, span := m.tracer.Start(ctx, "Lifecycle.Reject")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID))

	reason = strings.TrimSpace(reason)
	var t *Transition
	var a *domain.Audit
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		a, err = domain.LockAudit(tx, auditID)
		if err != nil {
			return err
		}
		if err := requireL2(a, actor); err != nil {
			return err
		}
		if reason == "" {
			return common.NewValidation("a rejection reason is required")
		}
		if a.Status != domain.StatusSubmittedToL2 {
			return common.NewConflict("audit cannot be rejected from status %s", a.Status)
		}

		cleared, err := scoring.ClearScores(tx, auditID)
		if err != nil {
			return err
		}
		t, err = m.transition(tx, a, domain.StatusRejected, audit.ActionRejected, actor.UserID,
			audit.Detail{Reason: reason, Extra: map[string]any{"scores_cleared": cleared}},
			map[string]any{"rejection_reason": reason, "submitted_at": nil})
		return err
	})
	if err != nil {
		return nil, m.reject("reject", err)
	}

	m.Emit(ctx, t)
	m.Notify(ctx, notification.Message{
		Recipient: a.L1AuditorID,
		Subject:   "Audit rejected",
		Body:      fmt.Sprintf("Audit %s (%s) was rejected: %s", a.ID, a.TargetRef, reason),
		AuditID:   a.ID,
		Kind:      notification.KindRejected,
	})
	return domain.FindAudit(m.db.WithContext(ctx), auditID)
}

func requireL2(a *domain.Audit, actor domain.Actor) error {
	if a.L2AuditorID == "" || a.L2AuditorID != actor.UserID {
		return common.NewForbidden("only the assigned L2 auditor can decide this audit")
	}
	return nil
}

// tableLedger 默认计数实现，直接统计 non_conformances 表
type tableLedger struct{}

func (tableLedger) CountOpen(tx *gorm.DB, auditID string) (int64, error) {
	var n int64
	err := tx.Model(&domain.NonConformance{}).Scopes(common.ByAudit(auditID)).
		Where("status = ?", domain.NCOpen).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计 Open 不符合项失败: %w", err)
	}
	return n, nil
}

func (tableLedger) CountUnclosed(tx *gorm.DB, auditID string) (int64, error) {
	var n int64
	err := tx.Model(&domain.NonConformance{}).Scopes(common.ByAudit(auditID)).
		Where("status <> ?", domain.NCClosed).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计未关闭不符合项失败: %w", err)
	}
	return n, nil
}
