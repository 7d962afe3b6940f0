package nonconformance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auditflow/internal/audit"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/lifecycle"
	"auditflow/internal/logger"
	"auditflow/internal/metrics"
	"auditflow/internal/notification"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine 不符合项引擎：提出、整改、验证、撤回
// 状态只能 Open → Pending_Verification → Closed，每一步都是单条 CAS 语句
type Engine struct {
	db        *gorm.DB
	recorder  *audit.Recorder
	lifecycle *lifecycle.Manager
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEngine 创建不符合项引擎，并注册为生命周期的 Open NC 计数来源
func NewEngine(db *gorm.DB, recorder *audit.Recorder, lc *lifecycle.Manager) *Engine {
	e := &Engine{
		db:        db,
		recorder:  recorder,
		lifecycle: lc,
		tracer:    otel.Tracer("auditflow/internal/nonconformance"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	lc.SetNCLedger(e)
	return e
}

// RaiseRequest 提出不符合项请求
type RaiseRequest struct {
	RefKind     domain.NCRefKind `json:"ref_kind"`
	RefKey      string           `json:"ref_key"`
	Reference   string           `json:"reference"` // 兼容旧格式，如 "cal_<仪器>"
	Description string           `json:"description" binding:"required"`
	EvidenceURL string           `json:"evidence_url"`
}

// Ref 解析关联对象，未给出 ref_kind 时按旧格式前缀解析
func (r RaiseRequest) Ref() domain.NCRef {
	if r.RefKind != "" {
		return domain.NCRef{Kind: r.RefKind, Key: strings.TrimSpace(r.RefKey)}
	}
	if r.Reference != "" {
		return domain.ParseReferenceKey(r.Reference)
	}
	return domain.UnlinkedRef("")
}

// Raised 一次提出的结果，提交后由 AfterRaise 发布
type Raised struct {
	NC         *domain.NonConformance
	Audit      *domain.Audit
	Transition *lifecycle.Transition
}

// Raise 指派的 L1 在可编辑审核上手工提出不符合项
func (e *Engine) Raise(ctx context.Context, actor domain.Actor, auditID string, req RaiseRequest) (nc *domain.NonConformance, err error) {
	ctx, span := e.tracer.Start(ctx, "NC.Raise")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID))

	var raised *Raised
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := domain.LockAudit(tx, auditID)
		if err != nil {
			return err
		}
		if a.L1AuditorID != actor.UserID {
			return common.NewForbidden("only the assigned L1 auditor can raise NCs")
		}
		ref := req.Ref()
		if err := ref.Validate(); err != nil {
			return common.NewValidation("%v", err)
		}
		if strings.TrimSpace(req.Description) == "" {
			return common.NewValidation("description is required")
		}
		if !a.Status.Editable() {
			return common.NewConflict("NCs cannot be raised while the audit is %s", a.Status)
		}

		raised, err = e.RaiseInTx(tx, a, actor.UserID, ref, req.Description, req.EvidenceURL, false)
		return err
	})
	if err != nil {
		return nil, e.guardFailed("raise_nc", err)
	}

	e.AfterRaise(ctx, raised)
	span.SetAttributes(attribute.String("nc_id", raised.NC.ID))
	return raised.NC, nil
}

// RaiseInTx 在调用方事务内创建 Open NC 并请求 NC_Open 迁移，调用方须已持有审核行锁
func (e *Engine) RaiseInTx(tx *gorm.DB, a *domain.Audit, actorID string, ref domain.NCRef, description, evidenceURL string, auto bool) (*Raised, error) {
	nc := &domain.NonConformance{
		AuditID:     a.ID,
		Ref:         ref,
		Description: strings.TrimSpace(description),
		EvidenceURL: evidenceURL,
		Status:      domain.NCOpen,
		RaisedBy:    actorID,
		AutoRaised:  auto,
	}
	if err := tx.Create(nc).Error; err != nil {
		return nil, fmt.Errorf("创建不符合项失败: %w", err)
	}

	if _, err := e.recorder.Append(tx, audit.Entry{
		AuditID: a.ID,
		Action:  audit.ActionNCRaised,
		ActorID: actorID,
		Detail: map[string]any{
			"nc_id":     nc.ID,
			"reference": ref.String(),
			"auto":      auto,
		},
	}); err != nil {
		return nil, err
	}

	t, err := e.lifecycle.MarkNCOpen(tx, a, actorID, nc.ID)
	if err != nil {
		return nil, err
	}
	return &Raised{NC: nc, Audit: a, Transition: t}, nil
}

// RaiseAuto 采集行自动标记时提出 NC；同一关联对象已有未关闭 NC 时不重复提出，返回 nil
func (e *Engine) RaiseAuto(tx *gorm.DB, a *domain.Audit, actorID string, ref domain.NCRef, description string) (*Raised, error) {
	var existing int64
	if err := tx.Model(&domain.NonConformance{}).
		Scopes(common.ByAudit(a.ID)).
		Where("ref_kind = ? AND ref_key = ? AND status <> ?", ref.Kind, ref.Key, domain.NCClosed).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("查询已有不符合项失败: %w", err)
	}
	if existing > 0 {
		return nil, nil
	}
	if strings.TrimSpace(description) == "" {
		description = "Flagged during capture: " + ref.String()
	}
	return e.RaiseInTx(tx, a, actorID, ref, description, "", true)
}

// AfterRaise 提交后发布事件并通知过程负责人
func (e *Engine) AfterRaise(ctx context.Context, r *Raised) {
	if r == nil {
		return
	}
	metrics.NCEventsTotal.WithLabelValues("raised", string(r.NC.Ref.Kind)).Inc()
	e.lifecycle.Emit(ctx, r.Transition)
	e.lifecycle.PublishAction(r.Audit.ID, audit.ActionNCRaised, r.NC.RaisedBy, map[string]any{
		"nc_id":     r.NC.ID,
		"reference": r.NC.Ref.String(),
	})
	e.lifecycle.Notify(ctx, notification.Message{
		Recipient: r.Audit.ProcessOwnerID,
		Subject:   "Non-conformance raised",
		Body: fmt.Sprintf("NC %s was raised on audit %s (%s): %s",
			r.NC.ID, r.Audit.ID, r.Audit.TargetRef, r.NC.Description),
		AuditID: r.Audit.ID,
		Kind:    notification.KindNCRaised,
	})
	logger.WithContext(ctx).Info("不符合项已提出",
		zap.String("audit_id", r.Audit.ID),
		zap.String("nc_id", r.NC.ID),
		zap.String("reference", r.NC.Ref.String()),
		zap.Bool("auto", r.NC.AutoRaised),
	)
}

// ResolveRequest 整改请求
type ResolveRequest struct {
	RootCause        string `json:"root_cause" binding:"required"`
	CorrectiveAction string `json:"corrective_action" binding:"required"`
	EvidenceURL      string `json:"evidence_url"`
}

// Resolve 过程负责人提交整改，Open → Pending_Verification
func (e *Engine) Resolve(ctx context.Context, actor domain.Actor, ncID string, req ResolveRequest) (result *domain.NonConformance, err error) {
	ctx, span := e.tracer.Start(ctx, "NC.Resolve")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("nc_id", ncID))

	var a *domain.Audit
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nc, err := findNC(tx, ncID)
		if err != nil {
			return err
		}
		a, err = domain.FindAudit(tx, nc.AuditID)
		if err != nil {
			return err
		}
		if a.ProcessOwnerID == "" || a.ProcessOwnerID != actor.UserID {
			return common.NewForbidden("only the assigned process owner can resolve NCs")
		}
		if strings.TrimSpace(req.RootCause) == "" || strings.TrimSpace(req.CorrectiveAction) == "" {
			return common.NewValidation("root_cause and corrective_action are required")
		}

		now := e.now()
		res := tx.Model(&domain.NonConformance{}).
			Where("id = ? AND status = ?", ncID, domain.NCOpen).
			Updates(map[string]any{
				"status":                  domain.NCPendingVerification,
				"root_cause":              strings.TrimSpace(req.RootCause),
				"corrective_action":       strings.TrimSpace(req.CorrectiveAction),
				"resolution_evidence_url": req.EvidenceURL,
				"resolved_by":             actor.UserID,
				"resolved_at":             now,
				"updated_at":              now,
			})
		if res.Error != nil {
			return fmt.Errorf("更新不符合项失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return common.NewConflict("NC %s is not Open", ncID)
		}

		_, err = e.recorder.Append(tx, audit.Entry{
			AuditID: nc.AuditID,
			Action:  audit.ActionNCResolved,
			ActorID: actor.UserID,
			Detail: audit.Detail{
				From:  string(domain.NCOpen),
				To:    string(domain.NCPendingVerification),
				Extra: map[string]any{"nc_id": ncID},
			},
		})
		return err
	})
	if err != nil {
		return nil, e.guardFailed("resolve_nc", err)
	}

	result, err = findNC(e.db.WithContext(ctx), ncID)
	if err != nil {
		return nil, err
	}
	metrics.NCEventsTotal.WithLabelValues("resolved", string(result.Ref.Kind)).Inc()
	e.lifecycle.PublishAction(a.ID, audit.ActionNCResolved, actor.UserID, map[string]any{"nc_id": ncID})
	e.lifecycle.Notify(ctx, notification.Message{
		Recipient: a.L1AuditorID,
		Subject:   "Non-conformance awaiting verification",
		Body:      fmt.Sprintf("NC %s on audit %s was resolved and needs verification.", ncID, a.ID),
		AuditID:   a.ID,
		Kind:      notification.KindNCResolved,
	})
	return result, nil
}

// Verify 指派的 L1 验证整改，Pending_Verification → Closed
func (e *Engine) Verify(ctx context.Context, actor domain.Actor, ncID string) (result *domain.NonConformance, err error) {
	ctx, span := e.tracer.Start(ctx, "NC.Verify")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("nc_id", ncID))

	var a *domain.Audit
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nc, err := findNC(tx, ncID)
		if err != nil {
			return err
		}
		a, err = domain.FindAudit(tx, nc.AuditID)
		if err != nil {
			return err
		}
		if a.L1AuditorID != actor.UserID {
			return common.NewForbidden("only the assigned L1 auditor can verify NCs")
		}

		now := e.now()
		res := tx.Model(&domain.NonConformance{}).
			Where("id = ? AND status = ?", ncID, domain.NCPendingVerification).
			Updates(map[string]any{
				"status":      domain.NCClosed,
				"verified_by": actor.UserID,
				"verified_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("更新不符合项失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return common.NewConflict("NC %s is not awaiting verification", ncID)
		}

		_, err = e.recorder.Append(tx, audit.Entry{
			AuditID: nc.AuditID,
			Action:  audit.ActionNCVerified,
			ActorID: actor.UserID,
			Detail: audit.Detail{
				From:  string(domain.NCPendingVerification),
				To:    string(domain.NCClosed),
				Extra: map[string]any{"nc_id": ncID},
			},
		})
		return err
	})
	if err != nil {
		return nil, e.guardFailed("verify_nc", err)
	}

	result, err = findNC(e.db.WithContext(ctx), ncID)
	if err != nil {
		return nil, err
	}
	metrics.NCEventsTotal.WithLabelValues("verified", string(result.Ref.Kind)).Inc()
	e.lifecycle.PublishAction(a.ID, audit.ActionNCVerified, actor.UserID, map[string]any{"nc_id": ncID})
	e.lifecycle.Notify(ctx, notification.Message{
		Recipient: a.ProcessOwnerID,
		Subject:   "Non-conformance closed",
		Body:      fmt.Sprintf("NC %s on audit %s was verified and closed.", ncID, a.ID),
		AuditID:   a.ID,
		Kind:      notification.KindNCVerified,
	})
	return result, nil
}

// Delete 指派的 L1 撤回仍为 Open 的不符合项；撤回最后一个 Open NC 时审核回到 In_Progress
func (e *Engine) Delete(ctx context.Context, actor domain.Actor, ncID string) (err error) {
	ctx, span := e.tracer.Start(ctx, "NC.Delete")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("nc_id", ncID))

	var t *lifecycle.Transition
	var nc *domain.NonConformance
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		nc, err = findNC(tx, ncID)
		if err != nil {
			return err
		}
		a, err := domain.LockAudit(tx, nc.AuditID)
		if err != nil {
			return err
		}
		if a.L1AuditorID != actor.UserID {
			return common.NewForbidden("only the assigned L1 auditor can delete NCs")
		}

		res := tx.Where("id = ? AND status = ?", ncID, domain.NCOpen).Delete(&domain.NonConformance{})
		if res.Error != nil {
			return fmt.Errorf("删除不符合项失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return common.NewConflict("only Open NCs can be deleted")
		}

		if _, err := e.recorder.Append(tx, audit.Entry{
			AuditID: a.ID,
			Action:  audit.ActionNCDeleted,
			ActorID: actor.UserID,
			Detail:  map[string]any{"nc_id": ncID, "reference": nc.Ref.String()},
		}); err != nil {
			return err
		}

		t, err = e.lifecycle.ReconcileAfterNCDelete(tx, a, actor.UserID)
		return err
	})
	if err != nil {
		return e.guardFailed("delete_nc", err)
	}

	metrics.NCEventsTotal.WithLabelValues("deleted", string(nc.Ref.Kind)).Inc()
	e.lifecycle.PublishAction(nc.AuditID, audit.ActionNCDeleted, actor.UserID, map[string]any{"nc_id": ncID})
	e.lifecycle.Emit(ctx, t)
	return nil
}

// CountOpen 统计审核下 Open 状态的不符合项
func (e *Engine) CountOpen(tx *gorm.DB, auditID string) (int64, error) {
	return countByStatus(tx, auditID, "status = ?", domain.NCOpen)
}

// CountUnclosed 统计审核下未关闭的不符合项
func (e *Engine) CountUnclosed(tx *gorm.DB, auditID string) (int64, error) {
	return countByStatus(tx, auditID, "status <> ?", domain.NCClosed)
}

func countByStatus(tx *gorm.DB, auditID, cond string, status domain.NCStatus) (int64, error) {
	var n int64
	if err := tx.Model(&domain.NonConformance{}).Scopes(common.ByAudit(auditID)).Where(cond, status).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计不符合项失败: %w", err)
	}
	return n, nil
}

func findNC(db *gorm.DB, ncID string) (*domain.NonConformance, error) {
	var nc domain.NonConformance
	if err := db.Where("id = ?", ncID).First(&nc).Error; err != nil {
		if common.IsNotFound(err) {
			return nil, common.NewNotFound("NC %s not found", ncID)
		}
		return nil, fmt.Errorf("查询不符合项失败: %w", err)
	}
	return &nc, nil
}

func (e *Engine) guardFailed(op string, err error) error {
	if be, ok := common.AsBusinessError(err); ok {
		metrics.RecordGuardRejection(op, be.Code)
	}
	return err
}
