package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"auditflow/internal/audit"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/notification"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 审核对象类型
const (
	TargetMachine = "machine"
	TargetLine    = "line"
	TargetDockLot = "dock_lot"
)

// CreateAuditRequest 排程审核请求
type CreateAuditRequest struct {
	TemplateID     string         `json:"template_id" binding:"required"`
	TargetType     string         `json:"target_type" binding:"required,oneof=machine line dock_lot"`
	TargetRef      string         `json:"target_ref" binding:"required"`
	TargetName     string         `json:"target_name"`
	ScheduledDate  time.Time      `json:"scheduled_date" binding:"required"`
	Shift          string         `json:"shift"`
	L1AuditorID    string         `json:"l1_auditor_id" binding:"required"`
	L2AuditorID    string         `json:"l2_auditor_id"`
	ProcessOwnerID string         `json:"process_owner_id"`
	Operation      string         `json:"operation"`
	Part           string         `json:"part"`
	Process        string         `json:"process"`
	Metadata       map[string]any `json:"metadata"`
}

func (r *CreateAuditRequest) validate() error {
	switch r.TargetType {
	case TargetMachine, TargetLine, TargetDockLot:
	default:
		return common.NewValidation("target_type must be one of machine, line, dock_lot")
	}
	if strings.TrimSpace(r.TemplateID) == "" || strings.TrimSpace(r.TargetRef) == "" {
		return common.NewValidation("template_id and target_ref are required")
	}
	if strings.TrimSpace(r.L1AuditorID) == "" {
		return common.NewValidation("l1_auditor_id is required")
	}
	if r.ScheduledDate.IsZero() {
		return common.NewValidation("scheduled_date is required")
	}
	return nil
}

// CreateAudit 管理员排程审核，初始状态 Assigned，模板须已发布
func (m *Manager) CreateAudit(ctx context.Context, actor domain.Actor, req *CreateAuditRequest) (result *domain.Audit, err error) {
	ctx, span := m.tracer.Start(ctx, "Lifecycle.CreateAudit")
	defer func() { common.EndSpan(span, err) }()

	defer func() {
		if err != nil {
			err = m.reject("create_audit", err)
		}
	}()

	if !actor.IsAdmin() {
		return nil, common.NewForbidden("only admins can schedule audits")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if m.templates == nil {
		return nil, fmt.Errorf("模板目录未配置")
	}
	tmpl, err := m.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.Published {
		return nil, common.NewValidation("template %s version %d is not published", tmpl.Code, tmpl.Version)
	}

	var metadata datatypes.JSON
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, common.NewValidation("metadata is not valid JSON: %v", err)
		}
		metadata = raw
	}

	a := &domain.Audit{
		ID:              uuid.NewString(),
		TemplateID:      tmpl.ID,
		TemplateVersion: tmpl.Version,
		TargetType:      req.TargetType,
		TargetRef:       strings.TrimSpace(req.TargetRef),
		TargetName:      req.TargetName,
		ScheduledDate:   req.ScheduledDate.UTC(),
		Shift:           req.Shift,
		L1AuditorID:     req.L1AuditorID,
		L2AuditorID:     req.L2AuditorID,
		ProcessOwnerID:  req.ProcessOwnerID,
		Status:          domain.StatusAssigned,
		Operation:       req.Operation,
		Part:            req.Part,
		Process:         req.Process,
		Metadata:        metadata,
		CreatedBy:       actor.UserID,
	}

	var t *Transition
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("创建审核失败: %w", err)
		}
		detail := audit.Detail{
			To: string(domain.StatusAssigned),
			Extra: map[string]any{
				"template_id":      tmpl.ID,
				"template_version": tmpl.Version,
				"target_type":      a.TargetType,
				"target_ref":       a.TargetRef,
			},
		}
		if _, err := m.recorder.Append(tx, audit.Entry{
			AuditID: a.ID,
			Action:  audit.ActionScheduled,
			ActorID: actor.UserID,
			Detail:  detail,
		}); err != nil {
			return err
		}
		t = &Transition{AuditID: a.ID, To: domain.StatusAssigned, Action: audit.ActionScheduled, ActorID: actor.UserID, Detail: detail, At: m.now()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("audit_id", a.ID))
	m.Emit(ctx, t)
	m.Notify(ctx, notification.Message{
		Recipient: a.L1AuditorID,
		Subject:   "Audit assigned",
		Body: fmt.Sprintf("You are assigned audit %s on %s %s, scheduled %s.",
			a.ID, a.TargetType, a.TargetRef, a.ScheduledDate.Format("2006-01-02")),
		AuditID: a.ID,
		Kind:    notification.KindAuditAssigned,
	})
	return a, nil
}

// AssignRolesRequest 补充指派 L2 与过程负责人
type AssignRolesRequest struct {
	L2AuditorID    string `json:"l2_auditor_id"`
	ProcessOwnerID string `json:"process_owner_id"`
}

// AssignRoles 只允许填写空缺角色，已指派的角色不可改派
func (m *Manager) AssignRoles(ctx context.Context, actor domain.Actor, auditID string, req AssignRolesRequest) (result *domain.Audit, err error) {
	ctx, span := m.tracer.Start(ctx, "Lifecycle.AssignRoles")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID))

	var changed map[string]any
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := domain.LockAudit(tx, auditID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			return common.NewForbidden("only admins can assign roles")
		}
		if req.L2AuditorID == "" && req.ProcessOwnerID == "" {
			return common.NewValidation("l2_auditor_id or process_owner_id is required")
		}

		changed = map[string]any{}
		if err := fillSlot(changed, "l2_auditor_id", a.L2AuditorID, req.L2AuditorID); err != nil {
			return err
		}
		if err := fillSlot(changed, "process_owner_id", a.ProcessOwnerID, req.ProcessOwnerID); err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}

		updates := map[string]any{"updated_at": m.now()}
		for k, v := range changed {
			updates[k] = v
		}
		if err := tx.Model(&domain.Audit{}).Where("id = ?", auditID).Updates(updates).Error; err != nil {
			return fmt.Errorf("指派角色失败: %w", err)
		}
		_, err = m.recorder.Append(tx, audit.Entry{
			AuditID: auditID,
			Action:  audit.ActionRolesAssigned,
			ActorID: actor.UserID,
			Detail:  audit.Detail{Extra: changed},
		})
		return err
	})
	if err != nil {
		return nil, m.reject("assign_roles", err)
	}

	a, err := domain.FindAudit(m.db.WithContext(ctx), auditID)
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		m.PublishAction(auditID, audit.ActionRolesAssigned, actor.UserID, changed)
		if id, ok := changed["l2_auditor_id"].(string); ok {
			m.Notify(ctx, notification.Message{
				Recipient: id,
				Subject:   "Audit assigned for L2 review",
				Body:      fmt.Sprintf("You are the L2 auditor for audit %s (%s).", a.ID, a.TargetRef),
				AuditID:   a.ID,
				Kind:      notification.KindRoleAssigned,
			})
		}
		if id, ok := changed["process_owner_id"].(string); ok {
			m.Notify(ctx, notification.Message{
				Recipient: id,
				Subject:   "Audit assigned",
				Body:      fmt.Sprintf("You are the process owner for audit %s (%s).", a.ID, a.TargetRef),
				AuditID:   a.ID,
				Kind:      notification.KindRoleAssigned,
			})
		}
	}
	return a, nil
}

func fillSlot(changed map[string]any, column, current, requested string) error {
	requested = strings.TrimSpace(requested)
	switch {
	case requested == "" || requested == current:
		return nil
	case current != "":
		return common.NewConflict("%s is already assigned", column)
	}
	changed[column] = requested
	return nil
}

// AdminSetStatus 管理员强制设置状态，绕过迁移守卫但仍写审计日志
func (m *Manager) AdminSetStatus(ctx context.Context, actor domain.Actor, auditID string, status domain.AuditStatus, reason string) (result *domain.Audit, err error) {
	ctx, span := m.tracer.Start(ctx, "Lifecycle.AdminSetStatus")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID), attribute.String("audit.status", string(status)))

	var t *Transition
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := domain.LockAudit(tx, auditID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			return common.NewForbidden("only admins can override audit status")
		}
		if !status.Valid() {
			return common.NewValidation("unknown audit status %q", status)
		}
		if a.Status == status {
			return common.NewConflict("audit is already %s", status)
		}

		var extra map[string]any
		switch status {
		case domain.StatusCompleted:
			extra = map[string]any{"completed_at": m.now()}
		case domain.StatusSubmittedToL2:
			extra = map[string]any{"submitted_at": m.now()}
		}
		t, err = m.transition(tx, a, status, audit.ActionStatusOverride, actor.UserID,
			audit.Detail{Reason: strings.TrimSpace(reason)}, extra)
		return err
	})
	if err != nil {
		return nil, m.reject("admin_set_status", err)
	}

	m.log(ctx).Warn("管理员强制变更审核状态",
		zap.String("audit_id", auditID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("actor", actor.UserID),
	)
	m.Emit(ctx, t)
	return domain.FindAudit(m.db.WithContext(ctx), auditID)
}

// DeleteAudit 管理员删除审核及其采集行与不符合项
// 存在未关闭的不符合项时需要 force；审计日志保留
func (m *Manager) DeleteAudit(ctx context.Context, actor domain.Actor, auditID string, force bool) (err error) {
	ctx, span := m.tracer.Start(ctx, "Lifecycle.DeleteAudit")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID), attribute.Bool("force", force))

	var from domain.AuditStatus
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := domain.LockAudit(tx, auditID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			return common.NewForbidden("only admins can delete audits")
		}
		unclosed, err := m.ledger.CountUnclosed(tx, auditID)
		if err != nil {
			return err
		}
		if unclosed > 0 && !force {
			return common.NewConflict("audit has %d unclosed NCs, use force to delete", unclosed)
		}
		from = a.Status

		for _, model := range []any{
			&domain.NonConformance{},
			&domain.ChecklistAnswer{},
			&domain.ObjectiveEntry{},
			&domain.CalibrationEntry{},
			&domain.ParameterEntry{},
		} {
			if err := tx.Scopes(common.ByAudit(auditID)).Delete(model).Error; err != nil {
				return fmt.Errorf("删除审核数据失败: %w", err)
			}
		}
		if err := tx.Where("id = ?", auditID).Delete(&domain.Audit{}).Error; err != nil {
			return fmt.Errorf("删除审核失败: %w", err)
		}

		_, err = m.recorder.Append(tx, audit.Entry{
			AuditID: auditID,
			Action:  audit.ActionDeleted,
			ActorID: actor.UserID,
			Detail:  audit.Detail{From: string(from), Extra: map[string]any{"force": force, "unclosed_ncs": unclosed}},
		})
		return err
	})
	if err != nil {
		return m.reject("delete_audit", err)
	}

	m.PublishAction(auditID, audit.ActionDeleted, actor.UserID, map[string]any{"from": from, "force": force})
	m.log(ctx).Info("审核已删除", zap.String("audit_id", auditID), zap.Bool("force", force))
	return nil
}
