package nonconformance

import (
	"context"
	"fmt"

	"auditflow/internal/common"
	"auditflow/internal/domain"

	"gorm.io/gorm"
)

// Get 审核参与者或管理员可查看单个不符合项
func (e *Engine) Get(ctx context.Context, actor domain.Actor, ncID string) (*domain.NonConformance, error) {
	db := e.db.WithContext(ctx)
	nc, err := findNC(db, ncID)
	if err != nil {
		return nil, err
	}
	if err := e.requireParticipant(db, actor, nc.AuditID); err != nil {
		return nil, err
	}
	return nc, nil
}

// ListFilter 不符合项列表过滤
type ListFilter struct {
	Status string `form:"status"`
	common.PaginationRequest
}

// ListForAudit 按创建顺序列出审核下的不符合项
func (e *Engine) ListForAudit(ctx context.Context, actor domain.Actor, auditID string, f ListFilter) ([]domain.NonConformance, int64, error) {
	db := e.db.WithContext(ctx)
	if err := e.requireParticipant(db, actor, auditID); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !domain.NCStatus(f.Status).Valid() {
		return nil, 0, common.NewValidation("unknown NC status %q", f.Status)
	}

	query := db.Model(&domain.NonConformance{}).Scopes(common.ByAudit(auditID), common.ByStatus(f.Status))
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计不符合项失败: %w", err)
	}
	var items []domain.NonConformance
	if err := query.Order("created_at ASC").Scopes(common.Paginate(f.PaginationRequest)).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("查询不符合项失败: %w", err)
	}
	return items, total, nil
}

// ListAssignedToOwner 过程负责人待办：本人负责的审核上的不符合项，默认只看 Open
func (e *Engine) ListAssignedToOwner(ctx context.Context, actor domain.Actor, f ListFilter) ([]domain.NonConformance, int64, error) {
	status := f.Status
	if status == "" {
		status = string(domain.NCOpen)
	}
	if !domain.NCStatus(status).Valid() {
		return nil, 0, common.NewValidation("unknown NC status %q", status)
	}

	query := e.db.WithContext(ctx).Model(&domain.NonConformance{}).
		Joins("JOIN audits ON audits.id = non_conformances.audit_id").
		Where("audits.process_owner_id = ? AND non_conformances.status = ?", actor.UserID, status)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计待办不符合项失败: %w", err)
	}
	var items []domain.NonConformance
	if err := query.Select("non_conformances.*").
		Order("non_conformances.created_at ASC").
		Scopes(common.Paginate(f.PaginationRequest)).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("查询待办不符合项失败: %w", err)
	}
	return items, total, nil
}

func (e *Engine) requireParticipant(db *gorm.DB, actor domain.Actor, auditID string) error {
	a, err := domain.FindAudit(db, auditID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && !a.IsParticipant(actor.UserID) {
		return common.NewForbidden("not a participant of audit %s", auditID)
	}
	return nil
}
