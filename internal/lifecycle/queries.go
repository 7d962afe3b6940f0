package lifecycle

import (
	"context"
	"fmt"
	"time"

	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/notification"
	"auditflow/internal/template"

	"go.uber.org/zap"
)

// AuditView 审核详情（含模板检查项与全部采集行）
type AuditView struct {
	domain.Audit
	Questions       []template.Question       `json:"questions"`
	Answers         []domain.ChecklistAnswer  `json:"answers"`
	Objectives      []domain.ObjectiveEntry   `json:"objectives"`
	Calibrations    []domain.CalibrationEntry `json:"calibrations"`
	Parameters      []domain.ParameterEntry   `json:"parameters"`
	NonConformances []domain.NonConformance   `json:"non_conformances"`
	OpenNCs         int64                     `json:"open_ncs"`
}

// GetAudit 审核参与者或管理员可查看
func (m *Manager) GetAudit(ctx context.Context, actor domain.Actor, auditID string) (*AuditView, error) {
	db := m.db.WithContext(ctx)
	a, err := domain.FindAudit(db, auditID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !a.IsParticipant(actor.UserID) {
		return nil, m.reject("get_audit", common.NewForbidden("not a participant of audit %s", auditID))
	}

	view := &AuditView{Audit: *a}
	if err := db.Scopes(common.ByAudit(auditID)).Order("created_at ASC").Find(&view.Answers).Error; err != nil {
		return nil, fmt.Errorf("查询检查项答案失败: %w", err)
	}
	if err := db.Scopes(common.ByAudit(auditID)).Order("objective_type ASC, parameter_name ASC").Find(&view.Objectives).Error; err != nil {
		return nil, fmt.Errorf("查询目标值记录失败: %w", err)
	}
	if err := db.Scopes(common.ByAudit(auditID)).Order("instrument_name ASC").Find(&view.Calibrations).Error; err != nil {
		return nil, fmt.Errorf("查询校准记录失败: %w", err)
	}
	if err := db.Scopes(common.ByAudit(auditID)).Order("parameter_name ASC").Find(&view.Parameters).Error; err != nil {
		return nil, fmt.Errorf("查询参数记录失败: %w", err)
	}
	if err := db.Scopes(common.ByAudit(auditID)).Order("created_at ASC").Find(&view.NonConformances).Error; err != nil {
		return nil, fmt.Errorf("查询不符合项失败: %w", err)
	}
	for _, nc := range view.NonConformances {
		if nc.Status == domain.NCOpen {
			view.OpenNCs++
		}
	}

	if m.templates != nil {
		questions, err := m.templates.QuestionsFor(ctx, a.TemplateID)
		if err != nil {
			m.log(ctx).Warn("读取模板检查项失败", zap.String("template_id", a.TemplateID), zap.Error(err))
		} else {
			view.Questions = questions
		}
	}
	return view, nil
}

// ListFilter 审核列表过滤
type ListFilter struct {
	Status     string `form:"status"`
	TargetType string `form:"target_type"`
	TargetRef  string `form:"target_ref"`
	SortBy     string `form:"sort_by"`
	Order      string `form:"order"`
	common.PaginationRequest
}

var sortableAuditColumns = []string{"scheduled_date", "created_at", "updated_at", "status"}

// ListAudits 管理员看全部，其他用户只看自己参与的审核
func (m *Manager) ListAudits(ctx context.Context, actor domain.Actor, f ListFilter) ([]domain.Audit, int64, error) {
	if f.Status != "" && !domain.AuditStatus(f.Status).Valid() {
		return nil, 0, common.NewValidation("unknown audit status %q", f.Status)
	}

	query := m.db.WithContext(ctx).Model(&domain.Audit{}).Scopes(common.ByStatus(f.Status))
	if !actor.IsAdmin() {
		query = query.Where("l1_auditor_id = ? OR l2_auditor_id = ? OR process_owner_id = ?",
			actor.UserID, actor.UserID, actor.UserID)
	}
	if f.TargetType != "" {
		query = query.Where("target_type = ?", f.TargetType)
	}
	if f.TargetRef != "" {
		query = query.Where("target_ref = ?", f.TargetRef)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计审核数量失败: %w", err)
	}

	sortBy, order := f.SortBy, f.Order
	if sortBy == "" {
		sortBy, order = "scheduled_date", "desc"
	}
	var items []domain.Audit
	if err := query.
		Scopes(common.OrderBy(sortBy, order, sortableAuditColumns), common.Paginate(f.PaginationRequest)).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("查询审核列表失败: %w", err)
	}
	return items, total, nil
}

// DueForReminder 查询计划日期在 [from, to) 且仍为 Assigned 的审核
func (m *Manager) DueForReminder(ctx context.Context, from, to time.Time) ([]domain.Audit, error) {
	var items []domain.Audit
	err := m.db.WithContext(ctx).
		Where("status = ? AND scheduled_date >= ? AND scheduled_date < ?", domain.StatusAssigned, from.UTC(), to.UTC()).
		Order("scheduled_date ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("查询待提醒审核失败: %w", err)
	}
	return items, nil
}

// SendReminders 向即将开始但尚未动工的审核 L1 发送提醒，返回提醒条数
func (m *Manager) SendReminders(ctx context.Context, window time.Duration) (int, error) {
	now := m.now()
	// 计划日期只精确到天，从今天零点开始算
	from := now.Truncate(24 * time.Hour)
	due, err := m.DueForReminder(ctx, from, now.Add(window))
	if err != nil {
		return 0, err
	}
	for _, a := range due {
		m.Notify(ctx, notification.Message{
			Recipient: a.L1AuditorID,
			Subject:   "Audit reminder",
			Body: fmt.Sprintf("Audit %s on %s %s is scheduled for %s and has not started.",
				a.ID, a.TargetType, a.TargetRef, a.ScheduledDate.Format("2006-01-02")),
			AuditID: a.ID,
			Kind:    notification.KindReminder,
		})
	}
	m.log(ctx).Info("审核提醒扫描完成", zap.Int("due", len(due)), zap.Duration("window", window))
	return len(due), nil
}
