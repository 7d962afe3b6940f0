package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auditflow/internal/common"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Log 审计日志，只追加，不更新不删除
type Log struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	AuditID   string         `json:"audit_id" gorm:"size:36;not null;index:idx_audit_logs_audit_time"`
	Action    Action         `json:"action" gorm:"size:64;not null;index"`
	ActorID   string         `json:"actor_id" gorm:"size:64;not null"`
	Detail    datatypes.JSON `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;index:idx_audit_logs_audit_time"`
}

func (Log) TableName() string { return "audit_logs" }

// Detail 状态迁移的标准明细
type Detail struct {
	From   string         `json:"from,omitempty"`
	To     string         `json:"to,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// Entry 待写入的日志
type Entry struct {
	AuditID string
	Action  Action
	ActorID string
	Detail  any
}

// Filter 查询条件
type Filter struct {
	Action Action
	From   *time.Time
	To     *time.Time
	common.PaginationRequest
}

// Recorder 审计日志读写
type Recorder struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRecorder 创建审计日志记录器
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Append 在调用方事务内追加一条日志，与状态变更同时提交或回滚
func (r *Recorder) Append(tx *gorm.DB, e Entry) (*Log, error) {
	if e.AuditID == "" || e.Action == "" {
		return nil, fmt.Errorf("审计日志缺少 audit_id 或 action")
	}

	var detail datatypes.JSON
	if e.Detail != nil {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return nil, fmt.Errorf("序列化审计明细失败: %w", err)
		}
		detail = b
	}

	// v7 按时间递增，同一时刻写入的日志也能按 id 排序
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成审计日志ID失败: %w", err)
	}
	row := &Log{
		ID:        id.String(),
		AuditID:   e.AuditID,
		Action:    e.Action,
		ActorID:   e.ActorID,
		Detail:    detail,
		CreatedAt: r.now(),
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("写入审计日志失败: %w", err)
	}
	return row, nil
}

// List 按时间顺序读取某个审核的日志
func (r *Recorder) List(ctx context.Context, auditID string, f Filter) ([]Log, int64, error) {
	query := r.db.WithContext(ctx).Model(&Log{}).Scopes(common.ByAudit(auditID))
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计审计日志失败: %w", err)
	}

	var logs []Log
	if err := query.Order("created_at ASC, id ASC").Scopes(common.Paginate(f.PaginationRequest)).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("查询审计日志失败: %w", err)
	}
	return logs, total, nil
}
