package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"auditflow/internal/common"
)

// exportLimit 单次导出上限
const exportLimit = 10000

// ExportCSV 将某个审核的完整日志以 CSV 写出，返回行数
func (r *Recorder) ExportCSV(ctx context.Context, auditID string, w io.Writer) (int, error) {
	var logs []Log
	if err := r.db.WithContext(ctx).Scopes(common.ByAudit(auditID)).
		Order("created_at ASC, id ASC").Limit(exportLimit).Find(&logs).Error; err != nil {
		return 0, fmt.Errorf("查询审计日志失败: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "audit_id", "action", "description", "actor_id", "detail", "created_at"}); err != nil {
		return 0, err
	}
	for _, l := range logs {
		row := []string{
			l.ID,
			l.AuditID,
			string(l.Action),
			Describe(l.Action),
			l.ActorID,
			string(l.Detail),
			l.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(row); err != nil {
			return 0, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("写出 CSV 失败: %w", err)
	}
	return len(logs), nil
}
