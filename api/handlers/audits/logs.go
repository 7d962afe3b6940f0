package audits

import (
	"fmt"
	"net/http"
	"time"

	"auditflow/internal/audit"
	"auditflow/internal/auth"
	"auditflow/internal/common"
	"auditflow/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListLogsQuery 审计日志查询参数
type ListLogsQuery struct {
	Action string `form:"action"`
	From   string `form:"from"` // RFC3339
	To     string `form:"to"`
	common.PaginationRequest
}

// ListLogs 审计日志
// @Summary 审核审计日志
// @Description 按发生顺序返回，仅审核参与者与管理员可查看
// @Tags Audits
// @Security BearerAuth
// @Produce json
// @Param id path string true "审核ID"
// @Param action query string false "动作"
// @Param from query string false "起始时间 RFC3339"
// @Param to query string false "结束时间 RFC3339"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Router /api/audits/{id}/logs [get]
func (h *Handler) ListLogs(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var q ListLogsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "invalid query: "+err.Error())
		return
	}
	filter := audit.Filter{Action: audit.Action(q.Action), PaginationRequest: q.PaginationRequest}
	var err error
	if filter.From, err = parseTime("from", q.From); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	if filter.To, err = parseTime("to", q.To); err != nil {
		common.ResponseFromError(c, err)
		return
	}

	auditID := c.Param("id")
	if _, err := h.lifecycle.GetAudit(c.Request.Context(), actor, auditID); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	logs, total, err := h.recorder.List(c.Request.Context(), auditID, filter)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseList(c, logs, total, q.PaginationRequest)
}

// ExportLogs 导出 CSV
// @Summary 导出审核审计日志
// @Tags Audits
// @Security BearerAuth
// @Produce text/csv
// @Param id path string true "审核ID"
// @Success 200 {file} file
// @Router /api/audits/{id}/logs.csv [get]
func (h *Handler) ExportLogs(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	auditID := c.Param("id")
	if _, err := h.lifecycle.GetAudit(c.Request.Context(), actor, auditID); err != nil {
		common.ResponseFromError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=audit-%s-logs.csv", auditID))
	c.Status(http.StatusOK)
	n, err := h.recorder.ExportCSV(c.Request.Context(), auditID, c.Writer)
	if err != nil {
		// 响应头已写出，只能记录
		logger.WithContext(c.Request.Context()).Error("导出审计日志失败", zap.String("audit_id", auditID), zap.Error(err))
		return
	}
	logger.WithContext(c.Request.Context()).Debug("导出审计日志", zap.String("audit_id", auditID), zap.Int("rows", n))
}

func parseTime(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, common.NewValidation("%s must be RFC3339", field)
	}
	return &t, nil
}
