// Package audits 审核生命周期、数据采集、评分与日志接口
package audits

import (
	"errors"
	"io"
	"net/http"

	"auditflow/internal/audit"
	"auditflow/internal/auth"
	"auditflow/internal/capture"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/lifecycle"
	"auditflow/internal/scoring"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler 审核接口处理器
type Handler struct {
	lifecycle *lifecycle.Manager
	capture   *capture.Service
	scoring   *scoring.Engine
	recorder  *audit.Recorder
	upgrader  websocket.Upgrader
}

// NewHandler 创建审核接口处理器
func NewHandler(lc *lifecycle.Manager, cs *capture.Service, se *scoring.Engine, recorder *audit.Recorder) *Handler {
	return &Handler{
		lifecycle: lc,
		capture:   cs,
		scoring:   se,
		recorder:  recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ListAudits 审核列表
// @Summary 审核列表
// @Description 管理员可见全部审核，其他用户只看到自己担任角色的审核
// @Tags Audits
// @Security BearerAuth
// @Produce json
// @Param status query string false "状态"
// @Param target_type query string false "对象类型"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/audits [get]
func (h *Handler) ListAudits(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var f lifecycle.ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		common.ResponseBadRequest(c, "invalid query: "+err.Error())
		return
	}
	items, total, err := h.lifecycle.ListAudits(c.Request.Context(), actor, f)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseList(c, items, total, f.PaginationRequest)
}

// GetAudit 审核详情
// @Summary 审核详情
// @Description 返回审核、模板检查项、全部采集行与不符合项
// @Tags Audits
// @Security BearerAuth
// @Produce json
// @Param id path string true "审核ID"
// @Success 200 {object} common.APIResponse{data=lifecycle.AuditView}
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/audits/{id} [get]
func (h *Handler) GetAudit(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	view, err := h.lifecycle.GetAudit(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, view)
}

// CreateAudit 创建审核
// @Summary 创建审核
// @Tags Audits
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body lifecycle.CreateAuditRequest true "审核信息"
// @Success 201 {object} common.APIResponse{data=domain.Audit}
// @Failure 400 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Router /api/audits [post]
func (h *Handler) CreateAudit(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var req lifecycle.CreateAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "invalid request: "+err.Error())
		return
	}
	created, err := h.lifecycle.CreateAudit(c.Request.Context(), actor, &req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseCreated(c, created)
}

// Submit L1 提交审核
// @Summary 提交审核
// @Description 存在未关闭的 Open 不符合项时进入 NC_Pending_Verify，否则进入 Submitted_to_L2
// @Tags Audits
// @Security BearerAuth
// @Produce json
// @Param id path string true "审核ID"
// @Success 200 {object} common.APIResponse{data=domain.Audit}
// @Failure 409 {object} common.APIResponse
// @Router /api/audits/{id}/submit [post]
func (h *Handler) Submit(c *gin.Context) {
	h.transition(c, func(actor domain.Actor, id string) (*domain.Audit, error) {
		return h.lifecycle.Submit(c.Request.Context(), actor, id)
	})
}

// Approve L2 批准
// @Summary 批准审核
// @Description 要求全部答案已评分且全部不符合项已关闭
// @Tags Audits
// @Security BearerAuth
// @Produce json
// @Param id path string true "审核ID"
// @Success 200 {object} common.APIResponse{data=domain.Audit}
// @Failure 409 {object} common.APIResponse
// @Router /api/audits/{id}/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	h.transition(c, func(actor domain.Actor, id string) (*domain.Audit, error) {
		return h.lifecycle.Approve(c.Request.Context(), actor, id)
	})
}

// RejectRequest 驳回请求
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject L2 驳回
// @Summary 驳回审核
// @Description 清空全部评分，审核回到 Rejected 由 L1 修改
// @Tags Audits
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param request body RejectRequest false "驳回原因"
// @Success 200 {object} common.APIResponse{data=domain.Audit}
// @Failure 409 {object} common.APIResponse
// @Router /api/audits/{id}/reject [post]
func (h *Handler) Reject(c *gin.Context) {
	var req RejectRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		// 分块传输的请求没有 Content-Length，空包体按未填写原因处理
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			common.ResponseBadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	h.transition(c, func(actor domain.Actor, id string) (*domain.Audit, error) {
		return h.lifecycle.Reject(c.Request.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) transition(c *gin.Context, fn func(actor domain.Actor, id string) (*domain.Audit, error)) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	updated, err := fn(actor, c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, updated)
}

// Compliance 合规率
// @Summary 合规率
// @Description NA 不计入分子分母
// @Tags Audits
// @Security BearerAuth
// @Produce json
// @Param id path string true "审核ID"
// @Success 200 {object} common.APIResponse{data=scoring.Compliance}
// @Router /api/audits/{id}/compliance [get]
func (h *Handler) Compliance(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	auditID := c.Param("id")
	if _, err := h.lifecycle.GetAudit(c.Request.Context(), actor, auditID); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	result, err := h.scoring.Compliance(c.Request.Context(), auditID)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, result)
}

// ScoreAnswer L2 评分
// @Summary 答案评分
// @Description 0 不符合，1 部分符合，2 符合，3 不适用
// @Tags Audits
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param ref path string true "答案ID"
// @Param request body scoring.ScoreRequest true "评分"
// @Success 200 {object} common.APIResponse{data=domain.ChecklistAnswer}
// @Failure 400 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/audits/{id}/answers/{ref}/score [put]
func (h *Handler) ScoreAnswer(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var req scoring.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "invalid request: "+err.Error())
		return
	}
	answer, err := h.scoring.Score(c.Request.Context(), actor, c.Param("id"), c.Param("ref"), req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, answer)
}
