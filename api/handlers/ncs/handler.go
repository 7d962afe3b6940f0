// Package ncs 不符合项接口
package ncs

import (
	"auditflow/internal/auth"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/nonconformance"

	"github.com/gin-gonic/gin"
)

// Handler 不符合项接口处理器
type Handler struct {
	engine *nonconformance.Engine
}

// NewHandler 创建处理器
func NewHandler(engine *nonconformance.Engine) *Handler {
	return &Handler{engine: engine}
}

// Raise 提出不符合项
// @Summary 提出不符合项
// @Description 审核进入 NC_Open；ref_kind 为 checklist_answer/objective/calibration/parameter/unlinked
// @Tags NonConformances
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param request body nonconformance.RaiseRequest true "不符合项"
// @Success 201 {object} common.APIResponse{data=domain.NonConformance}
// @Failure 400 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/audits/{id}/ncs [post]
func (h *Handler) Raise(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var req nonconformance.RaiseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "invalid request: "+err.Error())
		return
	}
	nc, err := h.engine.Raise(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseCreated(c, nc)
}

// ListForAudit 审核下的不符合项
// @Summary 审核下的不符合项
// @Tags NonConformances
// @Security BearerAuth
// @Produce json
// @Param id path string true "审核ID"
// @Param status query string false "状态"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Router /api/audits/{id}/ncs [get]
func (h *Handler) ListForAudit(c *gin.Context) {
	h.list(c, func(actor domain.Actor, f nonconformance.ListFilter) ([]domain.NonConformance, int64, error) {
		return h.engine.ListForAudit(c.Request.Context(), actor, c.Param("id"), f)
	})
}

// ListAssigned 过程负责人待办
// @Summary 我负责的不符合项
// @Description 默认只返回 Open
// @Tags NonConformances
// @Security BearerAuth
// @Produce json
// @Param status query string false "状态"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Router /api/ncs/assigned [get]
func (h *Handler) ListAssigned(c *gin.Context) {
	h.list(c, func(actor domain.Actor, f nonconformance.ListFilter) ([]domain.NonConformance, int64, error) {
		return h.engine.ListAssignedToOwner(c.Request.Context(), actor, f)
	})
}

func (h *Handler) list(c *gin.Context, query func(domain.Actor, nonconformance.ListFilter) ([]domain.NonConformance, int64, error)) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var f nonconformance.ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		common.ResponseBadRequest(c, "invalid query: "+err.Error())
		return
	}
	items, total, err := query(actor, f)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseList(c, items, total, f.PaginationRequest)
}

// Get 不符合项详情
// @Summary 不符合项详情
// @Tags NonConformances
// @Security BearerAuth
// @Produce json
// @Param ncId path string true "不符合项ID"
// @Success 200 {object} common.APIResponse{data=domain.NonConformance}
// @Failure 404 {object} common.APIResponse
// @Router /api/ncs/{ncId} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	nc, err := h.engine.Get(c.Request.Context(), actor, c.Param("ncId"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, nc)
}

// Resolve 提交整改
// @Summary 提交整改
// @Description 过程负责人填写原因与纠正措施，Open → Pending_Verification
// @Tags NonConformances
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param ncId path string true "不符合项ID"
// @Param request body nonconformance.ResolveRequest true "整改"
// @Success 200 {object} common.APIResponse{data=domain.NonConformance}
// @Failure 409 {object} common.APIResponse
// @Router /api/ncs/{ncId}/resolve [post]
func (h *Handler) Resolve(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var req nonconformance.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "invalid request: "+err.Error())
		return
	}
	nc, err := h.engine.Resolve(c.Request.Context(), actor, c.Param("ncId"), req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, nc)
}

// Verify 验证关闭
// @Summary 验证整改并关闭
// @Description L1 验证，Pending_Verification → Closed
// @Tags NonConformances
// @Security BearerAuth
// @Produce json
// @Param ncId path string true "不符合项ID"
// @Success 200 {object} common.APIResponse{data=domain.NonConformance}
// @Failure 409 {object} common.APIResponse
// @Router /api/ncs/{ncId}/verify [post]
func (h *Handler) Verify(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	nc, err := h.engine.Verify(c.Request.Context(), actor, c.Param("ncId"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, nc)
}

// Delete 删除不符合项
// @Summary 删除不符合项
// @Description 仅 Open 状态可删除；删除最后一个 Open 项时审核回到 In_Progress
// @Tags NonConformances
// @Security BearerAuth
// @Produce json
// @Param ncId path string true "不符合项ID"
// @Success 200 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/ncs/{ncId} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	if err := h.engine.Delete(c.Request.Context(), actor, c.Param("ncId")); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{"deleted": true})
}
