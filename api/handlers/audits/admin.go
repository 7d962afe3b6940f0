package audits

import (
	"strconv"

	"auditflow/internal/auth"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/lifecycle"

	"github.com/gin-gonic/gin"
)

// AssignRoles 指派空缺角色
// @Summary 指派 L2 与过程负责人
// @Description 只能填写空缺角色，已指派的角色改派为其他人返回 409
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param request body lifecycle.AssignRolesRequest true "角色"
// @Success 200 {object} common.APIResponse{data=domain.Audit}
// @Failure 409 {object} common.APIResponse
// @Router /api/admin/audits/{id}/assign [post]
func (h *Handler) AssignRoles(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var req lifecycle.AssignRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "invalid request: "+err.Error())
		return
	}
	updated, err := h.lifecycle.AssignRoles(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, updated)
}

// SetStatusRequest 强制设置状态请求
type SetStatusRequest struct {
	Status domain.AuditStatus `json:"status" binding:"required"`
	Reason string             `json:"reason" binding:"required"`
}

// SetStatus 管理员强制设置状态
// @Summary 强制设置审核状态
// @Description 绕过流程守卫，仅用于纠错，写入 audit.status_override 日志
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param request body SetStatusRequest true "目标状态"
// @Success 200 {object} common.APIResponse{data=domain.Audit}
// @Router /api/admin/audits/{id}/status [put]
func (h *Handler) SetStatus(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "invalid request: "+err.Error())
		return
	}
	updated, err := h.lifecycle.AdminSetStatus(c.Request.Context(), actor, c.Param("id"), req.Status, req.Reason)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, updated)
}

// DeleteAudit 管理员删除审核
// @Summary 删除审核
// @Description 存在未关闭不符合项时需要 force=true；审计日志保留
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "审核ID"
// @Param force query bool false "强制删除"
// @Success 200 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/admin/audits/{id} [delete]
func (h *Handler) DeleteAudit(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(c.Query("force"))
	if err := h.lifecycle.DeleteAudit(c.Request.Context(), actor, c.Param("id"), force); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{"deleted": true})
}
