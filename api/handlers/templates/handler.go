// Package templates 检查表模板接口
package templates

import (
	"auditflow/internal/auth"
	"auditflow/internal/common"
	"auditflow/internal/template"

	"github.com/gin-gonic/gin"
)

// Handler 模板接口处理器
type Handler struct {
	catalog *template.Catalog
}

// NewHandler 创建处理器
func NewHandler(catalog *template.Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// CreateTemplate 创建模板版本
// @Summary 创建模板版本
// @Description 同一 code 的版本号自动递增，新版本为草稿
// @Tags Templates
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body template.CreateTemplateRequest true "模板"
// @Success 201 {object} common.APIResponse{data=template.ChecklistTemplate}
// @Failure 400 {object} common.APIResponse
// @Router /api/templates [post]
func (h *Handler) CreateTemplate(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	var req template.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.CreatedBy = actor.UserID
	tmpl, err := h.catalog.CreateTemplate(c.Request.Context(), &req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseCreated(c, tmpl)
}

// Publish 发布模板
// @Summary 发布模板版本
// @Description 发布后检查项不可变，只有已发布版本可用于创建审核
// @Tags Templates
// @Security BearerAuth
// @Produce json
// @Param id path string true "模板ID"
// @Success 200 {object} common.APIResponse{data=template.ChecklistTemplate}
// @Failure 409 {object} common.APIResponse
// @Router /api/templates/{id}/publish [post]
func (h *Handler) Publish(c *gin.Context) {
	tmpl, err := h.catalog.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, tmpl)
}

// ListTemplates 模板列表
// @Summary 模板列表
// @Tags Templates
// @Security BearerAuth
// @Produce json
// @Param code query string false "模板编码"
// @Param published_only query bool false "只看已发布"
// @Success 200 {object} common.APIResponse{data=common.ListResponse}
// @Router /api/templates [get]
func (h *Handler) ListTemplates(c *gin.Context) {
	var f template.ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		common.ResponseBadRequest(c, "invalid query: "+err.Error())
		return
	}
	items, total, err := h.catalog.List(c.Request.Context(), f)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseList(c, items, total, f.PaginationRequest)
}

// GetTemplate 模板详情
// @Summary 模板详情
// @Tags Templates
// @Security BearerAuth
// @Produce json
// @Param id path string true "模板ID"
// @Success 200 {object} common.APIResponse{data=template.ChecklistTemplate}
// @Failure 404 {object} common.APIResponse
// @Router /api/templates/{id} [get]
func (h *Handler) GetTemplate(c *gin.Context) {
	tmpl, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, tmpl)
}

// Questions 模板检查项
// @Summary 模板检查项
// @Description 按分组与序号排列
// @Tags Templates
// @Security BearerAuth
// @Produce json
// @Param id path string true "模板ID"
// @Success 200 {object} common.APIResponse{data=[]template.Question}
// @Router /api/templates/{id}/questions [get]
func (h *Handler) Questions(c *gin.Context) {
	questions, err := h.catalog.QuestionsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, questions)
}
