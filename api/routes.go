package api

import (
	"auditflow/internal/auth"
	"auditflow/internal/domain"
	"auditflow/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
// L1/L2/过程负责人的权限取决于审核上的指派，由服务层校验；这里只做管理员守卫
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(container.JWTService))
	if container.RateLimiter != nil {
		api.Use(middleware.RateLimitMiddleware(container.RateLimiter))
	}

	adminGuard := auth.RequireRole(domain.RoleAdmin)

	registerAuditRoutes(api, handlers, adminGuard)
	registerNCRoutes(api, handlers)
	registerTemplateRoutes(api, handlers, adminGuard)
	registerAdminRoutes(api, handlers, adminGuard)

	api.POST("/evidence", handlers.Evidence.Upload)
}

func registerAuditRoutes(apiGroup *gin.RouterGroup, h *Handlers, adminGuard gin.HandlerFunc) {
	auditGroup := apiGroup.Group("/audits")
	{
		auditGroup.GET("", h.Audits.ListAudits)
		auditGroup.POST("", adminGuard, h.Audits.CreateAudit)
		auditGroup.GET("/:id", h.Audits.GetAudit)

		// 数据采集（L1）
		auditGroup.PUT("/:id/answers/:ref", h.Audits.SaveAnswer)
		auditGroup.PUT("/:id/objectives", h.Audits.SaveObjective)
		auditGroup.PUT("/:id/calibrations", h.Audits.SaveCalibration)
		auditGroup.PUT("/:id/parameters", h.Audits.SaveParameter)

		// 流程
		auditGroup.POST("/:id/submit", h.Audits.Submit)
		auditGroup.POST("/:id/approve", h.Audits.Approve)
		auditGroup.POST("/:id/reject", h.Audits.Reject)

		// 评分（L2）
		auditGroup.PUT("/:id/answers/:ref/score", h.Audits.ScoreAnswer)
		auditGroup.GET("/:id/compliance", h.Audits.Compliance)

		// 不符合项
		auditGroup.POST("/:id/ncs", h.NCs.Raise)
		auditGroup.GET("/:id/ncs", h.NCs.ListForAudit)

		// 审计日志与事件
		auditGroup.GET("/:id/logs", h.Audits.ListLogs)
		auditGroup.GET("/:id/logs.csv", h.Audits.ExportLogs)
		auditGroup.GET("/:id/events", h.Audits.Events)
	}
}

func registerNCRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	ncGroup := apiGroup.Group("/ncs")
	{
		ncGroup.GET("/assigned", h.NCs.ListAssigned)
		ncGroup.GET("/:ncId", h.NCs.Get)
		ncGroup.POST("/:ncId/resolve", h.NCs.Resolve)
		ncGroup.POST("/:ncId/verify", h.NCs.Verify)
		ncGroup.DELETE("/:ncId", h.NCs.Delete)
	}
}

func registerTemplateRoutes(apiGroup *gin.RouterGroup, h *Handlers, adminGuard gin.HandlerFunc) {
	templateGroup := apiGroup.Group("/templates")
	{
		templateGroup.GET("", h.Templates.ListTemplates)
		templateGroup.POST("", adminGuard, h.Templates.CreateTemplate)
		templateGroup.GET("/:id", h.Templates.GetTemplate)
		templateGroup.GET("/:id/questions", h.Templates.Questions)
		templateGroup.POST("/:id/publish", adminGuard, h.Templates.Publish)
	}
}

// registerAdminRoutes 管理员纠错入口，与业务流程分开路由
func registerAdminRoutes(apiGroup *gin.RouterGroup, h *Handlers, adminGuard gin.HandlerFunc) {
	adminGroup := apiGroup.Group("/admin", adminGuard)
	{
		adminGroup.POST("/audits/:id/assign", h.Audits.AssignRoles)
		adminGroup.PUT("/audits/:id/status", h.Audits.SetStatus)
		adminGroup.DELETE("/audits/:id", h.Audits.DeleteAudit)
	}
}
