// Package api HTTP 路由与依赖装配
package api

import (
	"strings"

	_ "auditflow/api/docs"
	"auditflow/internal/metrics"
	"auditflow/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter 创建路由：全局中间件、系统端点、证据静态文件与业务 API
func SetupRouter(container *AppContainer) *gin.Engine {
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点（不需要认证）
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container.DB, container.RedisClient))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 证据文件：URL 不透明，现场终端的图片标签无法携带令牌
	if prefix := container.Evidence.PublicURL(); strings.HasPrefix(prefix, "/") {
		router.Static(prefix, container.Evidence.BasePath())
	}

	RegisterRoutes(router, container, container.InitHandlers())
	return router
}
