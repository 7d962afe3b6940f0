package auth

import (
	"context"
	"strings"

	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextKey 上下文键类型
type ContextKey string

// ActorContextKey 调用方上下文键
const ActorContextKey ContextKey = "actor"

// AuthMiddleware JWT 认证中间件，成功后上下文中带有 domain.Actor
func AuthMiddleware(jwtService *JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			common.AbortWithError(c, common.CodeUnauthorized, "missing bearer token")
			return
		}

		claims, err := jwtService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			logger.WithContext(c.Request.Context()).Debug("令牌校验失败", zap.Error(err))
			common.AbortWithError(c, common.CodeUnauthorized, err.Error())
			return
		}

		actor := claims.Actor()
		c.Set(string(ActorContextKey), actor)
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// tokenFromRequest Authorization 头优先；浏览器 websocket 无法设置头，退回 access_token 参数
func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return strings.TrimSpace(ExtractTokenFromBearer(header))
	}
	return strings.TrimSpace(c.Query("access_token"))
}

// RequireRole 角色检查中间件，任一角色满足即可
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			common.AbortWithError(c, common.CodeUnauthorized, "not authenticated")
			return
		}
		for _, r := range roles {
			if actor.HasRole(r) {
				c.Next()
				return
			}
		}
		common.AbortWithError(c, common.CodeForbidden, "insufficient role")
	}
}

// GetActor 从 Gin Context 获取调用方
func GetActor(c *gin.Context) (domain.Actor, bool) {
	v, exists := c.Get(string(ActorContextKey))
	if !exists {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

// MustActor 取调用方，未认证时写入 401 并返回 false
func MustActor(c *gin.Context) (domain.Actor, bool) {
	actor, ok := GetActor(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "not authenticated")
	}
	return actor, ok
}

// WithActor 在标准 context.Context 中设置调用方
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// ActorFromContext 从标准 context.Context 获取调用方
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(domain.Actor)
	return actor, ok
}
