package audits

import (
	"time"

	"auditflow/internal/auth"
	"auditflow/internal/common"
	"auditflow/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 2 * time.Minute
	eventsPingPeriod = eventsPongWait * 9 / 10
)

// Events 审核事件流
// @Summary 订阅审核状态事件
// @Description WebSocket，每条消息为 {audit_id, action, from, to, actor, at}；浏览器可用 access_token 参数传令牌
// @Tags Audits
// @Security BearerAuth
// @Param id path string true "审核ID"
// @Param access_token query string false "令牌"
// @Router /api/audits/{id}/events [get]
func (h *Handler) Events(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	auditID := c.Param("id")
	if _, err := h.lifecycle.GetAudit(c.Request.Context(), actor, auditID); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	bus := h.lifecycle.Bus()
	if bus == nil {
		common.ResponseError(c, common.CodeServiceUnavailable, "event stream is not enabled")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	log := logger.WithContext(c.Request.Context()).With(zap.String("audit_id", auditID), zap.String("user_id", actor.UserID))

	events, cancel := bus.Subscribe(auditID)
	defer func() {
		cancel()
		_ = conn.Close()
	}()

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.WriteJSON(gin.H{"type": "connected", "audit_id": auditID})
	log.Debug("事件流已连接")

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt, open := <-events:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug("事件推送失败", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
		case <-done:
			log.Debug("事件流已断开")
			return
		}
	}
}
