package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"auditflow/internal/config"
	"auditflow/internal/logger"
	"auditflow/internal/metrics"

	"go.uber.org/zap"
)

// 投递渠道
const (
	ChannelLog     = "log"
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
)

// Deliverer 实际投递通知的渠道
type Deliverer interface {
	Channel() string
	Deliver(ctx context.Context, msg Message) error
}

// NewDeliverer 按配置选择投递渠道
func NewDeliverer(cfg config.NotificationConfig) (Deliverer, error) {
	switch cfg.Channel {
	case "", ChannelLog:
		return LogDeliverer{}, nil
	case ChannelWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook 渠道需要配置 webhook_url")
		}
		return NewWebhookDeliverer(&WebhookConfig{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret}), nil
	case ChannelEmail:
		if cfg.SMTPHost == "" || cfg.EmailDomain == "" {
			return nil, fmt.Errorf("email 渠道需要配置 smtp_host 与 email_domain")
		}
		return NewEmailDeliverer(&EmailConfig{
			SMTPHost: cfg.SMTPHost,
			SMTPPort: cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			Domain:   cfg.EmailDomain,
		}), nil
	default:
		return nil, fmt.Errorf("不支持的通知渠道: %s", cfg.Channel)
	}
}

// Deliver 投递并记录指标
func Deliver(ctx context.Context, d Deliverer, msg Message) error {
	err := d.Deliver(ctx, msg)
	status := "sent"
	if err != nil {
		status = "failed"
	}
	metrics.NotificationsTotal.WithLabelValues(msg.Kind, d.Channel(), status).Inc()
	return err
}

// LogDeliverer 只写日志，开发环境默认渠道
type LogDeliverer struct{}

func (LogDeliverer) Channel() string { return ChannelLog }

func (LogDeliverer) Deliver(ctx context.Context, msg Message) error {
	logger.WithContext(ctx).Info("通知",
		zap.String("recipient", msg.Recipient),
		zap.String("kind", msg.Kind),
		zap.String("audit_id", msg.AuditID),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// WebhookConfig Webhook 配置
type WebhookConfig struct {
	URL     string
	Secret  string // 非空时附加 HMAC-SHA256 签名
	Timeout time.Duration
	Headers map[string]string
}

// WebhookDeliverer 以 JSON POST 投递
type WebhookDeliverer struct {
	config *WebhookConfig
	client *http.Client
}

// NewWebhookDeliverer 创建 Webhook 投递
func NewWebhookDeliverer(cfg *WebhookConfig) *WebhookDeliverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookDeliverer{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (w *WebhookDeliverer) Channel() string { return ChannelWebhook }

func (w *WebhookDeliverer) Deliver(ctx context.Context, msg Message) error {
	now := time.Now().UTC()
	body, err := json.Marshal(map[string]any{
		"kind":      msg.Kind,
		"recipient": msg.Recipient,
		"audit_id":  msg.AuditID,
		"subject":   msg.Subject,
		"body":      msg.Body,
		"timestamp": now.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("序列化 Webhook 负载失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建 Webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AuditFlow-Notifier/1.0")
	req.Header.Set("X-Webhook-Event", msg.Kind)
	req.Header.Set("X-Webhook-Timestamp", now.Format(time.RFC3339))
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}
	if w.config.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, w.config.Secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Webhook 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhook 返回错误状态: %d", resp.StatusCode)
	}
	return nil
}

// Sign 计算 HMAC-SHA256 签名
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// EmailConfig 邮件配置
type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	Domain   string // 收件地址为 <用户ID>@Domain
}

// EmailDeliverer SMTP 邮件投递
type EmailDeliverer struct {
	config *EmailConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailDeliverer 创建邮件投递
func NewEmailDeliverer(cfg *EmailConfig) *EmailDeliverer {
	return &EmailDeliverer{config: cfg, send: smtp.SendMail}
}

func (e *EmailDeliverer) Channel() string { return ChannelEmail }

func (e *EmailDeliverer) Deliver(_ context.Context, msg Message) error {
	to := fmt.Sprintf("%s@%s", msg.Recipient, e.config.Domain)
	message := fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		e.config.From, to, msg.Subject, msg.Body,
	)

	var auth smtp.Auth
	if e.config.Username != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	if err := e.send(addr, auth, e.config.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}
