// Package evidence 证据文件存储，返回可写入答案或不符合项的 URL
package evidence

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"auditflow/internal/common"
	"auditflow/internal/config"
	"auditflow/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 允许上传的文件类型
var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".pdf":  "application/pdf",
}

// Upload 一次上传
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	UploadedBy  string
	Body        io.Reader
}

// Store 证据存储，返回的 URL 对调用方不透明
type Store interface {
	Save(ctx context.Context, up Upload) (string, error)
}

// DiskStore 本地磁盘存储，按 年/月 分目录，文件名为 uuid
type DiskStore struct {
	basePath  string
	publicURL string
	maxSize   int64
	now       func() time.Time
}

// NewDiskStore 创建磁盘存储并确保根目录存在
func NewDiskStore(cfg config.EvidenceConfig) (*DiskStore, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("evidence.base_path 未配置")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("创建证据目录失败: %w", err)
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = "/evidence"
	}
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &DiskStore{
		basePath:  cfg.BasePath,
		publicURL: publicURL,
		maxSize:   maxSize,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// BasePath 存储根目录，供静态文件路由使用
func (s *DiskStore) BasePath() string { return s.basePath }

// PublicURL 访问前缀
func (s *DiskStore) PublicURL() string { return s.publicURL }

// Save 校验类型与大小后写盘
func (s *DiskStore) Save(ctx context.Context, up Upload) (string, error) {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", common.NewValidation("file type %q is not allowed", ext)
	}
	if up.Size > s.maxSize {
		return "", common.NewValidation("file exceeds the %d byte limit", s.maxSize)
	}

	now := s.now()
	rel := path.Join(now.Format("2006"), now.Format("01"), uuid.NewString()+ext)
	full := filepath.Join(s.basePath, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("创建证据目录失败: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("创建证据文件失败: %w", err)
	}
	// 多读一个字节判断是否超限，Size 由客户端声明不可信
	written, copyErr := io.Copy(f, io.LimitReader(up.Body, s.maxSize+1))
	closeErr := f.Close()
	if copyErr == nil && written > s.maxSize {
		copyErr = common.NewValidation("file exceeds the %d byte limit", s.maxSize)
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(full)
		if _, ok := common.AsBusinessError(copyErr); ok {
			return "", copyErr
		}
		return "", fmt.Errorf("写入证据文件失败: %w", copyErr)
	}

	url := s.publicURL + "/" + rel
	logger.WithContext(ctx).Info("证据文件已保存",
		zap.String("url", url),
		zap.String("uploaded_by", up.UploadedBy),
		zap.Int64("size", written),
	)
	return url, nil
}
