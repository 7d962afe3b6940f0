// Package evidence 证据上传接口
package evidence

import (
	"auditflow/internal/auth"
	"auditflow/internal/common"
	"auditflow/internal/evidence"

	"github.com/gin-gonic/gin"
)

// Handler 证据上传处理器
type Handler struct {
	store evidence.Store
}

// NewHandler 创建处理器
func NewHandler(store evidence.Store) *Handler {
	return &Handler{store: store}
}

// UploadResponse 上传结果
type UploadResponse struct {
	URL string `json:"url"`
}

// Upload 上传证据文件
// @Summary 上传证据
// @Description 返回的 url 可作为 evidence_url 写入答案或不符合项
// @Tags Evidence
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "证据文件"
// @Success 201 {object} common.APIResponse{data=UploadResponse}
// @Failure 400 {object} common.APIResponse
// @Router /api/evidence [post]
func (h *Handler) Upload(c *gin.Context) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		common.ResponseBadRequest(c, "file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		common.ResponseBadRequest(c, "cannot read uploaded file")
		return
	}
	defer file.Close()

	url, err := h.store.Save(c.Request.Context(), evidence.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		UploadedBy:  actor.UserID,
		Body:        file,
	})
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseCreated(c, UploadResponse{URL: url})
}
