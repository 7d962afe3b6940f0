package audits

import (
	"auditflow/internal/auth"
	"auditflow/internal/capture"
	"auditflow/internal/common"
	"auditflow/internal/domain"

	"github.com/gin-gonic/gin"
)

// SaveAnswer 保存检查项答案
// @Summary 保存检查项答案
// @Description 按 (审核, 检查项) 幂等保存；首次保存使审核进入 In_Progress
// @Tags Capture
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param ref path string true "检查项ID"
// @Param request body capture.AnswerInput true "答案"
// @Success 200 {object} common.APIResponse{data=domain.ChecklistAnswer}
// @Failure 400 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/audits/{id}/answers/{ref} [put]
func (h *Handler) SaveAnswer(c *gin.Context) {
	var in capture.AnswerInput
	saveRow(c, &in, func(actor domain.Actor, auditID string) (any, error) {
		return h.capture.SaveAnswer(c.Request.Context(), actor, auditID, c.Param("ref"), in)
	})
}

// SaveObjective 保存目标值记录
// @Summary 保存目标值记录
// @Tags Capture
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param request body capture.ObjectiveInput true "目标值"
// @Success 200 {object} common.APIResponse{data=domain.ObjectiveEntry}
// @Router /api/audits/{id}/objectives [put]
func (h *Handler) SaveObjective(c *gin.Context) {
	var in capture.ObjectiveInput
	saveRow(c, &in, func(actor domain.Actor, auditID string) (any, error) {
		return h.capture.SaveObjective(c.Request.Context(), actor, auditID, in)
	})
}

// SaveCalibration 保存校准记录
// @Summary 保存校准记录
// @Description 到期日早于审核计划日期时自动标记并提出不符合项
// @Tags Capture
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param request body capture.CalibrationInput true "校准"
// @Success 200 {object} common.APIResponse{data=domain.CalibrationEntry}
// @Router /api/audits/{id}/calibrations [put]
func (h *Handler) SaveCalibration(c *gin.Context) {
	var in capture.CalibrationInput
	saveRow(c, &in, func(actor domain.Actor, auditID string) (any, error) {
		return h.capture.SaveCalibration(c.Request.Context(), actor, auditID, in)
	})
}

// SaveParameter 保存过程参数记录
// @Summary 保存过程参数记录
// @Description 实测值不满足规格表达式时自动标记并提出不符合项
// @Tags Capture
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审核ID"
// @Param request body capture.ParameterInput true "参数"
// @Success 200 {object} common.APIResponse{data=domain.ParameterEntry}
// @Router /api/audits/{id}/parameters [put]
func (h *Handler) SaveParameter(c *gin.Context) {
	var in capture.ParameterInput
	saveRow(c, &in, func(actor domain.Actor, auditID string) (any, error) {
		return h.capture.SaveParameter(c.Request.Context(), actor, auditID, in)
	})
}

func saveRow(c *gin.Context, in any, save func(actor domain.Actor, auditID string) (any, error)) {
	actor, ok := auth.MustActor(c)
	if !ok {
		return
	}
	if err := c.ShouldBindJSON(in); err != nil {
		common.ResponseBadRequest(c, "invalid request: "+err.Error())
		return
	}
	row, err := save(actor, c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, row)
}
