package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auditflow/internal/audit"
	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/logger"
	"auditflow/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 审批守卫的失败原因，原样返回给调用方
const (
	ReasonUnscoredAnswers = "All checklist answers must be scored before approval"
	ReasonOpenNCs         = "All NCs must be closed before approval"
)

// Engine L2 评分与合规率计算
type Engine struct {
	db       *gorm.DB
	recorder *audit.Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// NewEngine 创建评分引擎
func NewEngine(db *gorm.DB, recorder *audit.Recorder) *Engine {
	return &Engine{
		db:       db,
		recorder: recorder,
		tracer:   otel.Tracer("auditflow/internal/scoring"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ScoreRequest 评分请求
type ScoreRequest struct {
	Score   *int   `json:"score" binding:"required"`
	Remarks string `json:"remarks"`
}

// Score 为检查项答案打分，仅指派的 L2 且审核处于 Submitted_to_L2 时允许，不改变审核状态
func (e *Engine) Score(ctx context.Context, actor domain.Actor, auditID, answerID string, req ScoreRequest) (answer *domain.ChecklistAnswer, err error) {
	ctx, span := e.tracer.Start(ctx, "Scoring.Score")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID), attribute.String("answer_id", answerID))

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := domain.LockAudit(tx, auditID)
		if err != nil {
			return err
		}
		if a.L2AuditorID == "" || a.L2AuditorID != actor.UserID {
			return common.NewForbidden("only the assigned L2 auditor can score answers")
		}
		if req.Score == nil || !domain.Score(*req.Score).Valid() {
			return common.NewValidation("score must be one of 0 (NC), 1 (Observation), 2 (OK), 3 (NA)")
		}
		if a.Status != domain.StatusSubmittedToL2 {
			return common.NewConflict("answers can only be scored while the audit is %s (current: %s)", domain.StatusSubmittedToL2, a.Status)
		}

		var current domain.ChecklistAnswer
		if err := tx.Where("id = ? AND audit_id = ?", answerID, auditID).First(&current).Error; err != nil {
			if common.IsNotFound(err) {
				return common.NewNotFound("answer %s not found on audit %s", answerID, auditID)
			}
			return fmt.Errorf("查询答案失败: %w", err)
		}

		now := e.now()
		updates := map[string]any{
			"l2_score":   *req.Score,
			"l2_remarks": strings.TrimSpace(req.Remarks),
			"scored_by":  actor.UserID,
			"scored_at":  now,
		}
		if err := tx.Model(&domain.ChecklistAnswer{}).Where("id = ?", answerID).Updates(updates).Error; err != nil {
			return fmt.Errorf("写入评分失败: %w", err)
		}

		detail := map[string]any{
			"answer_id":   answerID,
			"question_id": current.QuestionID,
			"score":       *req.Score,
			"label":       domain.Score(*req.Score).Label(),
		}
		if current.L2Score != nil {
			detail["previous_score"] = *current.L2Score
		}
		if _, err := e.recorder.Append(tx, audit.Entry{
			AuditID: auditID,
			Action:  audit.ActionAnswerScored,
			ActorID: actor.UserID,
			Detail:  detail,
		}); err != nil {
			return err
		}

		if err := tx.Where("id = ?", answerID).First(&current).Error; err != nil {
			return fmt.Errorf("读取评分结果失败: %w", err)
		}
		answer = &current
		return nil
	})
	if err != nil {
		if be, ok := common.AsBusinessError(err); ok {
			metrics.RecordGuardRejection("score", be.Code)
		}
		return nil, err
	}

	logger.WithContext(ctx).Info("检查项已评分",
		zap.String("audit_id", auditID),
		zap.String("answer_id", answerID),
		zap.Int("score", *req.Score),
	)
	return answer, nil
}

// Compliance 合规率
type Compliance struct {
	AuditID       string           `json:"audit_id"`
	TotalAnswers  int64            `json:"total_answers"`
	Scored        int64            `json:"scored"`         // 计入合规率的评分数（0/1/2）
	NotApplicable int64            `json:"not_applicable"` // NA(3)，不计入分子分母
	Unscored      int64            `json:"unscored"`
	Average       float64          `json:"average"`
	Percentage    float64          `json:"percentage"`
	Breakdown     map[string]int64 `json:"breakdown"`
}

type scoreCount struct {
	Score *int
	Count int64
}

// Compliance 按评分分组统计合规率
func (e *Engine) Compliance(ctx context.Context, auditID string) (result *Compliance, err error) {
	ctx, span := e.tracer.Start(ctx, "Scoring.Compliance")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID))

	db := e.db.WithContext(ctx)
	if _, err := domain.FindAudit(db, auditID); err != nil {
		return nil, err
	}

	result, err = ComplianceTx(db, auditID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Float64("compliance.percentage", result.Percentage))
	return result, nil
}

// ComplianceTx 在给定连接或事务内统计合规率
func ComplianceTx(tx *gorm.DB, auditID string) (*Compliance, error) {
	var rows []scoreCount
	if err := tx.Model(&domain.ChecklistAnswer{}).
		Select("l2_score AS score, COUNT(*) AS count").
		Scopes(common.ByAudit(auditID)).
		Group("l2_score").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计评分失败: %w", err)
	}

	counts := make(map[domain.Score]int64)
	var unscored int64
	for _, r := range rows {
		if r.Score == nil {
			unscored += r.Count
			continue
		}
		counts[domain.Score(*r.Score)] += r.Count
	}

	result := ComputeCompliance(counts)
	result.AuditID = auditID
	result.Unscored = unscored
	result.TotalAnswers += unscored
	return result, nil
}

// ComputeCompliance average = Σ(score·count)/Σcount，只统计 {0,1,2}；
// percentage = average/2·100；没有可计分答案时为 0
func ComputeCompliance(counts map[domain.Score]int64) *Compliance {
	c := &Compliance{Breakdown: make(map[string]int64)}
	var weighted int64
	for score, n := range counts {
		if n <= 0 || !score.Valid() {
			continue
		}
		c.Breakdown[score.Label()] = n
		c.TotalAnswers += n
		if score == domain.ScoreNA {
			c.NotApplicable += n
			continue
		}
		c.Scored += n
		weighted += int64(score) * n
	}
	if c.Scored > 0 {
		c.Average = float64(weighted) / float64(c.Scored)
		c.Percentage = c.Average / float64(domain.ScoreOK) * 100
	}
	return c
}

// ApprovalGate 审批守卫：所有答案已评分且所有 NC 已关闭，须在持有审核行锁的事务内调用
func ApprovalGate(tx *gorm.DB, auditID string) error {
	var unscored int64
	if err := tx.Model(&domain.ChecklistAnswer{}).
		Scopes(common.ByAudit(auditID)).
		Where("l2_score IS NULL").
		Count(&unscored).Error; err != nil {
		return fmt.Errorf("统计未评分答案失败: %w", err)
	}
	if unscored > 0 {
		return common.NewConflict(ReasonUnscoredAnswers)
	}

	var unclosed int64
	if err := tx.Model(&domain.NonConformance{}).
		Scopes(common.ByAudit(auditID)).
		Where("status <> ?", domain.NCClosed).
		Count(&unclosed).Error; err != nil {
		return fmt.Errorf("统计未关闭不符合项失败: %w", err)
	}
	if unclosed > 0 {
		return common.NewConflict(ReasonOpenNCs)
	}
	return nil
}

// ClearScores 驳回时清空该审核所有评分（直接丢弃，不归档）
func ClearScores(tx *gorm.DB, auditID string) (int64, error) {
	res := tx.Model(&domain.ChecklistAnswer{}).
		Scopes(common.ByAudit(auditID)).
		Updates(map[string]any{
			"l2_score":   nil,
			"l2_remarks": "",
			"scored_by":  "",
			"scored_at":  nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("清空评分失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
