package capture

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"auditflow/internal/common"
	"auditflow/internal/domain"

	"github.com/Knetic/govaluate"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnswerInput 检查项答案
type AnswerInput struct {
	Value       string `json:"value"`
	Remarks     string `json:"remarks"`
	EvidenceURL string `json:"evidence_url"`
	Flagged     bool   `json:"flagged"`
}

// SaveAnswer 按 (audit_id, question_id) 保存答案，不会覆盖 L2 评分
func (s *Service) SaveAnswer(ctx context.Context, actor domain.Actor, auditID, questionID string, in AnswerInput) (*domain.ChecklistAnswer, error) {
	questionID = strings.TrimSpace(questionID)
	var saved domain.ChecklistAnswer

	err := s.save(ctx, actor, auditID, KindAnswer,
		func(a *domain.Audit) error { return s.lookupQuestion(ctx, a, questionID) },
		func(tx *gorm.DB, a *domain.Audit) (*flag, bool, error) {
			var prev domain.ChecklistAnswer
			found, err := previous(tx.Where("audit_id = ? AND question_id = ?", a.ID, questionID), &prev)
			if err != nil {
				return nil, false, err
			}
			row := domain.ChecklistAnswer{
				ID:          uuid.NewString(),
				AuditID:     a.ID,
				QuestionID:  questionID,
				Value:       in.Value,
				Remarks:     in.Remarks,
				EvidenceURL: in.EvidenceURL,
				Flagged:     in.Flagged,
			}
			err = upsert(tx, &row,
				[]string{"audit_id", "question_id"},
				[]string{"value", "remarks", "evidence_url", "flagged", "updated_at"})
			if err != nil {
				return nil, false, err
			}
			if err := tx.Where("audit_id = ? AND question_id = ?", a.ID, questionID).First(&saved).Error; err != nil {
				return nil, false, fmt.Errorf("回读检查项答案失败: %w", err)
			}

			var f *flag
			if newlyFlagged(found, prev.Flagged, prev.Value != saved.Value, saved.Flagged) {
				f = &flag{ref: domain.AnswerRef(questionID), description: firstNonEmpty(in.Remarks, in.Value)}
			}
			return f, saved.ID == row.ID, nil
		})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// ObjectiveInput 目标达成记录
type ObjectiveInput struct {
	ObjectiveType string `json:"objective_type" binding:"required"`
	ParameterName string `json:"parameter_name" binding:"required"`
	TargetValue   string `json:"target_value"`
	ActualValue   string `json:"actual_value"`
	Remarks       string `json:"remarks"`
	Flagged       bool   `json:"flagged"`
}

// SaveObjective 按 (audit_id, objective_type, parameter_name) 保存
func (s *Service) SaveObjective(ctx context.Context, actor domain.Actor, auditID string, in ObjectiveInput) (*domain.ObjectiveEntry, error) {
	in.ObjectiveType = strings.TrimSpace(in.ObjectiveType)
	in.ParameterName = strings.TrimSpace(in.ParameterName)
	var saved domain.ObjectiveEntry

	err := s.save(ctx, actor, auditID, KindObjective,
		func(*domain.Audit) error {
			if in.ObjectiveType == "" || in.ParameterName == "" {
				return common.NewValidation("objective_type and parameter_name are required")
			}
			return nil
		},
		func(tx *gorm.DB, a *domain.Audit) (*flag, bool, error) {
			var prev domain.ObjectiveEntry
			found, err := previous(tx.Where("audit_id = ? AND objective_type = ? AND parameter_name = ?",
				a.ID, in.ObjectiveType, in.ParameterName), &prev)
			if err != nil {
				return nil, false, err
			}
			row := domain.ObjectiveEntry{
				ID:            uuid.NewString(),
				AuditID:       a.ID,
				ObjectiveType: in.ObjectiveType,
				ParameterName: in.ParameterName,
				TargetValue:   in.TargetValue,
				ActualValue:   in.ActualValue,
				Remarks:       in.Remarks,
				Flagged:       in.Flagged,
			}
			err = upsert(tx, &row,
				[]string{"audit_id", "objective_type", "parameter_name"},
				[]string{"target_value", "actual_value", "remarks", "flagged", "updated_at"})
			if err != nil {
				return nil, false, err
			}
			if err := tx.Where("audit_id = ? AND objective_type = ? AND parameter_name = ?",
				a.ID, in.ObjectiveType, in.ParameterName).First(&saved).Error; err != nil {
				return nil, false, fmt.Errorf("回读目标值记录失败: %w", err)
			}

			var f *flag
			changed := prev.TargetValue != saved.TargetValue || prev.ActualValue != saved.ActualValue
			if newlyFlagged(found, prev.Flagged, changed, saved.Flagged) {
				f = &flag{
					ref: domain.ObjectiveRef(in.ObjectiveType, in.ParameterName),
					description: firstNonEmpty(in.Remarks,
						fmt.Sprintf("%s %s: target %s, actual %s", in.ObjectiveType, in.ParameterName, in.TargetValue, in.ActualValue)),
				}
			}
			return f, saved.ID == row.ID, nil
		})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// CalibrationInput 量具校准记录，日期格式 YYYY-MM-DD
type CalibrationInput struct {
	InstrumentName string `json:"instrument_name" binding:"required"`
	InstrumentCode string `json:"instrument_code"`
	CalibratedOn   string `json:"calibrated_on"`
	DueOn          string `json:"due_on"`
	Remarks        string `json:"remarks"`
	Flagged        bool   `json:"flagged"`
}

// SaveCalibration 按 (audit_id, instrument_name) 保存；到期日早于审核计划日期视为过期并自动标记
func (s *Service) SaveCalibration(ctx context.Context, actor domain.Actor, auditID string, in CalibrationInput) (*domain.CalibrationEntry, error) {
	in.InstrumentName = strings.TrimSpace(in.InstrumentName)
	var saved domain.CalibrationEntry

	err := s.save(ctx, actor, auditID, KindCalibration,
		func(*domain.Audit) error {
			if in.InstrumentName == "" {
				return common.NewValidation("instrument_name is required")
			}
			if _, err := parseDate("calibrated_on", in.CalibratedOn); err != nil {
				return err
			}
			_, err := parseDate("due_on", in.DueOn)
			return err
		},
		func(tx *gorm.DB, a *domain.Audit) (*flag, bool, error) {
			calibratedOn, _ := parseDate("calibrated_on", in.CalibratedOn)
			dueOn, _ := parseDate("due_on", in.DueOn)
			overdue := dueOn != nil && dueOn.Before(dayOf(a.ScheduledDate))

			var prev domain.CalibrationEntry
			found, err := previous(tx.Where("audit_id = ? AND instrument_name = ?", a.ID, in.InstrumentName), &prev)
			if err != nil {
				return nil, false, err
			}
			row := domain.CalibrationEntry{
				ID:             uuid.NewString(),
				AuditID:        a.ID,
				InstrumentName: in.InstrumentName,
				InstrumentCode: in.InstrumentCode,
				CalibratedOn:   calibratedOn,
				DueOn:          dueOn,
				Remarks:        in.Remarks,
				Flagged:        in.Flagged || overdue,
			}
			err = upsert(tx, &row,
				[]string{"audit_id", "instrument_name"},
				[]string{"instrument_code", "calibrated_on", "due_on", "remarks", "flagged", "updated_at"})
			if err != nil {
				return nil, false, err
			}
			if err := tx.Where("audit_id = ? AND instrument_name = ?", a.ID, in.InstrumentName).First(&saved).Error; err != nil {
				return nil, false, fmt.Errorf("回读校准记录失败: %w", err)
			}

			changed := !sameDay(prev.DueOn, saved.DueOn) || !sameDay(prev.CalibratedOn, saved.CalibratedOn)
			if !newlyFlagged(found, prev.Flagged, changed, saved.Flagged) {
				return nil, saved.ID == row.ID, nil
			}
			var f *flag
			switch {
			case overdue:
				f = &flag{
					ref: domain.CalibrationRef(in.InstrumentName),
					description: fmt.Sprintf("Instrument %s calibration overdue (due %s, audit scheduled %s)",
						in.InstrumentName, dueOn.Format("2006-01-02"), a.ScheduledDate.Format("2006-01-02")),
				}
			default:
				f = &flag{ref: domain.CalibrationRef(in.InstrumentName), description: in.Remarks}
			}
			return f, saved.ID == row.ID, nil
		})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// ParameterInput 工艺参数记录，specification 为关于 value 的布尔表达式
type ParameterInput struct {
	ParameterName string `json:"parameter_name" binding:"required"`
	Specification string `json:"specification"`
	ActualValue   string `json:"actual_value"`
	Unit          string `json:"unit"`
	Remarks       string `json:"remarks"`
	Flagged       bool   `json:"flagged"`
}

// SaveParameter 按 (audit_id, parameter_name) 保存；数值实测值不满足规格时自动标记
func (s *Service) SaveParameter(ctx context.Context, actor domain.Actor, auditID string, in ParameterInput) (*domain.ParameterEntry, error) {
	in.ParameterName = strings.TrimSpace(in.ParameterName)
	in.Specification = strings.TrimSpace(in.Specification)
	var saved domain.ParameterEntry
	var withinSpec = true

	err := s.save(ctx, actor, auditID, KindParameter,
		func(*domain.Audit) error {
			if in.ParameterName == "" {
				return common.NewValidation("parameter_name is required")
			}
			ok, err := CheckSpecification(in.Specification, in.ActualValue)
			if err != nil {
				return err
			}
			withinSpec = ok
			return nil
		},
		func(tx *gorm.DB, a *domain.Audit) (*flag, bool, error) {
			var prev domain.ParameterEntry
			found, err := previous(tx.Where("audit_id = ? AND parameter_name = ?", a.ID, in.ParameterName), &prev)
			if err != nil {
				return nil, false, err
			}
			row := domain.ParameterEntry{
				ID:            uuid.NewString(),
				AuditID:       a.ID,
				ParameterName: in.ParameterName,
				Specification: in.Specification,
				ActualValue:   in.ActualValue,
				Unit:          in.Unit,
				Remarks:       in.Remarks,
				Flagged:       in.Flagged || !withinSpec,
			}
			err = upsert(tx, &row,
				[]string{"audit_id", "parameter_name"},
				[]string{"specification", "actual_value", "unit", "remarks", "flagged", "updated_at"})
			if err != nil {
				return nil, false, err
			}
			if err := tx.Where("audit_id = ? AND parameter_name = ?", a.ID, in.ParameterName).First(&saved).Error; err != nil {
				return nil, false, fmt.Errorf("回读参数记录失败: %w", err)
			}

			changed := prev.Specification != saved.Specification || prev.ActualValue != saved.ActualValue || prev.Unit != saved.Unit
			if !newlyFlagged(found, prev.Flagged, changed, saved.Flagged) {
				return nil, saved.ID == row.ID, nil
			}
			var f *flag
			switch {
			case !withinSpec:
				f = &flag{
					ref: domain.ParameterRef(in.ParameterName),
					description: fmt.Sprintf("Parameter %s out of specification: %s %s (spec: %s)",
						in.ParameterName, in.ActualValue, in.Unit, in.Specification),
				}
			default:
				f = &flag{ref: domain.ParameterRef(in.ParameterName), description: firstNonEmpty(in.Remarks, in.ActualValue)}
			}
			return f, saved.ID == row.ID, nil
		})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// CheckSpecification 对数值实测值求规格表达式；无规格或实测值非数值时视为合格
func CheckSpecification(spec, actual string) (bool, error) {
	if spec == "" {
		return true, nil
	}
	expr, err := govaluate.NewEvaluableExpression(spec)
	if err != nil {
		return false, common.NewValidation("specification %q is not a valid expression: %v", spec, err)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	if err != nil {
		return true, nil
	}
	result, err := expr.Evaluate(map[string]any{"value": value})
	if err != nil {
		return false, common.NewValidation("specification %q cannot be evaluated: %v", spec, err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, common.NewValidation("specification %q must be a boolean expression over value", spec)
	}
	return ok, nil
}

// previous 读取 upsert 前的同键行，调用方须持有审核行锁
func previous(q *gorm.DB, dest any) (bool, error) {
	res := q.Limit(1).Find(dest)
	if res.Error != nil {
		return false, fmt.Errorf("读取已有采集行失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// newlyFlagged 本次保存是否使行进入标记：首次写入、未标记变为标记，或标记状态下实测内容变化
// 同一内容重复保存不会再次提出 NC，即使之前的 NC 已关闭
func newlyFlagged(found, wasFlagged, contentChanged, flagged bool) bool {
	return flagged && (!found || !wasFlagged || contentChanged)
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return dayOf(*a).Equal(dayOf(*b))
}

// upsert INSERT … ON CONFLICT (自然键) DO UPDATE，ID 只在首次插入时生效
func upsert(tx *gorm.DB, row any, keys, updates []string) error {
	columns := make([]clause.Column, len(keys))
	for i, k := range keys {
		columns[i] = clause.Column{Name: k}
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("保存采集行失败: %w", err)
	}
	return nil
}
