package capture

import (
	"context"
	"errors"
	"time"

	"auditflow/internal/common"
	"auditflow/internal/domain"
	"auditflow/internal/lifecycle"
	"auditflow/internal/logger"
	"auditflow/internal/metrics"
	"auditflow/internal/nonconformance"
	"auditflow/internal/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 采集行类型
const (
	KindAnswer      = "answer"
	KindObjective   = "objective"
	KindCalibration = "calibration"
	KindParameter   = "parameter"
)

// QuestionLookup 校验检查项属于审核所用模板
type QuestionLookup interface {
	Question(ctx context.Context, templateID, questionID string) (*template.Question, error)
}

// Service 采集行幂等保存
// 每种采集行按自然键 upsert，首次保存把 Assigned 推进到 In_Progress，标记行自动提出 NC
type Service struct {
	db        *gorm.DB
	questions QuestionLookup
	lifecycle *lifecycle.Manager
	ncs       *nonconformance.Engine
	retries   int
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService 创建采集服务，retries 为唯一约束冲突时整事务重试次数
func NewService(db *gorm.DB, questions QuestionLookup, lc *lifecycle.Manager, ncs *nonconformance.Engine, retries int) *Service {
	if retries < 0 {
		retries = 0
	}
	return &Service{
		db:        db,
		questions: questions,
		lifecycle: lc,
		ncs:       ncs,
		retries:   retries,
		tracer:    otel.Tracer("auditflow/internal/capture"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// flag 保存后需要自动提出的不符合项
type flag struct {
	ref         domain.NCRef
	description string
}

// upsertFunc 在持有审核行锁的事务内写入一行并回读，返回需要自动提出的 NC
type upsertFunc func(tx *gorm.DB, a *domain.Audit) (*flag, bool, error)

// save 通用保存流程：守卫（NotFound → Forbidden → Validation → Conflict）、upsert、副作用迁移
func (s *Service) save(ctx context.Context, actor domain.Actor, auditID, kind string, validate func(a *domain.Audit) error, upsert upsertFunc) (err error) {
	ctx, span := s.tracer.Start(ctx, "Capture.Save")
	defer func() { common.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("audit_id", auditID), attribute.String("capture.kind", kind))

	defer func() {
		if be, ok := common.AsBusinessError(err); ok {
			metrics.RecordGuardRejection("save_"+kind, be.Code)
		}
	}()

	// 审核不存在与角色校验先于模板查询，模板与 L1 指派创建后不变
	a, err := domain.FindAudit(s.db.WithContext(ctx), auditID)
	if err != nil {
		return err
	}
	if a.L1AuditorID != actor.UserID {
		return common.NewForbidden("only the assigned L1 auditor can capture data")
	}
	if validate != nil {
		if err := validate(a); err != nil {
			return err
		}
	}

	var (
		transitions []*lifecycle.Transition
		raised      *nonconformance.Raised
		inserted    bool
	)
	for attempt := 0; ; attempt++ {
		transitions, raised = nil, nil
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := domain.LockAudit(tx, auditID)
			if err != nil {
				return err
			}
			if !locked.Status.Editable() {
				return common.NewConflict("audit is not editable in status %s", locked.Status)
			}

			f, isNew, err := upsert(tx, locked)
			if err != nil {
				return err
			}
			inserted = isNew

			t, err := s.lifecycle.PromoteOnCapture(tx, locked, actor.UserID)
			if err != nil {
				return err
			}
			transitions = append(transitions, t)

			if f != nil && s.ncs != nil {
				raised, err = s.ncs.RaiseAuto(tx, locked, actor.UserID, f.ref, f.description)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil || !common.IsUniqueViolation(err) || attempt >= s.retries {
			break
		}
		metrics.CaptureUpsertRetriesTotal.WithLabelValues(kind).Inc()
		logger.WithContext(ctx).Warn("采集行唯一约束冲突，重试",
			zap.String("audit_id", auditID),
			zap.String("kind", kind),
			zap.Int("attempt", attempt+1),
		)
	}
	if err != nil {
		if common.IsUniqueViolation(err) {
			metrics.CaptureUpsertsTotal.WithLabelValues(kind, "failed").Inc()
		}
		return err
	}

	result := "updated"
	if inserted {
		result = "inserted"
	}
	metrics.CaptureUpsertsTotal.WithLabelValues(kind, result).Inc()

	s.lifecycle.Emit(ctx, transitions...)
	if raised != nil {
		s.ncs.AfterRaise(ctx, raised)
	}
	return nil
}

func (s *Service) lookupQuestion(ctx context.Context, a *domain.Audit, questionID string) error {
	if questionID == "" {
		return common.NewValidation("question id is required")
	}
	if s.questions == nil {
		return nil
	}
	_, err := s.questions.Question(ctx, a.TemplateID, questionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewValidation("template %s of audit %s is missing", a.TemplateID, a.ID)
		}
		return err
	}
	return nil
}

// parseDate 接受 2006-01-02 或 RFC3339，空值返回 nil
func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, common.NewValidation("%s %q is not a valid date (expected YYYY-MM-DD)", field, raw)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
