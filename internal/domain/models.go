package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit 一次巡检审核
type Audit struct {
	ID              string `json:"id" gorm:"primaryKey;size:36"`
	TemplateID      string `json:"template_id" gorm:"size:36;not null;index"`
	TemplateVersion int    `json:"template_version"`

	// 审核对象：机台/产线或到货批次
	TargetType string `json:"target_type" gorm:"size:32;not null"`
	TargetRef  string `json:"target_ref" gorm:"size:128;not null"`
	TargetName string `json:"target_name" gorm:"size:255"`

	ScheduledDate time.Time `json:"scheduled_date" gorm:"not null;index"`
	Shift         string    `json:"shift" gorm:"size:16"`

	// 角色指派，设置后不可更改
	L1AuditorID    string `json:"l1_auditor_id" gorm:"size:64;not null;index"`
	L2AuditorID    string `json:"l2_auditor_id" gorm:"size:64;index"`
	ProcessOwnerID string `json:"process_owner_id" gorm:"size:64;index"`

	Status AuditStatus `json:"status" gorm:"size:32;not null;index"`

	Operation string         `json:"operation" gorm:"size:255"`
	Part      string         `json:"part" gorm:"size:255"`
	Process   string         `json:"process" gorm:"size:255"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`

	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty" gorm:"type:text"`

	CreatedBy string    `json:"created_by" gorm:"size:64"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Audit) TableName() string { return "audits" }

func (a *Audit) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// IsParticipant 用户是否在该审核中担任任一角色
func (a *Audit) IsParticipant(userID string) bool {
	return userID != "" && (a.L1AuditorID == userID || a.L2AuditorID == userID || a.ProcessOwnerID == userID)
}

// ChecklistAnswer 检查项答案，(audit_id, question_id) 唯一
type ChecklistAnswer struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	AuditID     string `json:"audit_id" gorm:"size:36;not null;uniqueIndex:uq_answer_audit_question"`
	QuestionID  string `json:"question_id" gorm:"size:36;not null;uniqueIndex:uq_answer_audit_question"`
	Value       string `json:"value" gorm:"type:text"`
	Remarks     string `json:"remarks" gorm:"type:text"`
	EvidenceURL string `json:"evidence_url,omitempty" gorm:"size:512"`
	Flagged     bool   `json:"flagged"`

	// L2 评分，仅 checklist 答案有
	L2Score   *int       `json:"l2_score"`
	L2Remarks string     `json:"l2_remarks,omitempty" gorm:"type:text"`
	ScoredBy  string     `json:"scored_by,omitempty" gorm:"size:64"`
	ScoredAt  *time.Time `json:"scored_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChecklistAnswer) TableName() string { return "checklist_answers" }

// ObjectiveEntry 目标达成记录，(audit_id, objective_type, parameter_name) 唯一
type ObjectiveEntry struct {
	ID            string `json:"id" gorm:"primaryKey;size:36"`
	AuditID       string `json:"audit_id" gorm:"size:36;not null;uniqueIndex:uq_objective_audit_key"`
	ObjectiveType string `json:"objective_type" gorm:"size:64;not null;uniqueIndex:uq_objective_audit_key"`
	ParameterName string `json:"parameter_name" gorm:"size:128;not null;uniqueIndex:uq_objective_audit_key"`
	TargetValue   string `json:"target_value" gorm:"size:128"`
	ActualValue   string `json:"actual_value" gorm:"size:128"`
	Remarks       string `json:"remarks" gorm:"type:text"`
	Flagged       bool   `json:"flagged"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ObjectiveEntry) TableName() string { return "audit_objectives" }

// CalibrationEntry 量具校准记录，(audit_id, instrument_name) 唯一
type CalibrationEntry struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	AuditID        string     `json:"audit_id" gorm:"size:36;not null;uniqueIndex:uq_calibration_audit_instrument"`
	InstrumentName string     `json:"instrument_name" gorm:"size:128;not null;uniqueIndex:uq_calibration_audit_instrument"`
	InstrumentCode string     `json:"instrument_code" gorm:"size:64"`
	CalibratedOn   *time.Time `json:"calibrated_on"`
	DueOn          *time.Time `json:"due_on"`
	Remarks        string     `json:"remarks" gorm:"type:text"`
	Flagged        bool       `json:"flagged"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CalibrationEntry) TableName() string { return "audit_calibrations" }

// ParameterEntry 工艺参数记录，(audit_id, parameter_name) 唯一
type ParameterEntry struct {
	ID            string `json:"id" gorm:"primaryKey;size:36"`
	AuditID       string `json:"audit_id" gorm:"size:36;not null;uniqueIndex:uq_parameter_audit_name"`
	ParameterName string `json:"parameter_name" gorm:"size:128;not null;uniqueIndex:uq_parameter_audit_name"`
	Specification string `json:"specification" gorm:"size:255"` // 例如 "value >= 9.5 && value <= 10.5"
	ActualValue   string `json:"actual_value" gorm:"size:128"`
	Unit          string `json:"unit" gorm:"size:32"`
	Remarks       string `json:"remarks" gorm:"type:text"`
	Flagged       bool   `json:"flagged"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ParameterEntry) TableName() string { return "audit_parameters" }

// NonConformance 不符合项
type NonConformance struct {
	ID          string   `json:"id" gorm:"primaryKey;size:36"`
	AuditID     string   `json:"audit_id" gorm:"size:36;not null;index"`
	Ref         NCRef    `json:"reference" gorm:"embedded"`
	Description string   `json:"description" gorm:"type:text;not null"`
	EvidenceURL string   `json:"evidence_url,omitempty" gorm:"size:512"`
	Status      NCStatus `json:"status" gorm:"size:32;not null;index"`
	RaisedBy    string   `json:"raised_by" gorm:"size:64"`
	AutoRaised  bool     `json:"auto_raised"`

	// 整改信息，仅责任人在 Open→Pending_Verification 时写入一次
	RootCause             string     `json:"root_cause,omitempty" gorm:"type:text"`
	CorrectiveAction      string     `json:"corrective_action,omitempty" gorm:"type:text"`
	ResolutionEvidenceURL string     `json:"resolution_evidence_url,omitempty" gorm:"size:512"`
	ResolvedBy            string     `json:"resolved_by,omitempty" gorm:"size:64"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`

	// 验证信息，仅 L1 在 Pending_Verification→Closed 时写入一次
	VerifiedBy string     `json:"verified_by,omitempty" gorm:"size:64"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NonConformance) TableName() string { return "non_conformances" }

func (n *NonConformance) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// Models 需要迁移的审核相关模型
func Models() []any {
	return []any{
		&Audit{},
		&ChecklistAnswer{},
		&ObjectiveEntry{},
		&CalibrationEntry{},
		&ParameterEntry{},
		&NonConformance{},
	}
}
