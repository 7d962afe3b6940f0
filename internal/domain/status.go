package domain

// AuditStatus 审核状态
type AuditStatus string

const (
	StatusAssigned        AuditStatus = "Assigned"
	StatusInProgress      AuditStatus = "In_Progress"
	StatusNCOpen          AuditStatus = "NC_Open"
	StatusNCPendingVerify AuditStatus = "NC_Pending_Verify"
	StatusSubmittedToL2   AuditStatus = "Submitted_to_L2"
	StatusCompleted       AuditStatus = "Completed"
	StatusRejected        AuditStatus = "Rejected"
)

var auditStatuses = []AuditStatus{
	StatusAssigned,
	StatusInProgress,
	StatusNCOpen,
	StatusNCPendingVerify,
	StatusSubmittedToL2,
	StatusCompleted,
	StatusRejected,
}

// AuditStatuses 全部审核状态
func AuditStatuses() []AuditStatus {
	out := make([]AuditStatus, len(auditStatuses))
	copy(out, auditStatuses)
	return out
}

// Valid 是否为已定义的状态
func (s AuditStatus) Valid() bool {
	for _, v := range auditStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Editable L1 是否仍可录入（Rejected 视同 In_Progress）
func (s AuditStatus) Editable() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusNCOpen, StatusNCPendingVerify, StatusRejected:
		return true
	}
	return false
}

// Submittable 是否允许提交给 L2
func (s AuditStatus) Submittable() bool {
	switch s {
	case StatusInProgress, StatusNCOpen, StatusNCPendingVerify, StatusRejected:
		return true
	}
	return false
}

// NCStatus 不符合项状态
type NCStatus string

const (
	NCOpen                NCStatus = "Open"
	NCPendingVerification NCStatus = "Pending_Verification"
	NCClosed              NCStatus = "Closed"
)

// Valid 是否为已定义的状态
func (s NCStatus) Valid() bool {
	return s == NCOpen || s == NCPendingVerification || s == NCClosed
}

// Score L2 评分
type Score int

const (
	ScoreNC          Score = 0
	ScoreObservation Score = 1
	ScoreOK          Score = 2
	ScoreNA          Score = 3
)

// Valid 评分取值 {0,1,2,3}
func (s Score) Valid() bool {
	return s >= ScoreNC && s <= ScoreNA
}

// Label 评分名称
func (s Score) Label() string {
	switch s {
	case ScoreNC:
		return "NC"
	case ScoreObservation:
		return "Observation"
	case ScoreOK:
		return "OK"
	case ScoreNA:
		return "NA"
	}
	return "Unknown"
}
