package domain

import (
	"fmt"
	"strings"
)

// NCRefKind 不符合项关联的采集行类型
type NCRefKind string

const (
	RefChecklistAnswer NCRefKind = "checklist_answer"
	RefObjective       NCRefKind = "objective"
	RefCalibration     NCRefKind = "calibration"
	RefParameter       NCRefKind = "parameter"
	RefUnlinked        NCRefKind = "unlinked"
)

// Valid 是否为已定义的类型
func (k NCRefKind) Valid() bool {
	switch k {
	case RefChecklistAnswer, RefObjective, RefCalibration, RefParameter, RefUnlinked:
		return true
	}
	return false
}

// NCRef 关联到采集行的自然键，不是外键，目标行可以尚未保存
type NCRef struct {
	Kind NCRefKind `json:"kind" gorm:"column:ref_kind;size:32;not null;default:unlinked"`
	Key  string    `json:"key" gorm:"column:ref_key;size:255"`
}

func (r NCRef) String() string {
	if r.Key == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + ":" + r.Key
}

// Validate 校验类型与键
func (r NCRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown reference kind %q", r.Kind)
	}
	if r.Kind != RefUnlinked && strings.TrimSpace(r.Key) == "" {
		return fmt.Errorf("reference key is required for kind %q", r.Kind)
	}
	return nil
}

// AnswerRef 检查项答案
func AnswerRef(questionID string) NCRef {
	return NCRef{Kind: RefChecklistAnswer, Key: questionID}
}

// ObjectiveRef 目标行，键为 "objective_type/parameter_name"
func ObjectiveRef(objectiveType, parameterName string) NCRef {
	return NCRef{Kind: RefObjective, Key: objectiveType + "/" + parameterName}
}

// CalibrationRef 校准行
func CalibrationRef(instrumentName string) NCRef {
	return NCRef{Kind: RefCalibration, Key: instrumentName}
}

// ParameterRef 参数行
func ParameterRef(parameterName string) NCRef {
	return NCRef{Kind: RefParameter, Key: parameterName}
}

// UnlinkedRef 无关联
func UnlinkedRef(note string) NCRef {
	return NCRef{Kind: RefUnlinked, Key: note}
}

var legacyPrefixes = []struct {
	prefix string
	kind   NCRefKind
}{
	{"cal_", RefCalibration},
	{"param_", RefParameter},
	{"obj_", RefObjective},
	{"q_", RefChecklistAnswer},
}

// ParseReferenceKey 兼容旧客户端的字符串引用，如 "cal_<instrument_name>"
func ParseReferenceKey(raw string) NCRef {
	raw = strings.TrimSpace(raw)
	for _, p := range legacyPrefixes {
		if key, ok := strings.CutPrefix(raw, p.prefix); ok && key != "" {
			return NCRef{Kind: p.kind, Key: key}
		}
	}
	return UnlinkedRef(raw)
}
