package template

import "time"

// ChecklistTemplate 检查表模板，(code, version) 唯一，发布后不可修改
type ChecklistTemplate struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	Code        string     `json:"code" gorm:"size:64;not null;uniqueIndex:uq_template_code_version"`
	Version     int        `json:"version" gorm:"not null;uniqueIndex:uq_template_code_version"`
	Name        string     `json:"name" gorm:"size:255;not null"`
	Description string     `json:"description" gorm:"type:text"`
	TargetType  string     `json:"target_type" gorm:"size:32"` // machine, line, dock_lot
	Published   bool       `json:"published" gorm:"not null;default:false;index"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedBy   string     `json:"created_by" gorm:"size:64"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Sections []ChecklistSection `json:"sections,omitempty" gorm:"foreignKey:TemplateID"`
}

func (ChecklistTemplate) TableName() string { return "checklist_templates" }

// ChecklistSection 模板分组
type ChecklistSection struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	TemplateID string `json:"template_id" gorm:"size:36;not null;index"`
	Position   int    `json:"position" gorm:"not null"`
	Title      string `json:"title" gorm:"size:255;not null"`

	Questions []ChecklistQuestion `json:"questions,omitempty" gorm:"foreignKey:SectionID"`
}

func (ChecklistSection) TableName() string { return "checklist_sections" }

// ChecklistQuestion 检查项
type ChecklistQuestion struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	TemplateID string `json:"template_id" gorm:"size:36;not null;index"`
	SectionID  string `json:"section_id" gorm:"size:36;not null;index"`
	Position   int    `json:"position" gorm:"not null"`
	Text       string `json:"text" gorm:"type:text;not null"`
	Guidance   string `json:"guidance,omitempty" gorm:"type:text"`
	Mandatory  bool   `json:"mandatory"`
}

func (ChecklistQuestion) TableName() string { return "checklist_questions" }

// Question 有序检查项视图
type Question struct {
	ID           string `json:"id"`
	SectionID    string `json:"section_id"`
	SectionTitle string `json:"section_title"`
	Position     int    `json:"position"`
	Text         string `json:"text"`
	Guidance     string `json:"guidance,omitempty"`
	Mandatory    bool   `json:"mandatory"`
}

// Models 需要迁移的模板模型
func Models() []any {
	return []any{&ChecklistTemplate{}, &ChecklistSection{}, &ChecklistQuestion{}}
}
