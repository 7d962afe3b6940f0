package template

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"auditflow/internal/common"
	"auditflow/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Catalog 检查表模板目录
type Catalog struct {
	db       *gorm.DB
	cache    Cache
	cacheTTL time.Duration
}

// NewCatalog 创建模板目录，cache 可为 nil
func NewCatalog(db *gorm.DB, cache Cache) *Catalog {
	return &Catalog{db: db, cache: cache, cacheTTL: 24 * time.Hour}
}

// QuestionInput 检查项输入
type QuestionInput struct {
	Text      string `json:"text" binding:"required"`
	Guidance  string `json:"guidance"`
	Mandatory bool   `json:"mandatory"`
}

// SectionInput 分组输入
type SectionInput struct {
	Title     string          `json:"title" binding:"required"`
	Questions []QuestionInput `json:"questions" binding:"required,min=1,dive"`
}

// CreateTemplateRequest 创建模板版本请求
type CreateTemplateRequest struct {
	Code        string         `json:"code" binding:"required"`
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	TargetType  string         `json:"target_type"`
	Sections    []SectionInput `json:"sections" binding:"required,min=1,dive"`
	CreatedBy   string         `json:"-"`
}

// CreateTemplate 创建模板新版本，版本号为同 code 的最大版本 +1
func (c *Catalog) CreateTemplate(ctx context.Context, req *CreateTemplateRequest) (*ChecklistTemplate, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" || strings.TrimSpace(req.Name) == "" {
		return nil, common.NewValidation("template code and name are required")
	}
	if len(req.Sections) == 0 {
		return nil, common.NewValidation("template needs at least one section")
	}

	tmpl := &ChecklistTemplate{
		ID:          uuid.NewString(),
		Code:        code,
		Name:        req.Name,
		Description: req.Description,
		TargetType:  req.TargetType,
		CreatedBy:   req.CreatedBy,
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int
		if err := tx.Model(&ChecklistTemplate{}).
			Where("code = ?", code).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error; err != nil {
			return fmt.Errorf("查询模板版本失败: %w", err)
		}
		tmpl.Version = latest + 1

		if err := tx.Create(tmpl).Error; err != nil {
			if common.IsUniqueViolation(err) {
				return common.NewConflict("template %s version %d already exists", code, tmpl.Version)
			}
			return fmt.Errorf("创建模板失败: %w", err)
		}

		for si, s := range req.Sections {
			if len(s.Questions) == 0 {
				return common.NewValidation("section %q has no questions", s.Title)
			}
			section := ChecklistSection{
				ID:         uuid.NewString(),
				TemplateID: tmpl.ID,
				Position:   si + 1,
				Title:      s.Title,
			}
			for qi, q := range s.Questions {
				if strings.TrimSpace(q.Text) == "" {
					return common.NewValidation("question text is required")
				}
				section.Questions = append(section.Questions, ChecklistQuestion{
					ID:         uuid.NewString(),
					TemplateID: tmpl.ID,
					SectionID:  section.ID,
					Position:   qi + 1,
					Text:       q.Text,
					Guidance:   q.Guidance,
					Mandatory:  q.Mandatory,
				})
			}
			if err := tx.Create(&section).Error; err != nil {
				return fmt.Errorf("创建模板分组失败: %w", err)
			}
			tmpl.Sections = append(tmpl.Sections, section)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("模板版本已创建",
		zap.String("template_id", tmpl.ID),
		zap.String("code", tmpl.Code),
		zap.Int("version", tmpl.Version),
	)
	return tmpl, nil
}

// Publish 发布模板版本，发布后内容不可变
func (c *Catalog) Publish(ctx context.Context, templateID string) (*ChecklistTemplate, error) {
	now := time.Now().UTC()
	res := c.db.WithContext(ctx).Model(&ChecklistTemplate{}).
		Where("id = ? AND published = ?", templateID, false).
		Updates(map[string]any{"published": true, "published_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("发布模板失败: %w", res.Error)
	}
	tmpl, err := c.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, common.NewConflict("template %s is already published", templateID)
	}
	return tmpl, nil
}

// Get 查询模板（含分组与检查项）
func (c *Catalog) Get(ctx context.Context, templateID string) (*ChecklistTemplate, error) {
	var tmpl ChecklistTemplate
	err := c.db.WithContext(ctx).
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Sections.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", templateID).
		First(&tmpl).Error
	if err != nil {
		if common.IsNotFound(err) {
			return nil, common.NewNotFound("template %s not found", templateID)
		}
		return nil, fmt.Errorf("查询模板失败: %w", err)
	}
	return &tmpl, nil
}

// ListFilter 模板列表过滤
type ListFilter struct {
	Code          string `form:"code"`
	PublishedOnly bool   `form:"published_only"`
	common.PaginationRequest
}

// List 查询模板列表（不含检查项）
func (c *Catalog) List(ctx context.Context, f ListFilter) ([]ChecklistTemplate, int64, error) {
	query := c.db.WithContext(ctx).Model(&ChecklistTemplate{})
	if f.Code != "" {
		query = query.Where("code = ?", f.Code)
	}
	if f.PublishedOnly {
		query = query.Where("published = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计模板数量失败: %w", err)
	}
	var items []ChecklistTemplate
	if err := query.Order("code ASC, version DESC").Scopes(common.Paginate(f.PaginationRequest)).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("查询模板列表失败: %w", err)
	}
	return items, total, nil
}

// QuestionsFor 按分组与序号返回模板的全部检查项，已发布版本走缓存
func (c *Catalog) QuestionsFor(ctx context.Context, templateID string) ([]Question, error) {
	if cached, ok := c.cachedQuestions(ctx, templateID); ok {
		return cached, nil
	}

	tmpl, err := c.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}

	var out []Question
	for _, s := range tmpl.Sections {
		for _, q := range s.Questions {
			out = append(out, Question{
				ID:           q.ID,
				SectionID:    s.ID,
				SectionTitle: s.Title,
				Position:     len(out) + 1,
				Text:         q.Text,
				Guidance:     q.Guidance,
				Mandatory:    q.Mandatory,
			})
		}
	}

	if tmpl.Published {
		c.storeQuestions(ctx, templateID, out)
	}
	return out, nil
}

// Question 查询模板中的单个检查项，不属于该模板时返回 Validation
func (c *Catalog) Question(ctx context.Context, templateID, questionID string) (*Question, error) {
	questions, err := c.QuestionsFor(ctx, templateID)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].ID == questionID {
			return &questions[i], nil
		}
	}
	return nil, common.NewValidation("question %s is not part of template %s", questionID, templateID)
}

func (c *Catalog) cachedQuestions(ctx context.Context, templateID string) ([]Question, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, ok, err := c.cache.Get(ctx, questionsKey(templateID))
	if err != nil {
		logger.WithContext(ctx).Warn("读取模板缓存失败", zap.String("template_id", templateID), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var out []Question
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (c *Catalog) storeQuestions(ctx context.Context, templateID string, questions []Question) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, questionsKey(templateID), data, c.cacheTTL); err != nil {
		logger.WithContext(ctx).Warn("写入模板缓存失败", zap.String("template_id", templateID), zap.Error(err))
	}
}

func questionsKey(templateID string) string {
	return "questions:" + templateID
}
