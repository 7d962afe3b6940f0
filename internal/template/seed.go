package template

import (
	"context"
	"fmt"
	"io"

	"auditflow/internal/common"

	"gopkg.in/yaml.v3"
)

// SeedFile 模板种子文件
type SeedFile struct {
	Templates []SeedTemplate `yaml:"templates"`
}

// SeedTemplate 种子模板
type SeedTemplate struct {
	Code        string        `yaml:"code"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	TargetType  string        `yaml:"target_type"`
	Sections    []SeedSection `yaml:"sections"`
}

// SeedSection 种子分组
type SeedSection struct {
	Title     string         `yaml:"title"`
	Questions []SeedQuestion `yaml:"questions"`
}

// SeedQuestion 种子检查项
type SeedQuestion struct {
	Text      string `yaml:"text"`
	Guidance  string `yaml:"guidance"`
	Mandatory bool   `yaml:"mandatory"`
}

// ParseSeed 解析 YAML 种子文件
func ParseSeed(r io.Reader) (*SeedFile, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("解析模板种子文件失败: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, common.NewValidation("seed file has no templates")
	}
	return &f, nil
}

// Request 转换为创建请求
func (t SeedTemplate) Request(createdBy string) *CreateTemplateRequest {
	req := &CreateTemplateRequest{
		Code:        t.Code,
		Name:        t.Name,
		Description: t.Description,
		TargetType:  t.TargetType,
		CreatedBy:   createdBy,
	}
	for _, s := range t.Sections {
		section := SectionInput{Title: s.Title}
		for _, q := range s.Questions {
			section.Questions = append(section.Questions, QuestionInput{Text: q.Text, Guidance: q.Guidance, Mandatory: q.Mandatory})
		}
		req.Sections = append(req.Sections, section)
	}
	return req
}

// SeedResult 单个模板的导入结果
type SeedResult struct {
	Code     string
	Template *ChecklistTemplate // 已存在而跳过时为 nil
	Skipped  bool
}

// SeedOptions 导入选项
type SeedOptions struct {
	CreatedBy  string
	Publish    bool
	NewVersion bool // 同 code 已存在时仍创建新版本
}

// Seed 按文件导入模板；同 code 已存在时默认跳过
func (c *Catalog) Seed(ctx context.Context, f *SeedFile, opts SeedOptions) ([]SeedResult, error) {
	results := make([]SeedResult, 0, len(f.Templates))
	for _, t := range f.Templates {
		if !opts.NewVersion {
			_, total, err := c.List(ctx, ListFilter{Code: t.Code})
			if err != nil {
				return results, err
			}
			if total > 0 {
				results = append(results, SeedResult{Code: t.Code, Skipped: true})
				continue
			}
		}

		tmpl, err := c.CreateTemplate(ctx, t.Request(opts.CreatedBy))
		if err != nil {
			return results, fmt.Errorf("导入模板 %s 失败: %w", t.Code, err)
		}
		if opts.Publish {
			if tmpl, err = c.Publish(ctx, tmpl.ID); err != nil {
				return results, fmt.Errorf("发布模板 %s 失败: %w", t.Code, err)
			}
		}
		results = append(results, SeedResult{Code: t.Code, Template: tmpl})
	}
	return results, nil
}
