// Package testkit 测试用的内存数据库与审核数据构造
package testkit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"auditflow/internal/audit"
	"auditflow/internal/domain"
	"auditflow/internal/template"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// 测试中的固定用户
const (
	Admin = "admin-1"
	L1    = "l1-inspector"
	L2    = "l2-approver"
	Owner = "process-owner"
	Other = "outsider"
)

// Actors 按用户ID构造调用方
var Actors = map[string]domain.Actor{
	Admin: {UserID: Admin, Roles: []string{string(domain.RoleAdmin)}},
	L1:    {UserID: L1, Roles: []string{string(domain.RoleL1)}},
	L2:    {UserID: L2, Roles: []string{string(domain.RoleL2)}},
	Owner: {UserID: Owner, Roles: []string{string(domain.RoleProcessOwner)}},
	Other: {UserID: Other, Roles: []string{string(domain.RoleL1)}},
}

// OpenDB 每个测试独立的共享缓存内存库，已迁移全部模型
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	models := append(domain.Models(), template.Models()...)
	models = append(models, &audit.Log{})
	require.NoError(t, db.AutoMigrate(models...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// PublishedTemplate 创建并发布一个两题模板，返回模板与检查项ID
func PublishedTemplate(t *testing.T, catalog *template.Catalog) (*template.ChecklistTemplate, []string) {
	t.Helper()
	ctx := context.Background()
	tmpl, err := catalog.CreateTemplate(ctx, &template.CreateTemplateRequest{
		Code:       "LPA-" + uuid.NewString()[:8],
		Name:       "Layered process audit",
		TargetType: "machine",
		CreatedBy:  Admin,
		Sections: []template.SectionInput{{
			Title: "Safety",
			Questions: []template.QuestionInput{
				{Text: "Guards in place?", Mandatory: true},
				{Text: "Work instruction posted?"},
			},
		}},
	})
	require.NoError(t, err)
	_, err = catalog.Publish(ctx, tmpl.ID)
	require.NoError(t, err)

	questions, err := catalog.QuestionsFor(ctx, tmpl.ID)
	require.NoError(t, err)
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return tmpl, ids
}

// SeedAudit 直接写入一条指定状态的审核，L1/L2/责任人为固定用户
func SeedAudit(t *testing.T, db *gorm.DB, templateID string, status domain.AuditStatus) *domain.Audit {
	t.Helper()
	a := &domain.Audit{
		TemplateID:     templateID,
		TargetType:     "machine",
		TargetRef:      "PRESS-07",
		ScheduledDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		L1AuditorID:    L1,
		L2AuditorID:    L2,
		ProcessOwnerID: Owner,
		Status:         status,
		CreatedBy:      Admin,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

// SeedAnswer 直接写入一条答案，score 为 nil 表示未评分
func SeedAnswer(t *testing.T, db *gorm.DB, auditID, questionID string, score *int) *domain.ChecklistAnswer {
	t.Helper()
	row := &domain.ChecklistAnswer{
		ID:         uuid.NewString(),
		AuditID:    auditID,
		QuestionID: questionID,
		Value:      "yes",
		L2Score:    score,
	}
	require.NoError(t, db.Create(row).Error)
	return row
}

// SeedNC 直接写入一条指定状态的不符合项
func SeedNC(t *testing.T, db *gorm.DB, auditID string, status domain.NCStatus) *domain.NonConformance {
	t.Helper()
	nc := &domain.NonConformance{
		AuditID:     auditID,
		Ref:         domain.UnlinkedRef("housekeeping"),
		Description: "Oil on floor",
		Status:      status,
		RaisedBy:    L1,
	}
	require.NoError(t, db.Create(nc).Error)
	return nc
}

// Status 读取审核当前状态
func Status(t *testing.T, db *gorm.DB, auditID string) domain.AuditStatus {
	t.Helper()
	a, err := domain.FindAudit(db, auditID)
	require.NoError(t, err)
	return a.Status
}

// Actions 按写入顺序返回审核的日志动作
func Actions(t *testing.T, db *gorm.DB, auditID string) []audit.Action {
	t.Helper()
	var logs []audit.Log
	require.NoError(t, db.Where("audit_id = ?", auditID).Order("created_at ASC, id ASC").Find(&logs).Error)
	out := make([]audit.Action, len(logs))
	for i, l := range logs {
		out[i] = l.Action
	}
	return out
}

// IntPtr 取地址
func IntPtr(v int) *int { return &v }
