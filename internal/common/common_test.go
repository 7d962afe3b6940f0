package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// scopeRow 测试用的模型
type scopeRow struct {
	ID        uint   `gorm:"primaryKey"`
	AuditID   string `gorm:"size:36;uniqueIndex:idx_scope_row_key"`
	Code      string `gorm:"size:64;uniqueIndex:idx_scope_row_key"`
	Status    string `gorm:"size:32"`
	CreatedAt time.Time
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&scopeRow{}))

	base := time.Now()
	rows := []scopeRow{
		{AuditID: "a1", Code: "q1", Status: "Open", CreatedAt: base},
		{AuditID: "a1", Code: "q2", Status: "Closed", CreatedAt: base.Add(time.Second)},
		{AuditID: "a1", Code: "q3", Status: "Open", CreatedAt: base.Add(2 * time.Second)},
		{AuditID: "a2", Code: "q1", Status: "Open", CreatedAt: base.Add(3 * time.Second)},
	}
	require.NoError(t, db.Create(&rows).Error)
	return db
}

func TestScopes(t *testing.T) {
	db := setupTestDB(t)

	t.Run("按审核与状态过滤", func(t *testing.T) {
		var count int64
		require.NoError(t, db.Model(&scopeRow{}).Scopes(ByAudit("a1"), ByStatus("Open")).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("空状态不过滤", func(t *testing.T) {
		var count int64
		require.NoError(t, db.Model(&scopeRow{}).Scopes(ByStatus("")).Count(&count).Error)
		assert.Equal(t, int64(4), count)
	})

	t.Run("分页", func(t *testing.T) {
		var rows []scopeRow
		req := PaginationRequest{Page: 2, PageSize: 3}
		require.NoError(t, db.Scopes(OrderBy("", "", nil), Paginate(req)).Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, "q1", rows[0].Code)
		assert.Equal(t, "a1", rows[0].AuditID)
	})

	t.Run("白名单排序", func(t *testing.T) {
		var rows []scopeRow
		require.NoError(t, db.Scopes(ByAudit("a1"), OrderBy("code", "desc", []string{"code"})).Find(&rows).Error)
		require.Len(t, rows, 3)
		assert.Equal(t, "q3", rows[0].Code)

		rows = nil
		require.NoError(t, db.Scopes(OrderBy("code; DROP TABLE scope_rows", "asc", []string{"code"})).Find(&rows).Error)
		require.Len(t, rows, 4)
		assert.Equal(t, "a2", rows[0].AuditID)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)

	err := db.Create(&scopeRow{AuditID: "a1", Code: "q1", Status: "Open"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.True(t, IsUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestBusinessErrorMatching(t *testing.T) {
	err := fmt.Errorf("提交失败: %w", NewConflict("All NCs must be closed before approval"))

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)

	be, ok := AsBusinessError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, be.Code)
	assert.Equal(t, "All NCs must be closed before approval", be.Message)

	assert.Equal(t, GetErrorMessage(CodeNotFound), NewBusinessError(CodeNotFound, "").Message)
}

func TestResponseFromError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"NotFound", NewNotFound("audit %s not found", "x"), http.StatusNotFound, CodeNotFound},
		{"Forbidden", NewForbidden("not the assigned L1"), http.StatusForbidden, CodeForbidden},
		{"Conflict", NewConflict("audit is not editable"), http.StatusConflict, CodeConflict},
		{"Validation", NewValidation("score must be 0-3"), http.StatusBadRequest, CodeInvalidRequest},
		{"Internal", errors.New("db down"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			ResponseFromError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestPaginationDefaults(t *testing.T) {
	assert.Equal(t, 0, PaginationRequest{}.GetOffset())
	assert.Equal(t, 20, PaginationRequest{}.GetPageSize())
	assert.Equal(t, 100, PaginationRequest{PageSize: 500}.GetPageSize())
	assert.Equal(t, 40, PaginationRequest{Page: 3, PageSize: 20}.GetOffset())

	meta := NewPaginationMeta(1, 20, 41)
	assert.Equal(t, 3, meta.TotalPages)
}
