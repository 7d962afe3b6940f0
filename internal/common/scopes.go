package common

import (
	"fmt"
	"slices"

	"gorm.io/gorm"
)

// Paginate 分页 Scope
// 使用方法：db.Scopes(common.Paginate(req)).Find(&audits)
func Paginate(req PaginationRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(req.GetOffset()).Limit(req.GetPageSize())
	}
}

// ByStatus 按状态过滤，空值不过滤
func ByStatus(status string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if status == "" {
			return db
		}
		return db.Where("status = ?", status)
	}
}

// ByAudit 按审核ID过滤（采集行、NC、审计日志通用）
func ByAudit(auditID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("audit_id = ?", auditID)
	}
}

// OrderBy 白名单排序，非法字段回退到 created_at DESC
func OrderBy(sortBy, sortOrder string, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if sortBy == "" || !slices.Contains(allowed, sortBy) {
			return db.Order("created_at DESC")
		}
		if sortOrder != "asc" && sortOrder != "desc" {
			sortOrder = "desc"
		}
		return db.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))
	}
}
