package domain

import (
	"fmt"

	"auditflow/internal/common"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockAudit 在事务内锁定审核行（SELECT ... FOR UPDATE）
// 所有可能改变审核状态的操作先经过这里，保证同一审核上的状态变更串行
func LockAudit(tx *gorm.DB, auditID string) (*Audit, error) {
	var audit Audit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", auditID).
		First(&audit).Error
	if err != nil {
		if common.IsNotFound(err) {
			return nil, common.NewNotFound("audit %s not found", auditID)
		}
		return nil, fmt.Errorf("锁定审核失败: %w", err)
	}
	return &audit, nil
}

// FindAudit 不加锁读取审核
func FindAudit(db *gorm.DB, auditID string) (*Audit, error) {
	var audit Audit
	if err := db.Where("id = ?", auditID).First(&audit).Error; err != nil {
		if common.IsNotFound(err) {
			return nil, common.NewNotFound("audit %s not found", auditID)
		}
		return nil, fmt.Errorf("查询审核失败: %w", err)
	}
	return &audit, nil
}
