package domain

import "slices"

// Role 系统角色
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleL1           Role = "l1"
	RoleL2           Role = "l2"
	RoleProcessOwner Role = "process_owner"
)

// Actor 已认证的调用方
type Actor struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// HasRole 是否拥有指定角色
func (a Actor) HasRole(role Role) bool {
	return slices.Contains(a.Roles, string(role))
}

// IsAdmin 是否管理员
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}
