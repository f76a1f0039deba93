package models

import (
	"time"

	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

// Profile holds the subset of profiles columns billing reads and writes.
type Profile struct {
	ID        string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string     `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	Plan      types.Plan `gorm:"column:plan;type:varchar(32);not null;default:'Free'" json:"plan"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// UserRole is a role grant. (user_id, role) is unique.
type UserRole struct {
	ID        string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string     `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_user_roles_user_role" json:"user_id"`
	Role      types.Role `gorm:"column:role;type:varchar(32);not null;uniqueIndex:idx_user_roles_user_role" json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

func (UserRole) TableName() string { return "user_roles" }

// PlanHistory is the audit trail of entitlement changes. ChangedBy is nil for
// changes driven by the gateway.
type PlanHistory struct {
	ID        string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string     `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	OldPlan   types.Plan `gorm:"column:old_plan;type:varchar(32)" json:"old_plan"`
	NewPlan   types.Plan `gorm:"column:new_plan;type:varchar(32);not null" json:"new_plan"`
	ChangedBy *string    `gorm:"column:changed_by;type:uuid" json:"changed_by"`
	ChangedAt time.Time  `gorm:"column:changed_at;not null" json:"changed_at"`
}

func (PlanHistory) TableName() string { return "plan_history" }
