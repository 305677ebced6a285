package role

import "time"

type Role struct {
	ID          int64            `gorm:"primaryKey"`
	Name        string           `gorm:"column:name;uniqueIndex;not null"`
	Description string           `gorm:"column:description"`
	IsSuperuser bool             `gorm:"column:is_superuser;not null;default:false"`
	Permissions []RolePermission `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Role) TableName() string { return "roles" }

// Permission is one entry of the seeded module.action catalog.
type Permission struct {
	ID          int64  `gorm:"primaryKey"`
	Module      string `gorm:"column:module;not null;uniqueIndex:idx_permissions_module_action"`
	Action      string `gorm:"column:action;not null;uniqueIndex:idx_permissions_module_action"`
	Description string `gorm:"column:description"`
}

func (Permission) TableName() string { return "permissions" }

func (p Permission) Key() string {
	return p.Module + "." + p.Action
}

// RolePermission rows only exist for levels 1..3.
type RolePermission struct {
	RoleID       int64      `gorm:"column:role_id;primaryKey"`
	PermissionID int64      `gorm:"column:permission_id;primaryKey"`
	Value        int        `gorm:"column:value;not null"`
	Permission   Permission `gorm:"foreignKey:PermissionID"`
}

func (RolePermission) TableName() string { return "role_permissions" }
