package datamodel

import (
	"github.com/frahmantamala/production-management/internal/core/datamodel/audit"
	"github.com/frahmantamala/production-management/internal/core/datamodel/inventory"
	"github.com/frahmantamala/production-management/internal/core/datamodel/notification"
	"github.com/frahmantamala/production-management/internal/core/datamodel/production"
	"github.com/frahmantamala/production-management/internal/core/datamodel/role"
	"github.com/frahmantamala/production-management/internal/core/datamodel/user"
)

// All lists every persisted model in dependency order. Tests auto-migrate from
// it; production schemas come from the goose migrations.
func All() []interface{} {
	return []interface{}{
		&role.Role{},
		&role.Permission{},
		&role.RolePermission{},
		&user.User{},
		&user.UserRole{},
		&user.RefreshToken{},
		&inventory.Item{},
		&inventory.Transaction{},
		&production.Guide{},
		&production.Step{},
		&production.Reservation{},
		&production.WorkSession{},
		&production.Template{},
		&notification.Notification{},
		&audit.Log{},
	}
}
