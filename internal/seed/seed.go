// Package seed writes the immutable permission catalog, the built-in roles and
// optional demo data. Every function is idempotent.
package seed

import (
	"context"
	"fmt"

	inventoryDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/inventory"
	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const AdminRoleName = "Admin"

// Permissions inserts every catalog entry that is not present yet.
func Permissions(ctx context.Context, db *gorm.DB) error {
	for _, d := range permission.Catalog {
		row := roleDatamodel.Permission{Module: d.Module, Action: d.Action}
		err := db.WithContext(ctx).
			Where(roleDatamodel.Permission{Module: d.Module, Action: d.Action}).
			Attrs(roleDatamodel.Permission{Description: d.Description}).
			FirstOrCreate(&row).Error
		if err != nil {
			return fmt.Errorf("seed permission %s: %w", d.Key(), err)
		}
	}
	return nil
}

type RoleSpec struct {
	Name        string
	Description string
	Superuser   bool
	Levels      map[string]int
}

// DefaultRoles are created on first seed only; later edits through the API are
// never overwritten.
var DefaultRoles = []RoleSpec{
	{Name: AdminRoleName, Description: "Full access to every module", Superuser: true},
	{Name: "Production Manager", Description: "Plans guides and manages stock", Levels: map[string]int{
		"production.read": 3, "production.create": 3, "production.update": 3, "production.delete": 2,
		"production.archive": 3, "production.work": 3, "production.withdraw": 3,
		"templates.read": 3, "templates.create": 3, "templates.delete": 3,
		"inventory.read": 3, "inventory.create": 2, "inventory.update": 2, "inventory.stock": 2,
		"notifications.send": 2, "dashboard.read": 1, "users.read": 1,
	}},
	{Name: "Worker", Description: "Works on assigned production steps", Levels: map[string]int{
		"production.read": 1, "production.work": 1, "production.withdraw": 1,
		"inventory.read": 1, "templates.read": 1, "dashboard.read": 1,
	}},
}

// Roles creates the default roles that do not exist yet.
func Roles(ctx context.Context, db *gorm.DB) error {
	var catalog []roleDatamodel.Permission
	if err := db.WithContext(ctx).Find(&catalog).Error; err != nil {
		return err
	}
	ids := make(map[string]int64, len(catalog))
	for _, p := range catalog {
		ids[p.Key()] = p.ID
	}

	for _, def := range DefaultRoles {
		for key := range def.Levels {
			if !permission.Known(key) {
				return fmt.Errorf("seed role %s: unknown permission %q", def.Name, key)
			}
		}

		var count int64
		if err := db.WithContext(ctx).Model(&roleDatamodel.Role{}).Where("name = ?", def.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			r := roleDatamodel.Role{Name: def.Name, Description: def.Description, IsSuperuser: def.Superuser}
			if err := tx.Omit("Permissions").Create(&r).Error; err != nil {
				return err
			}
			var rows []roleDatamodel.RolePermission
			for key, lvl := range def.Levels {
				if id, ok := ids[key]; ok && lvl > 0 {
					rows = append(rows, roleDatamodel.RolePermission{RoleID: r.ID, PermissionID: id, Value: lvl})
				}
			}
			if len(rows) == 0 {
				return nil
			}
			return tx.Omit("Permission").Create(&rows).Error
		})
		if err != nil {
			return fmt.Errorf("seed role %s: %w", def.Name, err)
		}
	}
	return nil
}

// AdminUser creates login with the Admin role when it does not exist.
func AdminUser(ctx context.Context, db *gorm.DB, login, email, password string, cost int) error {
	var count int64
	if err := db.WithContext(ctx).Model(&userDatamodel.User{}).Where("login = ?", login).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}

	var admin roleDatamodel.Role
	if err := db.WithContext(ctx).Where("name = ?", AdminRoleName).First(&admin).Error; err != nil {
		return fmt.Errorf("admin role missing, seed roles first: %w", err)
	}

	u := userDatamodel.User{
		Login:        login,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    "System",
		LastName:     "Administrator",
		IsActive:     true,
		Roles:        []roleDatamodel.Role{admin},
	}
	return db.WithContext(ctx).Omit("Roles.*").Create(&u).Error
}

// SampleItems adds a handful of demo inventory rows.
func SampleItems(ctx context.Context, db *gorm.DB) error {
	minQ := int64(10)
	items := []inventoryDatamodel.Item{
		{Name: "Steel sheet 2mm", Barcode: "DEMO-0001", Unit: "pcs", Category: "raw", Location: "A1", MinQuantity: &minQ,
			Price: decimal.NewNullDecimal(decimal.RequireFromString("42.50"))},
		{Name: "M6 bolt", Barcode: "DEMO-0002", Unit: "pcs", Category: "fasteners", Location: "B3", MinQuantity: &minQ,
			Price: decimal.NewNullDecimal(decimal.RequireFromString("0.12"))},
		{Name: "Powder coat, black", Barcode: "DEMO-0003", Unit: "kg", Category: "finishing", Location: "C2"},
	}
	for _, it := range items {
		it := it
		if err := db.WithContext(ctx).Where("barcode = ?", it.Barcode).FirstOrCreate(&it).Error; err != nil {
			return fmt.Errorf("seed item %s: %w", it.Barcode, err)
		}
	}
	return nil
}

// Clear removes all rows, children first. Intended for development databases.
func Clear(ctx context.Context, db *gorm.DB) error {
	tables := []string{
		"audit_logs", "notifications", "work_sessions", "guide_inventory_reservations",
		"production_steps", "guide_assigned_users", "production_guides", "production_templates",
		"inventory_transactions", "inventory_items", "refresh_tokens", "user_roles", "users",
		"role_permissions", "roles", "permissions",
	}
	for _, t := range tables {
		if err := db.WithContext(ctx).Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	return nil
}
