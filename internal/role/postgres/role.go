package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/production-management/internal/core/database"
	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"github.com/frahmantamala/production-management/internal/role"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"gorm.io/gorm"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) withPermissions(ctx context.Context) *gorm.DB {
	return database.GetDB(ctx, r.db).Preload("Permissions.Permission")
}

func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*roleDatamodel.Role, error) {
	var row roleDatamodel.Role
	err := r.withPermissions(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*roleDatamodel.Role, error) {
	var row roleDatamodel.Role
	err := database.GetDB(ctx, r.db).Where("name = ?", name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) List(ctx context.Context, p pagination.Params) ([]*roleDatamodel.Role, int64, error) {
	var total int64
	if err := database.GetDB(ctx, r.db).Model(&roleDatamodel.Role{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*roleDatamodel.Role
	err := r.withPermissions(ctx).Order("name ASC").Offset(p.Offset).Limit(p.Limit).Find(&rows).Error
	return rows, total, err
}

func (r *RoleRepository) Create(ctx context.Context, row *roleDatamodel.Role) error {
	return database.GetDB(ctx, r.db).Omit("Permissions").Create(row).Error
}

func (r *RoleRepository) Update(ctx context.Context, row *roleDatamodel.Role) error {
	return database.GetDB(ctx, r.db).Model(&roleDatamodel.Role{}).Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"name":         row.Name,
			"description":  row.Description,
			"is_superuser": row.IsSuperuser,
		}).Error
}

func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	return database.GetDB(ctx, r.db).Delete(&roleDatamodel.Role{}, id).Error
}

// ReplacePermissions deletes every assignment of roleID and inserts rows.
func (r *RoleRepository) ReplacePermissions(ctx context.Context, roleID int64, rows []roleDatamodel.RolePermission) error {
	db := database.GetDB(ctx, r.db)
	if err := db.Where("role_id = ?", roleID).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Omit("Permission").Create(&rows).Error
}

func (r *RoleRepository) CountUsers(ctx context.Context, roleIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(roleIDs))
	if len(roleIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		RoleID int64
		Total  int64
	}
	err := database.GetDB(ctx, r.db).Model(&userDatamodel.UserRole{}).
		Select("role_id, COUNT(*) AS total").
		Where("role_id IN ?", roleIDs).
		Group("role_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.RoleID] = row.Total
	}
	return counts, nil
}

func (r *RoleRepository) ListPermissions(ctx context.Context) ([]*roleDatamodel.Permission, error) {
	var perms []*roleDatamodel.Permission
	err := database.GetDB(ctx, r.db).Order("module ASC, action ASC").Find(&perms).Error
	return perms, err
}
