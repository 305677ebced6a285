package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/frahmantamala/production-management/internal/core/database"
	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"github.com/frahmantamala/production-management/internal/user"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := database.GetDB(ctx, r.db).
		Preload("Roles.Permissions.Permission").
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetByLoginOrEmail matches either column; empty arguments are ignored.
func (r *UserRepository) GetByLoginOrEmail(ctx context.Context, login, email string) (*userDatamodel.User, error) {
	q := database.GetDB(ctx, r.db).Preload("Roles.Permissions.Permission")
	switch {
	case login != "" && email != "":
		q = q.Where("login = ? OR LOWER(email) = ?", login, strings.ToLower(email))
	case login != "":
		q = q.Where("login = ? OR LOWER(email) = ?", login, strings.ToLower(login))
	case email != "":
		q = q.Where("LOWER(email) = ?", strings.ToLower(email))
	default:
		return nil, nil
	}

	var u userDatamodel.User
	if err := q.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context, filter user.ListFilter, p pagination.Params) ([]*userDatamodel.User, int64, error) {
	q := database.GetDB(ctx, r.db).Model(&userDatamodel.User{})
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(login) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			like, like, like, like)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	if filter.RoleID != nil {
		q = q.Where("id IN (?)", database.GetDB(ctx, r.db).Model(&userDatamodel.UserRole{}).
			Select("user_id").Where("role_id = ?", *filter.RoleID))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []*userDatamodel.User
	err := q.Preload("Roles").Order("login ASC").Offset(p.Offset).Limit(p.Limit).Find(&users).Error
	return users, total, err
}

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	return database.GetDB(ctx, r.db).Omit("Roles").Create(u).Error
}

func (r *UserRepository) Update(ctx context.Context, u *userDatamodel.User) error {
	return database.GetDB(ctx, r.db).Model(&userDatamodel.User{}).Where("id = ?", u.ID).
		Updates(map[string]interface{}{
			"email":         u.Email,
			"first_name":    u.FirstName,
			"last_name":     u.LastName,
			"phone_number":  u.PhoneNumber,
			"is_active":     u.IsActive,
			"password_hash": u.PasswordHash,
			"last_login_at": u.LastLoginAt,
		}).Error
}

// SetRoles replaces the user's role assignments.
func (r *UserRepository) SetRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	db := database.GetDB(ctx, r.db)
	if err := db.Where("user_id = ?", userID).Delete(&userDatamodel.UserRole{}).Error; err != nil {
		return err
	}
	seen := make(map[int64]bool, len(roleIDs))
	rows := make([]userDatamodel.UserRole, 0, len(roleIDs))
	for _, id := range roleIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, userDatamodel.UserRole{UserID: userID, RoleID: id})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Create(&rows).Error
}

func (r *UserRepository) FindRoles(ctx context.Context, roleIDs []int64) ([]*roleDatamodel.Role, error) {
	var roles []*roleDatamodel.Role
	err := database.GetDB(ctx, r.db).Where("id IN ?", roleIDs).Find(&roles).Error
	return roles, err
}

func (r *UserRepository) IDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	err := database.GetDB(ctx, r.db).Model(&userDatamodel.UserRole{}).
		Joins("JOIN users ON users.id = user_roles.user_id").
		Where("user_roles.role_id = ? AND users.is_active = ?", roleID, true).
		Pluck("user_roles.user_id", &ids).Error
	return ids, err
}
