package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/production-management/internal/auth"
	"github.com/frahmantamala/production-management/internal/core/database"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewAuthRepository(db *gorm.DB) auth.RepositoryAPI {
	return &Repository{db: db}
}

// FindByLogin matches the login name or, case-insensitively, the email.
func (r *Repository) FindByLogin(ctx context.Context, login string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := database.GetDB(ctx, r.db).
		Where("login = ? OR LOWER(email) = ?", login, strings.ToLower(login)).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	if err := database.GetDB(ctx, r.db).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	return database.GetDB(ctx, r.db).Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at).Error
}

func (r *Repository) SaveRefreshToken(ctx context.Context, t *userDatamodel.RefreshToken) error {
	return database.GetDB(ctx, r.db).Create(t).Error
}

func (r *Repository) GetRefreshToken(ctx context.Context, id string) (*userDatamodel.RefreshToken, error) {
	var t userDatamodel.RefreshToken
	if err := database.GetDB(ctx, r.db).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error) {
	res := database.GetDB(ctx, r.db).Model(&userDatamodel.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) RevokeUserTokens(ctx context.Context, userID int64, at time.Time) error {
	return database.GetDB(ctx, r.db).Model(&userDatamodel.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at).Error
}
