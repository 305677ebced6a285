package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/core/database"
	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"golang.org/x/crypto/bcrypt"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	GetByLoginOrEmail(ctx context.Context, login, email string) (*userDatamodel.User, error)
	List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*userDatamodel.User, int64, error)
	Create(ctx context.Context, u *userDatamodel.User) error
	Update(ctx context.Context, u *userDatamodel.User) error
	SetRoles(ctx context.Context, userID int64, roleIDs []int64) error
	FindRoles(ctx context.Context, roleIDs []int64) ([]*roleDatamodel.Role, error)
	IDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// PrincipalCache is the slice of permission.Resolver the service needs.
type PrincipalCache interface {
	Forget(ctx context.Context, userID int64)
}

type Service struct {
	repo       RepositoryAPI
	tx         database.TxManager
	audit      audit.Recorder
	principals PrincipalCache
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo RepositoryAPI, tx database.TxManager, recorder audit.Recorder, principals PrincipalCache, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		tx:         tx,
		audit:      recorder,
		principals: principals,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}
	return FromDataModel(u), nil
}

// Me returns the user with the effective permission map of all their roles.
func (s *Service) Me(ctx context.Context, id int64) (*Me, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if u == nil || !u.IsActive {
		return nil, internal.ErrUserNotFound
	}
	return NewMe(u), nil
}

func (s *Service) ListUsers(ctx context.Context, filter ListFilter, p pagination.Params) (pagination.Page[*User], error) {
	rows, total, err := s.repo.List(ctx, filter, p)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return pagination.Page[*User]{}, internal.NewInternalError("failed to list users", err)
	}
	users := make([]*User, 0, len(rows))
	for _, u := range rows {
		users = append(users, FromDataModel(u))
	}
	return pagination.NewPage(users, total, p), nil
}

func (s *Service) CreateUser(ctx context.Context, actor *permission.Principal, dto CreateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	dto.Login = strings.TrimSpace(dto.Login)
	dto.Email = strings.ToLower(strings.TrimSpace(dto.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	var id int64
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetByLoginOrEmail(txCtx, dto.Login, dto.Email)
		if err != nil {
			return internal.NewInternalError("failed to check login", err)
		}
		if existing != nil {
			return internal.ErrLoginTaken
		}
		if err := s.checkRoles(txCtx, actor, nil, dto.RoleIDs); err != nil {
			return err
		}

		row := &userDatamodel.User{
			Login:        dto.Login,
			Email:        dto.Email,
			PasswordHash: string(hash),
			FirstName:    dto.FirstName,
			LastName:     dto.LastName,
			PhoneNumber:  dto.PhoneNumber,
			IsActive:     true,
		}
		if err := s.repo.Create(txCtx, row); err != nil {
			return internal.NewInternalError("failed to create user", err)
		}
		id = row.ID
		if err := s.repo.SetRoles(txCtx, id, dto.RoleIDs); err != nil {
			return internal.NewInternalError("failed to assign roles", err)
		}
		return s.record(txCtx, actor, audit.ActionCreate, id, map[string]interface{}{
			"login": dto.Login, "role_ids": dto.RoleIDs,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", id, "login", dto.Login)
	return s.GetUser(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, actor *permission.Principal, id int64, dto UpdateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if actor != nil && actor.UserID == id && dto.IsActive != nil && !*dto.IsActive {
		return nil, internal.NewValidationError("You cannot deactivate your own account", internal.ErrCodeInvalidOperation)
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return internal.NewInternalError("failed to load user", err)
		}
		if row == nil {
			return internal.ErrUserNotFound
		}

		held := permission.FromRoles(row.ID, row.Roles)
		if held.Superuser && !isSuperuser(actor) && dto.IsActive != nil && !*dto.IsActive {
			return internal.ErrForbidden
		}
		if dto.RoleIDs != nil {
			if err := s.checkRoles(txCtx, actor, held, *dto.RoleIDs); err != nil {
				return err
			}
		}

		if dto.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*dto.Email))
			if email != row.Email {
				other, err := s.repo.GetByLoginOrEmail(txCtx, "", email)
				if err != nil {
					return internal.NewInternalError("failed to check email", err)
				}
				if other != nil && other.ID != id {
					return internal.ErrLoginTaken
				}
			}
			row.Email = email
		}
		if dto.FirstName != nil {
			row.FirstName = *dto.FirstName
		}
		if dto.LastName != nil {
			row.LastName = *dto.LastName
		}
		if dto.PhoneNumber != nil {
			row.PhoneNumber = dto.PhoneNumber
		}
		if dto.IsActive != nil {
			row.IsActive = *dto.IsActive
		}
		if err := s.repo.Update(txCtx, row); err != nil {
			return internal.NewInternalError("failed to update user", err)
		}

		if dto.RoleIDs != nil {
			if err := s.repo.SetRoles(txCtx, id, *dto.RoleIDs); err != nil {
				return internal.NewInternalError("failed to assign roles", err)
			}
		}
		return s.record(txCtx, actor, audit.ActionUpdate, id, dto)
	})
	if err != nil {
		return nil, err
	}

	s.forget(ctx, id)
	return s.GetUser(ctx, id)
}

// DeleteUser deactivates the account and strips its roles; rows stay for the
// audit trail and the ledger history that references them.
func (s *Service) DeleteUser(ctx context.Context, actor *permission.Principal, id int64) error {
	if actor != nil && actor.UserID == id {
		return internal.NewValidationError("You cannot delete your own account", internal.ErrCodeInvalidOperation)
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return internal.NewInternalError("failed to load user", err)
		}
		if row == nil {
			return internal.ErrUserNotFound
		}
		if permission.FromRoles(row.ID, row.Roles).Superuser && !isSuperuser(actor) {
			return internal.ErrForbidden
		}
		row.IsActive = false
		if err := s.repo.Update(txCtx, row); err != nil {
			return internal.NewInternalError("failed to deactivate user", err)
		}
		if err := s.repo.SetRoles(txCtx, id, nil); err != nil {
			return internal.NewInternalError("failed to strip roles", err)
		}
		return s.record(txCtx, actor, audit.ActionDelete, id, map[string]string{"login": row.Login})
	})
	if err != nil {
		return err
	}
	s.forget(ctx, id)
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, actor *permission.Principal, id int64, dto ChangePasswordDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return internal.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return internal.ErrUserNotFound
	}

	// Changing someone else's password needs users.update; your own needs the
	// current password.
	if actor == nil || actor.UserID == id {
		if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(dto.CurrentPassword)) != nil {
			return internal.NewValidationFieldError("current_password", "current password is incorrect", internal.ErrCodeInvalidCredentials)
		}
	} else if !permission.HasPermission(actor, permission.ModuleUsers, permission.ActionUpdate, permission.LevelEdit) {
		return internal.ErrForbidden
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.NewPassword), s.bcryptCost)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}
	row.PasswordHash = string(hash)
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Update(txCtx, row); err != nil {
			return internal.NewInternalError("failed to update password", err)
		}
		return s.record(txCtx, actor, audit.ActionUpdate, id, map[string]string{"field": "password"})
	})
}

// LoadPrincipal satisfies permission.Loader. Inactive or missing users resolve
// to nil.
func (s *Service) LoadPrincipal(ctx context.Context, id int64) (*permission.Principal, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, nil
	}
	return permission.FromRoles(u.ID, u.Roles), nil
}

// IDsWithRole lists active users holding roleID.
func (s *Service) IDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	return s.repo.IDsWithRole(ctx, roleID)
}

// checkRoles ensures every id exists and that only superusers grant or take
// away superuser roles. held is the target's current principal, nil for a new
// account.
func (s *Service) checkRoles(ctx context.Context, actor, held *permission.Principal, roleIDs []int64) error {
	unique := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		unique[id] = struct{}{}
	}
	if held != nil && held.Superuser && !isSuperuser(actor) {
		kept, err := s.repo.FindRoles(ctx, held.RoleIDs)
		if err != nil {
			return internal.NewInternalError("failed to check roles", err)
		}
		for _, r := range kept {
			if _, ok := unique[r.ID]; r.IsSuperuser && !ok {
				return internal.ErrForbidden
			}
		}
	}
	if len(unique) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	roles, err := s.repo.FindRoles(ctx, ids)
	if err != nil {
		return internal.NewInternalError("failed to check roles", err)
	}
	if len(roles) != len(ids) {
		return internal.NewValidationFieldError("role_ids", "one or more roles do not exist", internal.ErrCodeRoleNotFound)
	}
	for _, r := range roles {
		if r.IsSuperuser && !held.HasRole(r.ID) && !isSuperuser(actor) {
			return internal.ErrForbidden
		}
	}
	return nil
}

func isSuperuser(p *permission.Principal) bool {
	return p != nil && p.Superuser
}
