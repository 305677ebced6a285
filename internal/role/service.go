package role

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/core/database"
	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/pkg/pagination"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*roleDatamodel.Role, error)
	GetByName(ctx context.Context, name string) (*roleDatamodel.Role, error)
	List(ctx context.Context, p pagination.Params) ([]*roleDatamodel.Role, int64, error)
	Create(ctx context.Context, r *roleDatamodel.Role) error
	Update(ctx context.Context, r *roleDatamodel.Role) error
	Delete(ctx context.Context, id int64) error
	ReplacePermissions(ctx context.Context, roleID int64, rows []roleDatamodel.RolePermission) error
	CountUsers(ctx context.Context, roleIDs []int64) (map[int64]int64, error)
	ListPermissions(ctx context.Context) ([]*roleDatamodel.Permission, error)
}

// CacheInvalidator drops cached principals once role definitions change.
type CacheInvalidator interface {
	ForgetAll(ctx context.Context)
}

type Service struct {
	repo   RepositoryAPI
	tx     database.TxManager
	audit  audit.Recorder
	cache  CacheInvalidator
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, tx database.TxManager, recorder audit.Recorder, cache CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		audit:  recorder,
		cache:  cache,
		logger: logger,
	}
}

func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load role", err)
	}
	if r == nil {
		return nil, internal.ErrRoleNotFound
	}
	out := FromDataModel(r)
	counts, err := s.repo.CountUsers(ctx, []int64{id})
	if err != nil {
		return nil, internal.NewInternalError("failed to count role users", err)
	}
	out.UserCount = counts[id]
	return out, nil
}

func (s *Service) ListRoles(ctx context.Context, p pagination.Params) (pagination.Page[*Role], error) {
	rows, total, err := s.repo.List(ctx, p)
	if err != nil {
		s.logger.Error("failed to list roles", "error", err)
		return pagination.Page[*Role]{}, internal.NewInternalError("failed to list roles", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	counts, err := s.repo.CountUsers(ctx, ids)
	if err != nil {
		return pagination.Page[*Role]{}, internal.NewInternalError("failed to count role users", err)
	}

	roles := make([]*Role, 0, len(rows))
	for _, r := range rows {
		out := FromDataModel(r)
		out.UserCount = counts[r.ID]
		roles = append(roles, out)
	}
	return pagination.NewPage(roles, total, p), nil
}

// GetAllPermissions returns the catalog grouped by module, modules sorted by
// name.
func (s *Service) GetAllPermissions(ctx context.Context) ([]PermissionGroup, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list permissions", err)
	}

	byModule := make(map[string][]Permission)
	for _, p := range perms {
		byModule[p.Module] = append(byModule[p.Module], Permission{
			ID:          p.ID,
			Key:         p.Key(),
			Module:      p.Module,
			Action:      p.Action,
			Description: p.Description,
		})
	}

	groups := make([]PermissionGroup, 0, len(byModule))
	for module, list := range byModule {
		sort.Slice(list, func(i, j int) bool { return list[i].Action < list[j].Action })
		groups = append(groups, PermissionGroup{Module: module, Permissions: list})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Module < groups[j].Module })
	return groups, nil
}

func (s *Service) CreateRole(ctx context.Context, actor *permission.Principal, dto RoleDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if dto.IsSuperuser && (actor == nil || !actor.Superuser) {
		return nil, internal.ErrForbidden
	}
	dto.Name = strings.TrimSpace(dto.Name)

	var roleID int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetByName(txCtx, dto.Name)
		if err != nil {
			return internal.NewInternalError("failed to check role name", err)
		}
		if existing != nil {
			return internal.ErrRoleNameTaken
		}

		row := &roleDatamodel.Role{Name: dto.Name, Description: dto.Description, IsSuperuser: dto.IsSuperuser}
		if err := s.repo.Create(txCtx, row); err != nil {
			return internal.NewInternalError("failed to create role", err)
		}
		roleID = row.ID

		if err := s.writePermissions(txCtx, row.ID, dto.Permissions); err != nil {
			return err
		}
		return s.record(txCtx, actor, audit.ActionCreate, row.ID, dto)
	})
	if err != nil {
		s.logger.Info("create role rejected", "name", dto.Name, "error", err)
		return nil, err
	}

	s.logger.Info("role created", "role_id", roleID, "name", dto.Name)
	return s.GetRole(ctx, roleID)
}

// UpdateRole replaces the role's whole permission set; keys missing from dto
// lose their assignment.
func (s *Service) UpdateRole(ctx context.Context, actor *permission.Principal, id int64, dto RoleDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	dto.Name = strings.TrimSpace(dto.Name)

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return internal.NewInternalError("failed to load role", err)
		}
		if row == nil {
			return internal.ErrRoleNotFound
		}
		if row.IsSuperuser != dto.IsSuperuser && (actor == nil || !actor.Superuser) {
			return internal.ErrForbidden
		}

		if row.Name != dto.Name {
			other, err := s.repo.GetByName(txCtx, dto.Name)
			if err != nil {
				return internal.NewInternalError("failed to check role name", err)
			}
			if other != nil && other.ID != id {
				return internal.ErrRoleNameTaken
			}
		}

		row.Name = dto.Name
		row.Description = dto.Description
		row.IsSuperuser = dto.IsSuperuser
		if err := s.repo.Update(txCtx, row); err != nil {
			return internal.NewInternalError("failed to update role", err)
		}
		if err := s.writePermissions(txCtx, id, dto.Permissions); err != nil {
			return err
		}
		return s.record(txCtx, actor, audit.ActionUpdate, id, dto)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("role updated", "role_id", id)
	return s.GetRole(ctx, id)
}

func (s *Service) DeleteRole(ctx context.Context, actor *permission.Principal, id int64) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return internal.NewInternalError("failed to load role", err)
		}
		if row == nil {
			return internal.ErrRoleNotFound
		}

		counts, err := s.repo.CountUsers(txCtx, []int64{id})
		if err != nil {
			return internal.NewInternalError("failed to count role users", err)
		}
		if counts[id] > 0 {
			return internal.ErrRoleInUse.WithDetails(map[string]int64{"user_count": counts[id]})
		}

		if err := s.repo.ReplacePermissions(txCtx, id, nil); err != nil {
			return internal.NewInternalError("failed to delete role permissions", err)
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return internal.NewInternalError("failed to delete role", err)
		}
		return s.record(txCtx, actor, audit.ActionDelete, id, map[string]string{"name": row.Name})
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.Info("role deleted", "role_id", id)
	return nil
}

// writePermissions maps keys to catalog ids, dropping level 0 and unknown keys,
// and replaces the role's assignment rows.
func (s *Service) writePermissions(ctx context.Context, roleID int64, levels map[string]int) error {
	catalog, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return internal.NewInternalError("failed to load permission catalog", err)
	}
	ids := make(map[string]int64, len(catalog))
	for _, p := range catalog {
		ids[p.Key()] = p.ID
	}

	rows := make([]roleDatamodel.RolePermission, 0, len(levels))
	for key, lvl := range levels {
		if lvl <= 0 {
			continue
		}
		permID, ok := ids[key]
		if !ok {
			s.logger.Debug("skipping unknown permission key", "role_id", roleID, "key", key)
			continue
		}
		rows = append(rows, roleDatamodel.RolePermission{RoleID: roleID, PermissionID: permID, Value: lvl})
	}

	if err := s.repo.ReplacePermissions(ctx, roleID, rows); err != nil {
		return internal.NewInternalError("failed to write role permissions", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor *permission.Principal, action string, roleID int64, details any) error {
	if s.audit == nil {
		return nil
	}
	var actorID int64
	if actor != nil {
		actorID = actor.UserID
	}
	if err := s.audit.Record(ctx, actorID, action, audit.EntityRole, roleID, details); err != nil {
		return internal.NewInternalError("failed to write audit log", err)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.ForgetAll(ctx)
	}
}
