package role

import (
	"time"

	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
)

type Role struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	IsSuperuser bool           `json:"is_superuser"`
	Permissions map[string]int `json:"permissions"`
	UserCount   int64          `json:"user_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// FromDataModel flattens the role's assignment rows into "module.action": level.
func FromDataModel(r *roleDatamodel.Role) *Role {
	out := &Role{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsSuperuser: r.IsSuperuser,
		Permissions: make(map[string]int, len(r.Permissions)),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, rp := range r.Permissions {
		if rp.Value <= 0 {
			continue
		}
		out.Permissions[rp.Permission.Key()] = rp.Value
	}
	return out
}

type Permission struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type PermissionGroup struct {
	Module      string       `json:"module"`
	Permissions []Permission `json:"permissions"`
}
