// Package permission evaluates module.action access levels for an authenticated
// principal. Evaluation is pure; loading and caching principals lives in
// Resolver.
package permission

import (
	"strings"

	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
)

type Level int

const (
	LevelNone Level = iota
	LevelView
	LevelEdit
	LevelFull
)

// WildcardKey grants every module.action at its stored level. It is a catalog
// entry like any other, so roles grant it through the normal level map.
const WildcardKey = ModuleAll + "." + ActionAll

func (l Level) Valid() bool {
	return l >= LevelNone && l <= LevelFull
}

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelView:
		return "view"
	case LevelEdit:
		return "edit"
	case LevelFull:
		return "full"
	}
	return "invalid"
}

func Key(module, action string) string {
	return module + "." + action
}

// SplitKey returns the module and action of a "module.action" key.
func SplitKey(key string) (module, action string, ok bool) {
	idx := strings.LastIndex(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

// Set maps permission keys to levels. Keys at LevelNone are never stored.
type Set map[string]Level

// Merge folds other into s keeping the highest level per key.
func (s Set) Merge(other Set) {
	for k, lvl := range other {
		if lvl <= LevelNone {
			continue
		}
		if lvl > s[k] {
			s[k] = lvl
		}
	}
}

// Principal is the authorization snapshot of one user.
type Principal struct {
	UserID      int64    `json:"user_id"`
	Superuser   bool     `json:"is_superuser"`
	RoleIDs     []int64  `json:"role_ids"`
	RoleNames   []string `json:"roles"`
	Permissions Set      `json:"permissions"`
}

// HasRole reports whether the principal holds roleID.
func (p *Principal) HasRole(roleID int64) bool {
	if p == nil {
		return false
	}
	for _, id := range p.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Level returns the effective level for module.action, ignoring superuser
// status.
func (p *Principal) Level(module, action string) Level {
	if p == nil || p.Permissions == nil {
		return LevelNone
	}
	lvl := p.Permissions[Key(module, action)]
	if wild := p.Permissions[WildcardKey]; wild > lvl {
		lvl = wild
	}
	return lvl
}

// HasPermission is true when p may perform module.action at level or above.
// A nil principal is always denied; a superuser is always allowed.
func HasPermission(p *Principal, module, action string, level Level) bool {
	if p == nil {
		return false
	}
	if p.Superuser {
		return true
	}
	if level < LevelView {
		level = LevelView
	}
	return p.Level(module, action) >= level
}

// FromRoles builds the effective principal of a user: superuser if any role is
// flagged, and the per-key maximum level across all roles.
func FromRoles(userID int64, roles []roleDatamodel.Role) *Principal {
	p := &Principal{
		UserID:      userID,
		RoleIDs:     make([]int64, 0, len(roles)),
		RoleNames:   make([]string, 0, len(roles)),
		Permissions: Set{},
	}
	for _, r := range roles {
		p.RoleIDs = append(p.RoleIDs, r.ID)
		p.RoleNames = append(p.RoleNames, r.Name)
		if r.IsSuperuser {
			p.Superuser = true
		}
		granted := make(Set, len(r.Permissions))
		for _, rp := range r.Permissions {
			if lvl := Level(rp.Value); lvl.Valid() {
				granted[rp.Permission.Key()] = lvl
			}
		}
		p.Permissions.Merge(granted)
	}
	return p
}
