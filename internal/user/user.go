package user

import (
	"time"

	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"github.com/frahmantamala/production-management/internal/permission"
)

type RoleRef struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsSuperuser bool   `json:"is_superuser"`
}

type User struct {
	ID          int64      `json:"id"`
	Login       string     `json:"login"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	PhoneNumber *string    `json:"phone_number,omitempty"`
	IsActive    bool       `json:"is_active"`
	Roles       []RoleRef  `json:"roles"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Me is the authenticated user's own view, carrying the effective permission
// map the client uses to gate its UI.
type Me struct {
	User
	IsSuperuser bool           `json:"is_superuser"`
	Permissions map[string]int `json:"permissions"`
}

func FromDataModel(u *userDatamodel.User) *User {
	out := &User{
		ID:          u.ID,
		Login:       u.Login,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		IsActive:    u.IsActive,
		Roles:       make([]RoleRef, 0, len(u.Roles)),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	for _, r := range u.Roles {
		out.Roles = append(out.Roles, RoleRef{ID: r.ID, Name: r.Name, IsSuperuser: r.IsSuperuser})
	}
	return out
}

func NewMe(u *userDatamodel.User) *Me {
	p := permission.FromRoles(u.ID, u.Roles)
	me := &Me{
		User:        *FromDataModel(u),
		IsSuperuser: p.Superuser,
		Permissions: make(map[string]int, len(p.Permissions)),
	}
	for k, lvl := range p.Permissions {
		me.Permissions[k] = int(lvl)
	}
	return me
}
