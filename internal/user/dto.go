package user

import (
	"github.com/frahmantamala/production-management/internal/core/common/validation"
)

type CreateUserDTO struct {
	Login       string  `json:"login"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	PhoneNumber *string `json:"phone_number"`
	RoleIDs     []int64 `json:"role_ids"`
}

func (d *CreateUserDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("login", d.Login).Required().MinLength(3).MaxLength(64)
	v.Field("email", d.Email).Required().Email().MaxLength(255)
	v.Field("password", d.Password).Required().MinLength(8).MaxLength(72)
	v.Field("first_name", d.FirstName).MaxLength(100)
	v.Field("last_name", d.LastName).MaxLength(100)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// UpdateUserDTO leaves nil fields unchanged. RoleIDs replaces the full set when
// present.
type UpdateUserDTO struct {
	Email       *string  `json:"email"`
	FirstName   *string  `json:"first_name"`
	LastName    *string  `json:"last_name"`
	PhoneNumber *string  `json:"phone_number"`
	IsActive    *bool    `json:"is_active"`
	RoleIDs     *[]int64 `json:"role_ids"`
}

func (d *UpdateUserDTO) Validate() error {
	v := validation.NewValidator()
	if d.Email != nil {
		v.Field("email", *d.Email).Required().Email().MaxLength(255)
	}
	if d.FirstName != nil {
		v.Field("first_name", *d.FirstName).MaxLength(100)
	}
	if d.LastName != nil {
		v.Field("last_name", *d.LastName).MaxLength(100)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (d *ChangePasswordDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("new_password", d.NewPassword).Required().MinLength(8).MaxLength(72)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ListFilter struct {
	Search   string
	RoleID   *int64
	IsActive *bool
}
