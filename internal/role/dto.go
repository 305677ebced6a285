package role

import (
	"fmt"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/core/common/validation"
	"github.com/frahmantamala/production-management/internal/permission"
)

type RoleDTO struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	IsSuperuser bool           `json:"is_superuser"`
	Permissions map[string]int `json:"permissions"`
}

func (d *RoleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("description", d.Description).MaxLength(500)
	for key, lvl := range d.Permissions {
		key, lvl := key, lvl
		v.Field("permissions."+key, lvl).Custom(func(interface{}) *internal.AppError {
			if !permission.Level(lvl).Valid() {
				return internal.NewValidationFieldError("permissions."+key,
					fmt.Sprintf("level for %s must be between 0 and 3", key), internal.ErrCodeInvalidLevel)
			}
			return nil
		})
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
