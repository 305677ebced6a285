package notification

import (
	"time"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/core/common/validation"
)

// ScheduleDTO addresses users directly and/or every active holder of a role.
// A nil or past SendAt delivers immediately.
type ScheduleDTO struct {
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Link    string     `json:"link"`
	UserIDs []int64    `json:"user_ids"`
	RoleIDs []int64    `json:"role_ids"`
	SendAt  *time.Time `json:"send_at"`
}

func (d *ScheduleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("title", d.Title).Required().MaxLength(255)
	v.Field("message", d.Message).Required().MaxLength(4000)
	v.Field("link", d.Link).MaxLength(1024)
	if len(d.UserIDs) == 0 && len(d.RoleIDs) == 0 {
		v.Field("recipients", nil).Custom(func(interface{}) *internal.AppError {
			return internal.NewValidationFieldError("recipients", "at least one user or role is required", internal.ErrCodeValidationFailed)
		})
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ScheduleResult struct {
	Recipients int       `json:"recipients"`
	SendAt     time.Time `json:"send_at"`
	Delivered  bool      `json:"delivered"`
}
