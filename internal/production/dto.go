package production

import (
	"strconv"
	"time"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/core/common/validation"
)

type StepDTO struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	EstimatedTime    *int   `json:"estimated_time"`
	AssignedToRoleID *int64 `json:"assigned_to_role_id"`
}

func (d *StepDTO) validate(v *validation.ValidationBuilder, prefix string) {
	v.Field(prefix+"title", d.Title).Required().MaxLength(255)
	v.Field(prefix+"estimated_time", d.EstimatedTime).MinInt(0, internal.ErrCodeValidationFailed)
}

func (d *StepDTO) Validate() error {
	v := validation.NewValidator()
	d.validate(v, "")
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateStepDTO struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	EstimatedTime    *int    `json:"estimated_time"`
	AssignedToRoleID *int64  `json:"assigned_to_role_id"`
	ClearRole        bool    `json:"clear_role"`
}

func (d *UpdateStepDTO) Validate() error {
	v := validation.NewValidator()
	if d.Title != nil {
		v.Field("title", *d.Title).Required().MaxLength(255)
	}
	v.Field("estimated_time", d.EstimatedTime).MinInt(0, internal.ErrCodeValidationFailed)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// AttachItemDTO binds a line to a step by StepID on an existing guide, or by
// 1-based StepPosition while the guide is being created.
type AttachItemDTO struct {
	ItemID       int64  `json:"item_id"`
	Quantity     int64  `json:"quantity"`
	StepID       *int64 `json:"step_id"`
	StepPosition *int   `json:"step_position"`
}

func (d *AttachItemDTO) validate(v *validation.ValidationBuilder, prefix string) {
	v.Field(prefix+"item_id", d.ItemID).Required()
	v.Field(prefix+"quantity", d.Quantity).MinInt(1, internal.ErrCodeInvalidQuantity)
	v.Field(prefix+"step_position", d.StepPosition).MinInt(1, internal.ErrCodeValidationFailed)
}

func (d *AttachItemDTO) Validate() error {
	v := validation.NewValidator()
	d.validate(v, "")
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CreateGuideDTO struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Barcode         string          `json:"barcode"`
	Priority        string          `json:"priority"`
	DueDate         *time.Time      `json:"due_date"`
	AssignedUserIDs []int64         `json:"assigned_user_ids"`
	Steps           []StepDTO       `json:"steps"`
	Items           []AttachItemDTO `json:"items"`
}

func (d *CreateGuideDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("title", d.Title).Required().MaxLength(255)
	v.Field("barcode", d.Barcode).MaxLength(64)
	v.Field("priority", d.Priority).OneOf(internal.ErrCodeInvalidPriority, Priorities...)
	for i := range d.Steps {
		d.Steps[i].validate(v, indexed("steps", i))
	}
	for i := range d.Items {
		d.Items[i].validate(v, indexed("items", i))
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateGuideDTO struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *string    `json:"priority"`
	Status      *string    `json:"status"`
	DueDate     *time.Time `json:"due_date"`
}

func (d *UpdateGuideDTO) Validate() error {
	v := validation.NewValidator()
	if d.Title != nil {
		v.Field("title", *d.Title).Required().MaxLength(255)
	}
	if d.Priority != nil {
		v.Field("priority", *d.Priority).Required().OneOf(internal.ErrCodeInvalidPriority, Priorities...)
	}
	if d.Status != nil {
		v.Field("status", *d.Status).Required().OneOf(internal.ErrCodeInvalidStatus, EditableStatuses...)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type AssignUsersDTO struct {
	UserIDs []int64 `json:"user_ids"`
}

type ReorderStepsDTO struct {
	StepIDs []int64 `json:"step_ids"`
}

// NotifyDTO selects who hears about a step update. Delivery is best-effort.
type NotifyDTO struct {
	Creator      bool    `json:"creator"`
	RoleHolders  bool    `json:"role_holders"`
	RecipientIDs []int64 `json:"recipient_ids"`
	Message      string  `json:"message"`
}

func (n NotifyDTO) Empty() bool {
	return !n.Creator && !n.RoleHolders && len(n.RecipientIDs) == 0
}

// StepStatusDTO sets a status directly; Direction "next" or "back" moves along
// the cycle instead.
type StepStatusDTO struct {
	Status    string    `json:"status"`
	Direction string    `json:"direction"`
	Notify    NotifyDTO `json:"notify"`
}

func (d *StepStatusDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("status", d.Status).OneOf(internal.ErrCodeInvalidStatus, StepStatuses...)
	v.Field("direction", d.Direction).OneOf(internal.ErrCodeInvalidOperation, "next", "back")
	if d.Status == "" && d.Direction == "" {
		v.Field("status", d.Status).Required()
	}
	v.Field("notify.message", d.Notify.Message).MaxLength(1000)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// WithdrawDTO withdraws the listed reservations, or every outstanding one when
// the list is empty.
type WithdrawDTO struct {
	ReservationIDs []int64 `json:"reservation_ids"`
}

type GuideFilter struct {
	Search          string
	Status          string
	Priority        string
	AssignedTo      *int64
	IncludeArchived bool
}

type CreateTemplateDTO struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Priority    string          `json:"priority"`
	GuideID     *int64          `json:"guide_id"`
	Steps       []StepDTO       `json:"steps"`
	Items       []AttachItemDTO `json:"items"`
}

func (d *CreateTemplateDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(255)
	v.Field("priority", d.Priority).OneOf(internal.ErrCodeInvalidPriority, Priorities...)
	for i := range d.Steps {
		d.Steps[i].validate(v, indexed("steps", i))
	}
	for i := range d.Items {
		d.Items[i].validate(v, indexed("items", i))
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type InstantiateTemplateDTO struct {
	Title           string     `json:"title"`
	DueDate         *time.Time `json:"due_date"`
	AssignedUserIDs []int64    `json:"assigned_user_ids"`
}

func indexed(field string, i int) string {
	return field + "[" + strconv.Itoa(i) + "]."
}
