package production

import (
	"time"

	productionDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/production"
)

const (
	GuideDraft      = "DRAFT"
	GuideInProgress = "IN_PROGRESS"
	GuideCompleted  = "COMPLETED"
	GuideCancelled  = "CANCELLED"
	GuideArchived   = "ARCHIVED"

	PriorityLow      = "LOW"
	PriorityNormal   = "NORMAL"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"

	StepPending    = "PENDING"
	StepInProgress = "IN_PROGRESS"
	StepCompleted  = "COMPLETED"
)

var (
	Priorities = []string{PriorityLow, PriorityNormal, PriorityMedium, PriorityHigh, PriorityCritical}

	// EditableStatuses can be set through a guide update. ARCHIVED is reached
	// only through Archive.
	EditableStatuses = []string{GuideDraft, GuideInProgress, GuideCompleted, GuideCancelled}

	StepStatuses = []string{StepPending, StepInProgress, StepCompleted}
)

// NextStepStatus is the forward move of the step cycle
// PENDING -> IN_PROGRESS -> COMPLETED -> PENDING.
func NextStepStatus(s string) (string, bool) {
	switch s {
	case StepPending:
		return StepInProgress, true
	case StepInProgress:
		return StepCompleted, true
	case StepCompleted:
		return StepPending, true
	}
	return "", false
}

// PrevStepStatus is the explicit back move COMPLETED -> IN_PROGRESS -> PENDING.
func PrevStepStatus(s string) (string, bool) {
	switch s {
	case StepCompleted:
		return StepInProgress, true
	case StepInProgress:
		return StepPending, true
	}
	return "", false
}

// CanMoveStep reports whether a step may go from one status to another in a
// single move, either along the cycle or back.
func CanMoveStep(from, to string) bool {
	if from == to {
		return true
	}
	if next, ok := NextStepStatus(from); ok && next == to {
		return true
	}
	prev, ok := PrevStepStatus(from)
	return ok && prev == to
}

// CanArchive reports whether a guide in status may be archived.
func CanArchive(status string) bool {
	switch status {
	case GuideDraft, GuideInProgress, GuideCompleted, GuideCancelled:
		return true
	}
	return false
}

type UserRef struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Step struct {
	ID               int64     `json:"id"`
	GuideID          int64     `json:"guide_id"`
	Position         int       `json:"position"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	EstimatedTime    *int      `json:"estimated_time,omitempty"`
	ActualTime       int       `json:"actual_time"`
	AssignedToRoleID *int64    `json:"assigned_to_role_id,omitempty"`
	Status           string    `json:"status"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Reservation struct {
	ID            int64      `json:"id"`
	GuideID       int64      `json:"guide_id"`
	ItemID        int64      `json:"item_id"`
	ItemName      string     `json:"item_name,omitempty"`
	Unit          string     `json:"unit,omitempty"`
	StepID        *int64     `json:"step_id,omitempty"`
	Quantity      int64      `json:"quantity"`
	Reserved      bool       `json:"reserved"`
	WithdrawnByID *int64     `json:"withdrawn_by_id,omitempty"`
	WithdrawnDate *time.Time `json:"withdrawn_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type Guide struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Barcode       string        `json:"barcode"`
	Priority      string        `json:"priority"`
	Status        string        `json:"status"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	CreatedByID   int64         `json:"created_by_id"`
	AssignedUsers []UserRef     `json:"assigned_users"`
	Steps         []Step        `json:"steps"`
	Reservations  []Reservation `json:"inventory"`
	Progress      Progress      `json:"progress"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func StepFromDataModel(s *productionDatamodel.Step) Step {
	return Step{
		ID:               s.ID,
		GuideID:          s.GuideID,
		Position:         s.Position,
		Title:            s.Title,
		Description:      s.Description,
		EstimatedTime:    s.EstimatedTime,
		ActualTime:       s.ActualTime,
		AssignedToRoleID: s.AssignedToRoleID,
		Status:           s.Status,
		UpdatedAt:        s.UpdatedAt,
	}
}

func ReservationFromDataModel(r *productionDatamodel.Reservation) Reservation {
	out := Reservation{
		ID:            r.ID,
		GuideID:       r.GuideID,
		ItemID:        r.ItemID,
		StepID:        r.StepID,
		Quantity:      r.Quantity,
		Reserved:      r.Reserved,
		WithdrawnByID: r.WithdrawnByID,
		WithdrawnDate: r.WithdrawnDate,
		CreatedAt:     r.CreatedAt,
	}
	if r.Item != nil {
		out.ItemName = r.Item.Name
		out.Unit = r.Item.Unit
	}
	return out
}

func FromDataModel(g *productionDatamodel.Guide) *Guide {
	out := &Guide{
		ID:            g.ID,
		Title:         g.Title,
		Description:   g.Description,
		Barcode:       g.Barcode,
		Priority:      g.Priority,
		Status:        g.Status,
		DueDate:       g.DueDate,
		CreatedByID:   g.CreatedByID,
		AssignedUsers: make([]UserRef, 0, len(g.AssignedUsers)),
		Steps:         make([]Step, 0, len(g.Steps)),
		Reservations:  make([]Reservation, 0, len(g.Reservations)),
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
	for _, u := range g.AssignedUsers {
		out.AssignedUsers = append(out.AssignedUsers, UserRef{ID: u.ID, Login: u.Login, FirstName: u.FirstName, LastName: u.LastName})
	}
	for i := range g.Steps {
		out.Steps = append(out.Steps, StepFromDataModel(&g.Steps[i]))
		if g.Steps[i].Status == StepCompleted {
			out.Progress.Completed++
		}
	}
	out.Progress.Total = len(g.Steps)
	for i := range g.Reservations {
		out.Reservations = append(out.Reservations, ReservationFromDataModel(&g.Reservations[i]))
	}
	return out
}

// IsAssigned reports whether userID is on the guide's assignee list.
func IsAssigned(g *productionDatamodel.Guide, userID int64) bool {
	for _, u := range g.AssignedUsers {
		if u.ID == userID {
			return true
		}
	}
	return false
}

type Template struct {
	ID            int64                              `json:"id"`
	Name          string                             `json:"name"`
	Description   string                             `json:"description,omitempty"`
	Priority      string                             `json:"priority"`
	Steps         []productionDatamodel.TemplateStep `json:"steps"`
	Items         []productionDatamodel.TemplateItem `json:"items"`
	SourceGuideID *int64                             `json:"source_guide_id,omitempty"`
	CreatedByID   int64                              `json:"created_by_id"`
	CreatedAt     time.Time                          `json:"created_at"`
}

func TemplateFromDataModel(t *productionDatamodel.Template) *Template {
	out := &Template{
		ID:            t.ID,
		Name:          t.Name,
		Description:   t.Description,
		Priority:      t.Priority,
		Steps:         t.Steps,
		Items:         t.Items,
		SourceGuideID: t.SourceGuideID,
		CreatedByID:   t.CreatedByID,
		CreatedAt:     t.CreatedAt,
	}
	if out.Steps == nil {
		out.Steps = []productionDatamodel.TemplateStep{}
	}
	if out.Items == nil {
		out.Items = []productionDatamodel.TemplateItem{}
	}
	return out
}
