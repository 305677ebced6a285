package production

import (
	"time"

	inventoryDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/inventory"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"gorm.io/gorm"
)

type Guide struct {
	ID                  int64                `gorm:"primaryKey"`
	Title               string               `gorm:"column:title;not null"`
	Description         string               `gorm:"column:description"`
	Barcode             string               `gorm:"column:barcode;uniqueIndex;not null"`
	Priority            string               `gorm:"column:priority;not null;default:'NORMAL'"`
	Status              string               `gorm:"column:status;not null;default:'DRAFT';index"`
	StatusBeforeArchive *string              `gorm:"column:status_before_archive"`
	DueDate             *time.Time           `gorm:"column:due_date"`
	CreatedByID         int64                `gorm:"column:created_by_id;not null;index"`
	AssignedUsers       []userDatamodel.User `gorm:"many2many:guide_assigned_users;joinForeignKey:GuideID;joinReferences:UserID"`
	Steps               []Step               `gorm:"foreignKey:GuideID"`
	Reservations        []Reservation        `gorm:"foreignKey:GuideID"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt           gorm.DeletedAt       `gorm:"column:deleted_at;index"`
}

func (Guide) TableName() string { return "production_guides" }

type Step struct {
	ID               int64     `gorm:"primaryKey"`
	GuideID          int64     `gorm:"column:guide_id;not null;index"`
	Position         int       `gorm:"column:position;not null"`
	Title            string    `gorm:"column:title;not null"`
	Description      string    `gorm:"column:description"`
	EstimatedTime    *int      `gorm:"column:estimated_time"`
	ActualTime       int       `gorm:"column:actual_time;not null;default:0"`
	AssignedToRoleID *int64    `gorm:"column:assigned_to_role_id;index"`
	Status           string    `gorm:"column:status;not null;default:'PENDING'"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Step) TableName() string { return "production_steps" }

type Reservation struct {
	ID            int64                    `gorm:"primaryKey"`
	GuideID       int64                    `gorm:"column:guide_id;not null;index"`
	ItemID        int64                    `gorm:"column:item_id;not null;index"`
	StepID        *int64                   `gorm:"column:step_id"`
	Quantity      int64                    `gorm:"column:quantity;not null"`
	Reserved      bool                     `gorm:"column:reserved;not null;default:true"`
	WithdrawnByID *int64                   `gorm:"column:withdrawn_by_id"`
	WithdrawnDate *time.Time               `gorm:"column:withdrawn_date"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	Item          *inventoryDatamodel.Item `gorm:"foreignKey:ItemID"`
}

func (Reservation) TableName() string { return "guide_inventory_reservations" }

type WorkSession struct {
	ID        int64      `gorm:"primaryKey"`
	StepID    int64      `gorm:"column:step_id;not null;index"`
	UserID    int64      `gorm:"column:user_id;not null;index"`
	StartedAt time.Time  `gorm:"column:started_at;not null"`
	EndedAt   *time.Time `gorm:"column:ended_at"`
	Minutes   int        `gorm:"column:minutes;not null;default:0"`
}

func (WorkSession) TableName() string { return "work_sessions" }

type TemplateStep struct {
	Position         int    `json:"position"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	EstimatedTime    *int   `json:"estimated_time,omitempty"`
	AssignedToRoleID *int64 `json:"assigned_to_role_id,omitempty"`
}

type TemplateItem struct {
	ItemID       int64  `json:"item_id"`
	Quantity     int64  `json:"quantity"`
	StepPosition *int   `json:"step_position,omitempty"`
	ItemName     string `json:"item_name,omitempty"`
}

// Template is a detached snapshot; later edits to the source guide do not
// reach it.
type Template struct {
	ID            int64          `gorm:"primaryKey"`
	Name          string         `gorm:"column:name;uniqueIndex;not null"`
	Description   string         `gorm:"column:description"`
	Priority      string         `gorm:"column:priority;not null;default:'NORMAL'"`
	Steps         []TemplateStep `gorm:"column:steps;serializer:json"`
	Items         []TemplateItem `gorm:"column:items;serializer:json"`
	SourceGuideID *int64         `gorm:"column:source_guide_id"`
	CreatedByID   int64          `gorm:"column:created_by_id;not null"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Template) TableName() string { return "production_templates" }
