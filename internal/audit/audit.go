package audit

import (
	"encoding/json"
	"time"

	auditDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/audit"
)

const (
	EntityRole         = "role"
	EntityUser         = "user"
	EntityItem         = "inventory_item"
	EntityGuide        = "production_guide"
	EntityStep         = "production_step"
	EntityTemplate     = "production_template"
	EntityNotification = "notification"
	EntitySession      = "session"

	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionLedger   = "STOCK_MOVEMENT"
	ActionArchive  = "ARCHIVE"
	ActionRestore  = "RESTORE"
	ActionStatus   = "STATUS_CHANGE"
	ActionWithdraw = "WITHDRAW"
	ActionReserve  = "RESERVE"
	ActionRelease  = "RELEASE"
	ActionLogin    = "LOGIN"
)

type Entry struct {
	ID         int64           `json:"id"`
	UserID     *int64          `json:"user_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func FromDataModel(l *auditDatamodel.Log) Entry {
	e := Entry{
		ID:         l.ID,
		UserID:     l.UserID,
		Action:     l.Action,
		EntityType: l.EntityType,
		EntityID:   l.EntityID,
		CreatedAt:  l.CreatedAt,
	}
	if l.Details != "" && json.Valid([]byte(l.Details)) {
		e.Details = json.RawMessage(l.Details)
	}
	return e
}
