package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeStepUpdated   = "production.step_updated"
	EventTypeGuideArchived = "production.guide_archived"
	EventTypeStockLow      = "inventory.stock_low"
)

// StepUpdatedEvent is emitted after a step changes. The Notify* fields carry the
// caller's recipient selection; an event with none of them set notifies nobody.
type StepUpdatedEvent struct {
	BaseEvent
	GuideID          int64   `json:"guide_id"`
	GuideTitle       string  `json:"guide_title"`
	StepID           int64   `json:"step_id"`
	StepTitle        string  `json:"step_title"`
	Status           string  `json:"status"`
	ActorID          int64   `json:"actor_id"`
	NotifyCreator    bool    `json:"notify_creator"`
	NotifyRoleHolder bool    `json:"notify_role_holders"`
	CreatorID        int64   `json:"creator_id"`
	RoleID           *int64  `json:"role_id,omitempty"`
	RecipientIDs     []int64 `json:"recipient_ids,omitempty"`
	Message          string  `json:"message,omitempty"`
}

func NewStepUpdatedEvent(guideID int64, guideTitle string, stepID int64, stepTitle, status string, actorID int64) *StepUpdatedEvent {
	return &StepUpdatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeStepUpdated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"guide_id": guideID,
				"step_id":  stepID,
				"status":   status,
				"actor_id": actorID,
			},
		},
		GuideID:    guideID,
		GuideTitle: guideTitle,
		StepID:     stepID,
		StepTitle:  stepTitle,
		Status:     status,
		ActorID:    actorID,
	}
}

type GuideArchivedEvent struct {
	BaseEvent
	GuideID   int64 `json:"guide_id"`
	CreatorID int64 `json:"creator_id"`
	ActorID   int64 `json:"actor_id"`
}

func NewGuideArchivedEvent(guideID, creatorID, actorID int64) *GuideArchivedEvent {
	return &GuideArchivedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeGuideArchived,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"guide_id":   guideID,
				"creator_id": creatorID,
				"actor_id":   actorID,
			},
		},
		GuideID:   guideID,
		CreatorID: creatorID,
		ActorID:   actorID,
	}
}

// StockLowEvent fires when a ledger operation leaves available stock at or
// below the item's minimum quantity.
type StockLowEvent struct {
	BaseEvent
	ItemID      int64  `json:"item_id"`
	ItemName    string `json:"item_name"`
	Available   int64  `json:"available"`
	MinQuantity int64  `json:"min_quantity"`
}

func NewStockLowEvent(itemID int64, itemName string, available, minQuantity int64) *StockLowEvent {
	return &StockLowEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeStockLow,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"item_id":      itemID,
				"available":    available,
				"min_quantity": minQuantity,
			},
		},
		ItemID:      itemID,
		ItemName:    itemName,
		Available:   available,
		MinQuantity: minQuantity,
	}
}
