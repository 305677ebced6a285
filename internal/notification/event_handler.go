package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/frahmantamala/production-management/internal/core/events"
)

// Broadcaster reaches every connected socket.
type Broadcaster interface {
	Broadcast(msg Message) error
}

// EventHandler turns domain events into stored notifications.
type EventHandler struct {
	service     *Service
	recipients  RecipientResolver
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewEventHandler(service *Service, recipients RecipientResolver, broadcaster Broadcaster, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		service:     service,
		recipients:  recipients,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// HandleStepUpdated notifies the recipients chosen on the status change. The
// user who moved the step is never notified.
func (h *EventHandler) HandleStepUpdated(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.StepUpdatedEvent)
	if !ok {
		return fmt.Errorf("invalid event type for step update handler: %T", event)
	}

	ids := append([]int64{}, e.RecipientIDs...)
	if e.NotifyCreator && e.CreatorID > 0 {
		ids = append(ids, e.CreatorID)
	}
	if e.NotifyRoleHolder && e.RoleID != nil {
		holders, err := h.recipients.IDsWithRole(ctx, *e.RoleID)
		if err != nil {
			h.logger.Error("failed to resolve step role holders", "role_id", *e.RoleID, "error", err)
			return err
		}
		ids = append(ids, holders...)
	}
	ids = without(ids, e.ActorID)
	if len(ids) == 0 {
		return nil
	}

	message := e.Message
	if message == "" {
		message = fmt.Sprintf("Step %q of %q is now %s", e.StepTitle, e.GuideTitle, e.Status)
	}
	guideID, stepID := e.GuideID, e.StepID
	draft := Draft{
		Title:   "Production step updated",
		Message: message,
		Link:    guideLink(e.GuideID),
		GuideID: &guideID,
		StepID:  &stepID,
	}
	if e.ActorID > 0 {
		actor := e.ActorID
		draft.SenderID = &actor
	}

	if _, err := h.service.Send(ctx, draft, ids); err != nil {
		h.logger.Error("failed to notify step update", "guide_id", e.GuideID, "step_id", e.StepID, "error", err)
		return err
	}
	h.logger.Info("step update notified", "guide_id", e.GuideID, "step_id", e.StepID, "recipients", len(ids))
	return nil
}

// HandleGuideArchived tells the guide's creator, unless they archived it.
func (h *EventHandler) HandleGuideArchived(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.GuideArchivedEvent)
	if !ok {
		return fmt.Errorf("invalid event type for guide archived handler: %T", event)
	}
	if e.CreatorID <= 0 || e.CreatorID == e.ActorID {
		return nil
	}

	guideID := e.GuideID
	draft := Draft{
		Title:   "Production guide archived",
		Message: fmt.Sprintf("Production guide #%d was archived", e.GuideID),
		Link:    guideLink(e.GuideID),
		GuideID: &guideID,
	}
	if e.ActorID > 0 {
		actor := e.ActorID
		draft.SenderID = &actor
	}
	_, err := h.service.Send(ctx, draft, []int64{e.CreatorID})
	return err
}

// HandleStockLow broadcasts the shortage to every connected client without
// storing a notification.
func (h *EventHandler) HandleStockLow(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.StockLowEvent)
	if !ok {
		return fmt.Errorf("invalid event type for stock low handler: %T", event)
	}
	if h.broadcaster == nil {
		return nil
	}
	h.logger.Warn("stock below minimum", "item_id", e.ItemID, "available", e.Available, "min_quantity", e.MinQuantity)
	return h.broadcaster.Broadcast(Message{Event: EventStockLow, Data: e})
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeStepUpdated, h.HandleStepUpdated)
	eventBus.Subscribe(events.EventTypeGuideArchived, h.HandleGuideArchived)
	eventBus.Subscribe(events.EventTypeStockLow, h.HandleStockLow)
}

func guideLink(guideID int64) string {
	return "/production/guides/" + strconv.FormatInt(guideID, 10)
}

func without(ids []int64, drop int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
