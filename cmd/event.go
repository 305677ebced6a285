package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/production-management/internal/core/events"
	"github.com/frahmantamala/production-management/internal/notification"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish events through the notification handlers for testing and debugging`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish an event",
	Long: `Publish an event on a local bus wired to the notification handlers.
Known types (production.step_updated, production.guide_archived, inventory.stock_low)
are decoded from --data; anything else is published as a generic event.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := publishEvent(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to publish event: %v\n", err)
			os.Exit(1)
		}
	},
}

var eventData string

func publishEvent(eventType string) error {
	ctx := context.Background()
	deps, err := initializeDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()
	logger := deps.Logger

	event, err := decodeEvent(eventType, []byte(eventData))
	if err != nil {
		return err
	}

	// no websocket clients here: rows are stored and only the webhook is called
	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{
		MaxWorkers:     1,
		WebhookURL:     deps.Config.Notification.WebhookURL,
		WebhookTimeout: deps.Config.Notification.WebhookTimeout,
	}, nil, logger)
	defer dispatcher.Shutdown()
	deps.NotificationService(dispatcher, nil)

	deps.Bus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		logger.Info("event received",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	logger.Info("publishing event", "event_type", eventType, "event_id", event.EventID())
	if err := deps.Bus.PublishSync(ctx, event); err != nil {
		return err
	}

	// let queued webhook posts go out before shutdown
	time.Sleep(100 * time.Millisecond)
	logger.Info("event published successfully")
	return nil
}

func decodeEvent(eventType string, data []byte) (events.Event, error) {
	base := events.BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
	if err := json.Unmarshal(data, &base.Data); err != nil {
		base.Data = map[string]interface{}{"message": string(data)}
	}

	switch eventType {
	case events.EventTypeStepUpdated:
		e := &events.StepUpdatedEvent{}
		if err := json.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		e.BaseEvent = base
		return e, nil
	case events.EventTypeGuideArchived:
		e := &events.GuideArchivedEvent{}
		if err := json.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		e.BaseEvent = base
		return e, nil
	case events.EventTypeStockLow:
		e := &events.StockLowEvent{}
		if err := json.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		e.BaseEvent = base
		return e, nil
	}
	return base, nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", `{"message":"test message","source":"cli-command"}`, "JSON event payload")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
