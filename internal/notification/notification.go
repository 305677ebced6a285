package notification

import (
	"strconv"
	"time"

	notificationDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/notification"
)

const (
	// EventOnlineUsers is broadcast to every socket when the set of connected
	// users changes.
	EventOnlineUsers = "chat:onlineUsers"
	EventStockLow    = "inventory:lowStock"
)

// UserEvent is the socket event name a recipient listens on.
func UserEvent(userID int64) string {
	return "notification:" + strconv.FormatInt(userID, 10)
}

type Notification struct {
	ID          int64      `json:"id"`
	RecipientID int64      `json:"recipient_id"`
	SenderID    *int64     `json:"sender_id,omitempty"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Link        string     `json:"link,omitempty"`
	GuideID     *int64     `json:"guide_id,omitempty"`
	StepID      *int64     `json:"step_id,omitempty"`
	SendAt      time.Time  `json:"send_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	Read        bool       `json:"read"`
	CreatedAt   time.Time  `json:"created_at"`
}

func FromDataModel(n *notificationDatamodel.Notification) Notification {
	return Notification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Title:       n.Title,
		Message:     n.Message,
		Link:        n.Link,
		GuideID:     n.GuideID,
		StepID:      n.StepID,
		SendAt:      n.SendAt,
		DeliveredAt: n.DeliveredAt,
		ReadAt:      n.ReadAt,
		Read:        n.ReadAt != nil,
		CreatedAt:   n.CreatedAt,
	}
}

// Message is one socket frame.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Draft is a notification before recipients are fanned out.
type Draft struct {
	SenderID *int64
	Title    string
	Message  string
	Link     string
	GuideID  *int64
	StepID   *int64
	SendAt   *time.Time
}
