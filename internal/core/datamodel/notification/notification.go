package notification

import "time"

type Notification struct {
	ID          int64      `gorm:"primaryKey"`
	RecipientID int64      `gorm:"column:recipient_id;not null;index"`
	SenderID    *int64     `gorm:"column:sender_id"`
	Title       string     `gorm:"column:title;not null"`
	Message     string     `gorm:"column:message;not null"`
	Link        string     `gorm:"column:link"`
	GuideID     *int64     `gorm:"column:guide_id"`
	StepID      *int64     `gorm:"column:step_id"`
	SendAt      time.Time  `gorm:"column:send_at;not null;index"`
	DeliveredAt *time.Time `gorm:"column:delivered_at;index"`
	ReadAt      *time.Time `gorm:"column:read_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }
