package audit

import "time"

type Log struct {
	ID         int64     `gorm:"primaryKey"`
	UserID     *int64    `gorm:"column:user_id;index"`
	Action     string    `gorm:"column:action;not null;index"`
	EntityType string    `gorm:"column:entity_type;not null;index"`
	EntityID   string    `gorm:"column:entity_id;index"`
	Details    string    `gorm:"column:details"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (Log) TableName() string { return "audit_logs" }
