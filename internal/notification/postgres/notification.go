package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/production-management/internal/core/database"
	notificationDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/notification"
	"github.com/frahmantamala/production-management/internal/notification"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notification.RepositoryAPI {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateMany(ctx context.Context, rows []*notificationDatamodel.Notification) error {
	return database.GetDB(ctx, r.db).Create(rows).Error
}

// ListForRecipient only returns rows whose send time is not after now.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, userID int64, unreadOnly bool, now time.Time, p pagination.Params) ([]*notificationDatamodel.Notification, int64, error) {
	q := database.GetDB(ctx, r.db).Model(&notificationDatamodel.Notification{}).
		Where("recipient_id = ? AND send_at <= ?", userID, now)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*notificationDatamodel.Notification
	err := q.Order("send_at DESC, id DESC").Offset(p.Offset).Limit(p.Limit).Find(&rows).Error
	return rows, total, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64, now time.Time) (int64, error) {
	var n int64
	err := database.GetDB(ctx, r.db).Model(&notificationDatamodel.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL AND send_at <= ?", userID, now).
		Count(&n).Error
	return n, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64, at time.Time) (bool, error) {
	res := database.GetDB(ctx, r.db).Model(&notificationDatamodel.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", at)
	return res.RowsAffected == 1, res.Error
}

func (r *NotificationRepository) Exists(ctx context.Context, id, userID int64) (bool, error) {
	var n int64
	err := database.GetDB(ctx, r.db).Model(&notificationDatamodel.Notification{}).
		Where("id = ? AND recipient_id = ?", id, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res := database.GetDB(ctx, r.db).Model(&notificationDatamodel.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL AND send_at <= ?", userID, at).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *NotificationRepository) DueUndelivered(ctx context.Context, now time.Time, limit int) ([]*notificationDatamodel.Notification, error) {
	var rows []*notificationDatamodel.Notification
	err := database.GetDB(ctx, r.db).
		Where("delivered_at IS NULL AND send_at <= ?", now).
		Order("send_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *NotificationRepository) MarkDelivered(ctx context.Context, ids []int64, at time.Time) error {
	return database.GetDB(ctx, r.db).Model(&notificationDatamodel.Notification{}).
		Where("id IN ?", ids).
		Update("delivered_at", at).Error
}
