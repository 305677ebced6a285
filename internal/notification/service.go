package notification

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/core/database"
	notificationDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/notification"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/pkg/pagination"
)

const dueBatchSize = 100

type RepositoryAPI interface {
	CreateMany(ctx context.Context, rows []*notificationDatamodel.Notification) error
	ListForRecipient(ctx context.Context, userID int64, unreadOnly bool, now time.Time, p pagination.Params) ([]*notificationDatamodel.Notification, int64, error)
	CountUnread(ctx context.Context, userID int64, now time.Time) (int64, error)
	// MarkRead reports false when no unread row id belongs to userID.
	MarkRead(ctx context.Context, id, userID int64, at time.Time) (bool, error)
	Exists(ctx context.Context, id, userID int64) (bool, error)
	MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error)
	DueUndelivered(ctx context.Context, now time.Time, limit int) ([]*notificationDatamodel.Notification, error)
	MarkDelivered(ctx context.Context, ids []int64, at time.Time) error
}

// RecipientResolver expands a role into its active holders.
type RecipientResolver interface {
	IDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// Deliverer hands a notification to the push transports. Enqueue must not
// block.
type Deliverer interface {
	Enqueue(n Notification) error
}

type Service struct {
	repo       RepositoryAPI
	tx         database.TxManager
	recipients RecipientResolver
	deliverer  Deliverer
	audit      audit.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo RepositoryAPI, tx database.TxManager, recipients RecipientResolver, deliverer Deliverer, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		tx:         tx,
		recipients: recipients,
		deliverer:  deliverer,
		audit:      recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source used to decide what is due.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Schedule fans a message out to the listed users and role holders. Rows due
// now are pushed immediately; the rest wait for DeliverDue.
func (s *Service) Schedule(ctx context.Context, actor *permission.Principal, dto ScheduleDTO) (*ScheduleResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	ids := append([]int64{}, dto.UserIDs...)
	for _, roleID := range dto.RoleIDs {
		holders, err := s.recipients.IDsWithRole(ctx, roleID)
		if err != nil {
			return nil, internal.NewInternalError("failed to resolve role recipients", err)
		}
		ids = append(ids, holders...)
	}

	draft := Draft{
		Title:   strings.TrimSpace(dto.Title),
		Message: dto.Message,
		Link:    dto.Link,
		SendAt:  dto.SendAt,
	}
	if actor != nil {
		sender := actor.UserID
		draft.SenderID = &sender
	}

	rows, err := s.Send(ctx, draft, ids)
	if err != nil {
		return nil, err
	}
	result := &ScheduleResult{Recipients: len(rows)}
	if len(rows) > 0 {
		result.SendAt = rows[0].SendAt
		result.Delivered = !rows[0].SendAt.After(s.now())
	}
	return result, nil
}

// Send stores one row per distinct recipient and pushes the ones already due.
// Push failures are logged and left for the poller.
func (s *Service) Send(ctx context.Context, draft Draft, recipientIDs []int64) ([]Notification, error) {
	ids := uniqueIDs(recipientIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	now := s.now().UTC()
	sendAt := now
	if draft.SendAt != nil && draft.SendAt.After(now) {
		sendAt = draft.SendAt.UTC()
	}

	rows := make([]*notificationDatamodel.Notification, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, &notificationDatamodel.Notification{
			RecipientID: id,
			SenderID:    draft.SenderID,
			Title:       draft.Title,
			Message:     draft.Message,
			Link:        draft.Link,
			GuideID:     draft.GuideID,
			StepID:      draft.StepID,
			SendAt:      sendAt,
		})
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateMany(txCtx, rows); err != nil {
			return internal.NewInternalError("failed to store notifications", err)
		}
		var sender int64
		if draft.SenderID != nil {
			sender = *draft.SenderID
		}
		if s.audit == nil || sender == 0 {
			return nil
		}
		if err := s.audit.Record(txCtx, sender, audit.ActionCreate, audit.EntityNotification, rows[0].ID, map[string]interface{}{
			"title": draft.Title, "recipients": len(rows), "send_at": sendAt,
		}); err != nil {
			return internal.NewInternalError("failed to write audit log", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("notifications stored", "recipients", len(rows), "send_at", sendAt)
	if !sendAt.After(now) {
		s.deliver(ctx, rows)
	}

	out := make([]Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

// DeliverDue pushes every stored notification whose send time has passed and
// that was never handed to a transport. It returns how many were pushed.
func (s *Service) DeliverDue(ctx context.Context) (int, error) {
	rows, err := s.repo.DueUndelivered(ctx, s.now().UTC(), dueBatchSize)
	if err != nil {
		return 0, internal.NewInternalError("failed to load due notifications", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return s.deliver(ctx, rows), nil
}

func (s *Service) deliver(ctx context.Context, rows []*notificationDatamodel.Notification) int {
	if s.deliverer == nil {
		return 0
	}
	at := s.now().UTC()
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		row.DeliveredAt = &at
		if err := s.deliverer.Enqueue(FromDataModel(row)); err != nil {
			row.DeliveredAt = nil
			s.logger.Warn("notification push deferred", "notification_id", row.ID, "error", err)
			continue
		}
		ids = append(ids, row.ID)
	}
	if len(ids) == 0 {
		return 0
	}
	if err := s.repo.MarkDelivered(ctx, ids, at); err != nil {
		s.logger.Error("failed to mark notifications delivered", "count", len(ids), "error", err)
	}
	return len(ids)
}

func (s *Service) ListMine(ctx context.Context, userID int64, unreadOnly bool, p pagination.Params) (pagination.Page[Notification], error) {
	rows, total, err := s.repo.ListForRecipient(ctx, userID, unreadOnly, s.now().UTC(), p)
	if err != nil {
		s.logger.Error("failed to list notifications", "user_id", userID, "error", err)
		return pagination.Page[Notification]{}, internal.NewInternalError("failed to list notifications", err)
	}
	out := make([]Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return pagination.NewPage(out, total, p), nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.CountUnread(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, internal.NewInternalError("failed to count notifications", err)
	}
	return n, nil
}

// MarkRead is idempotent for the recipient; other users get not found.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	updated, err := s.repo.MarkRead(ctx, id, userID, s.now().UTC())
	if err != nil {
		return internal.NewInternalError("failed to mark notification read", err)
	}
	if updated {
		return nil
	}
	exists, err := s.repo.Exists(ctx, id, userID)
	if err != nil {
		return internal.NewInternalError("failed to load notification", err)
	}
	if !exists {
		return internal.ErrNotificationNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, internal.NewInternalError("failed to mark notifications read", err)
	}
	return n, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
