package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	auditDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/audit"
	"github.com/frahmantamala/production-management/pkg/pagination"
)

type Filter struct {
	EntityType string
	EntityID   string
	UserID     *int64
}

type RepositoryAPI interface {
	Create(ctx context.Context, entry *auditDatamodel.Log) error
	List(ctx context.Context, filter Filter, p pagination.Params) ([]*auditDatamodel.Log, int64, error)
}

// Recorder is what other services depend on to write audit rows.
type Recorder interface {
	Record(ctx context.Context, userID int64, action, entityType string, entityID int64, details any) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record writes one audit row through the transaction carried by ctx, so it
// commits or rolls back together with the change it describes.
func (s *Service) Record(ctx context.Context, userID int64, action, entityType string, entityID int64, details any) error {
	entry := &auditDatamodel.Log{
		Action:     action,
		EntityType: entityType,
		EntityID:   strconv.FormatInt(entityID, 10),
	}
	if userID != 0 {
		uid := userID
		entry.UserID = &uid
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn("audit details not serializable", "action", action, "error", err)
		} else {
			entry.Details = string(raw)
		}
	}
	return s.repo.Create(ctx, entry)
}

func (s *Service) List(ctx context.Context, filter Filter, p pagination.Params) (pagination.Page[Entry], error) {
	logs, total, err := s.repo.List(ctx, filter, p)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		return pagination.Page[Entry]{}, err
	}
	entries := make([]Entry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, FromDataModel(l))
	}
	return pagination.NewPage(entries, total, p), nil
}
