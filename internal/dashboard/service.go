package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/production-management/internal"
)

const recentWindow = 24 * time.Hour

type RepositoryAPI interface {
	Load(ctx context.Context, userID int64, since, now time.Time) (*Stats, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Stats(ctx context.Context, userID int64) (*Stats, error) {
	now := s.now().UTC()
	stats, err := s.repo.Load(ctx, userID, now.Add(-recentWindow), now)
	if err != nil {
		s.logger.Error("failed to load dashboard stats", "user_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to load dashboard stats", err)
	}
	stats.GeneratedAt = now
	return stats, nil
}
