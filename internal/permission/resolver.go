package permission

import (
	"context"
	"log/slog"
)

// Loader reads a user's roles from storage. It returns (nil, nil) for a user
// that does not exist or is inactive.
type Loader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*Principal, error)
}

// LoaderFunc adapts a function to a Loader.
type LoaderFunc func(ctx context.Context, userID int64) (*Principal, error)

func (f LoaderFunc) LoadPrincipal(ctx context.Context, userID int64) (*Principal, error) {
	return f(ctx, userID)
}

// Resolver serves principals through a Cache, falling back to the Loader on a
// miss. Cache failures are logged and never fail the request.
type Resolver struct {
	loader Loader
	cache  Cache
	logger *slog.Logger
}

func NewResolver(loader Loader, cache Cache, logger *slog.Logger) *Resolver {
	return &Resolver{loader: loader, cache: cache, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, userID int64) (*Principal, error) {
	if r.cache != nil {
		p, ok, err := r.cache.Get(ctx, userID)
		if err != nil {
			r.logger.Warn("principal cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return p, nil
		}
	}

	p, err := r.loader.LoadPrincipal(ctx, userID)
	if err != nil || p == nil {
		return p, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, p); err != nil {
			r.logger.Warn("principal cache write failed", "user_id", userID, "error", err)
		}
	}
	return p, nil
}

// Forget drops one user's cached principal after their roles change.
func (r *Resolver) Forget(ctx context.Context, userID int64) {
	if r == nil || r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.logger.Warn("principal cache invalidation failed", "user_id", userID, "error", err)
	}
}

// ForgetAll drops every cached principal after a role definition changes.
func (r *Resolver) ForgetAll(ctx context.Context) {
	if r == nil || r.cache == nil {
		return
	}
	if err := r.cache.InvalidateAll(ctx); err != nil {
		r.logger.Warn("principal cache flush failed", "error", err)
	}
}
