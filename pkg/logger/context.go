package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// scope is what one request has told the logger about itself so far.
type scope struct {
	logger    *slog.Logger
	requestID string
	userID    int64
}

func scopeOf(ctx context.Context) scope {
	if ctx != nil {
		if s, ok := ctx.Value(ctxKey{}).(scope); ok {
			return s
		}
	}
	return scope{logger: LoggerWrapper()}
}

// WithRequestID tags every record logged through From(ctx) with request_id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	s := scopeOf(ctx)
	s.requestID = requestID
	s.logger = s.logger.With("request_id", requestID)
	return context.WithValue(ctx, ctxKey{}, s)
}

// WithUserID tags records with the authenticated user.
func WithUserID(ctx context.Context, userID int64) context.Context {
	s := scopeOf(ctx)
	s.userID = userID
	s.logger = s.logger.With("user_id", userID)
	return context.WithValue(ctx, ctxKey{}, s)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	return scopeOf(ctx).requestID
}

// From returns the request-scoped logger, or the process logger outside a
// request.
func From(ctx context.Context) *slog.Logger {
	return scopeOf(ctx).logger
}
