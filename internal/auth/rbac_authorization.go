package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/transport"
)

// RBACAuthorization gates routes on the principal stored by AuthMiddleware.
type RBACAuthorization struct {
	*transport.BaseHandler
}

func NewRBACAuthorization(logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{BaseHandler: transport.NewBaseHandler(logger)}
}

// Require passes the request on when the caller holds module.action at level
// or higher.
func (ra *RBACAuthorization) Require(module, action string, level permission.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := ra.Principal(w, r)
			if !ok {
				return
			}
			if !permission.HasPermission(p, module, action, level) {
				ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", p.UserID,
					"required_permission", permission.Key(module, action),
					"required_level", level.String(),
					"held_level", p.Level(module, action).String())
				ra.HandleServiceError(w, internal.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny passes when at least one of keys is held at level.
func (ra *RBACAuthorization) RequireAny(level permission.Level, keys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := ra.Principal(w, r)
			if !ok {
				return
			}
			for _, key := range keys {
				module, action, valid := permission.SplitKey(key)
				if valid && permission.HasPermission(p, module, action, level) {
					next.ServeHTTP(w, r)
					return
				}
			}
			ra.Logger.WarnContext(r.Context(), "access denied: none of the required permissions held",
				"user_id", p.UserID, "required_permissions", keys)
			ra.HandleServiceError(w, internal.ErrForbidden)
		})
	}
}
