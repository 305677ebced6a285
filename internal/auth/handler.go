package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/frahmantamala/production-management/pkg/logger"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateAccessToken(tokenString string) (*Claims, error)
}

// PrincipalResolver turns an authenticated user id into its effective
// permissions. It returns nil for inactive or deleted users.
type PrincipalResolver interface {
	Resolve(ctx context.Context, userID int64) (*permission.Principal, error)
}

type CookieConfig struct {
	Secure bool
	Domain string
	Path   string
}

type Handler struct {
	*transport.BaseHandler
	Service    ServiceAPI
	Profiles   ProfileProvider
	Principals PrincipalResolver
	Cookie     CookieConfig
}

func NewHandler(svc ServiceAPI, profiles ProfileProvider, principals PrincipalResolver, cookie CookieConfig) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Profiles:    profiles,
		Principals:  principals,
		Cookie:      cookie,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	session, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiresAt)
	h.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshTokenFrom(w, r)
	if !ok {
		return
	}
	session, err := h.Service.Refresh(r.Context(), token)
	if err != nil {
		h.clearRefreshCookie(w)
		h.HandleServiceError(w, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiresAt)
	h.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshTokenFrom(w, r)
	if !ok {
		return
	}
	if err := h.Service.Logout(r.Context(), token); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}
	me, err := h.Profiles.Me(r.Context(), p.UserID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, me)
}

// AuthMiddleware validates the bearer token and stores the caller's principal
// in the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleServiceError(w, internal.NewUnauthorizedError("Missing authorization token", internal.ErrCodeInvalidToken))
			return
		}

		claims, err := h.Service.ValidateAccessToken(token)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}

		principal, err := h.Principals.Resolve(r.Context(), claims.UserID)
		if err != nil {
			h.Logger.Error("auth middleware: failed to resolve permissions", "user_id", claims.UserID, "error", err)
			h.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if principal == nil {
			h.HandleServiceError(w, internal.ErrUserInactive)
			return
		}

		ctx := permission.WithPrincipal(r.Context(), principal)
		ctx = internal.ContextWithUserID(ctx, principal.UserID)
		ctx = logger.WithUserID(ctx, principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// refreshTokenFrom prefers the cookie and falls back to a JSON body.
func (h *Handler) refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	if r.Body == nil || r.ContentLength == 0 {
		return "", true
	}
	var dto RefreshTokenDTO
	if !h.DecodeJSON(w, r, &dto) {
		return "", false
	}
	return dto.RefreshToken, true
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     h.Cookie.Path,
		Domain:   h.Cookie.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     h.Cookie.Path,
		Domain:   h.Cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
