package auth

import (
	"time"

	"github.com/frahmantamala/production-management/internal/user"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	RefreshCookieName = "refresh_token"
)

// TokenGenerator creates and validates signed tokens.
type TokenGenerator interface {
	GenerateAccessToken(userID int64, login string) (token string, expiresAt time.Time, err error)
	GenerateRefreshToken(userID int64, login string) (token string, claims *Claims, err error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

// Claims represents JWT token claims. Refresh tokens carry a unique ID (jti)
// that is persisted so they can be rotated and revoked.
type Claims struct {
	UserID    int64  `json:"user_id"`
	Login     string `json:"login"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	Issuer             string
}

// Session is what a successful login or refresh hands back. The refresh token
// travels in an HTTP-only cookie, never in the body.
type Session struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	User             *user.Me  `json:"user,omitempty"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}
