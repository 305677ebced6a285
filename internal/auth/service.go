package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/core/database"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"github.com/frahmantamala/production-management/internal/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type RepositoryAPI interface {
	FindByLogin(ctx context.Context, login string) (*userDatamodel.User, error)
	GetUser(ctx context.Context, id int64) (*userDatamodel.User, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	SaveRefreshToken(ctx context.Context, t *userDatamodel.RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*userDatamodel.RefreshToken, error)
	// RevokeRefreshToken reports false when the token was already revoked.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeUserTokens(ctx context.Context, userID int64, at time.Time) error
}

// ProfileProvider builds the /auth/me view of a user.
type ProfileProvider interface {
	Me(ctx context.Context, id int64) (*user.Me, error)
}

// Service is the main auth service with dependencies
type Service struct {
	repo     RepositoryAPI
	tokens   TokenGenerator
	tx       database.TxManager
	profiles ProfileProvider
	audit    audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo RepositoryAPI, tokens TokenGenerator, tx database.TxManager, profiles ProfileProvider, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		tx:       tx,
		profiles: profiles,
		audit:    recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
		Issuer:             "production-management",
	}
}

// Authenticate validates credentials and opens a new session.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (*Session, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.repo.FindByLogin(ctx, dto.Identifier())
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if u == nil {
		s.logger.Info("login rejected", "login", dto.Identifier(), "reason", "unknown user")
		return nil, internal.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Info("login rejected", "user_id", u.ID, "reason", "bad password")
		return nil, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}

	var session *Session
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		session, err = s.issue(txCtx, u)
		if err != nil {
			return err
		}
		if err := s.repo.TouchLastLogin(txCtx, u.ID, s.now()); err != nil {
			return internal.NewInternalError("failed to record login", err)
		}
		if s.audit != nil {
			return s.audit.Record(txCtx, u.ID, audit.ActionLogin, audit.EntitySession, u.ID, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", u.ID)
	return s.withProfile(ctx, session, u.ID)
}

// Refresh rotates a refresh token: the presented one is revoked and a new pair
// is issued. Presenting an already revoked token revokes every session of the
// user.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, internal.ErrInvalidToken
	}
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	var (
		session *Session
		reused  bool
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		stored, err := s.repo.GetRefreshToken(txCtx, claims.ID)
		if err != nil {
			return internal.NewInternalError("failed to load refresh token", err)
		}
		if stored == nil || stored.UserID != claims.UserID {
			return internal.ErrInvalidToken
		}
		now := s.now()
		if stored.RevokedAt != nil {
			reused = true
			return internal.ErrTokenRevoked
		}
		if !stored.ExpiresAt.After(now) {
			return internal.ErrTokenExpired
		}

		ok, err := s.repo.RevokeRefreshToken(txCtx, stored.ID, now)
		if err != nil {
			return internal.NewInternalError("failed to revoke refresh token", err)
		}
		if !ok {
			return internal.ErrTokenRevoked
		}

		u, err := s.repo.GetUser(txCtx, claims.UserID)
		if err != nil {
			return internal.NewInternalError("failed to load user", err)
		}
		if u == nil {
			return internal.ErrInvalidToken
		}
		if !u.IsActive {
			return internal.ErrUserInactive
		}
		session, err = s.issue(txCtx, u)
		return err
	})
	if reused {
		s.logger.Warn("revoked refresh token presented, revoking all sessions", "user_id", claims.UserID)
		if rerr := s.repo.RevokeUserTokens(ctx, claims.UserID, s.now()); rerr != nil {
			s.logger.Error("failed to revoke user sessions", "user_id", claims.UserID, "error", rerr)
		}
	}
	if err != nil {
		return nil, err
	}
	return s.withProfile(ctx, session, claims.UserID)
}

// Logout revokes the presented refresh token. Unknown or invalid tokens are
// ignored so logout always succeeds from the client's point of view.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.logger.Info("logout with unusable refresh token", "error", err)
		return nil
	}
	if _, err := s.repo.RevokeRefreshToken(ctx, claims.ID, s.now()); err != nil {
		return internal.NewInternalError("failed to revoke refresh token", err)
	}
	s.logger.Info("user logged out", "user_id", claims.UserID)
	return nil
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateAccessToken(tokenString)
}

func (s *Service) issue(ctx context.Context, u *userDatamodel.User) (*Session, error) {
	access, expiresAt, err := s.tokens.GenerateAccessToken(u.ID, u.Login)
	if err != nil {
		return nil, internal.NewInternalError("failed to sign access token", err)
	}
	refresh, claims, err := s.tokens.GenerateRefreshToken(u.ID, u.Login)
	if err != nil {
		return nil, internal.NewInternalError("failed to sign refresh token", err)
	}
	row := &userDatamodel.RefreshToken{
		ID:        claims.ID,
		UserID:    u.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.repo.SaveRefreshToken(ctx, row); err != nil {
		return nil, internal.NewInternalError("failed to store refresh token", err)
	}
	return &Session{
		AccessToken:      access,
		TokenType:        "Bearer",
		ExpiresAt:        expiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: row.ExpiresAt,
	}, nil
}

func (s *Service) withProfile(ctx context.Context, session *Session, userID int64) (*Session, error) {
	if s.profiles == nil {
		return session, nil
	}
	me, err := s.profiles.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	session.User = me
	return session, nil
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(userID int64, login string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.AccessTokenTTL)
	claims := j.claims(userID, login, TokenTypeAccess, now, expiresAt)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.AccessTokenSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// GenerateRefreshToken creates a new refresh token with a fresh jti.
func (j *JWTTokenGenerator) GenerateRefreshToken(userID int64, login string) (string, *Claims, error) {
	now := time.Now()
	claims := j.claims(userID, login, TokenTypeRefresh, now, now.Add(j.RefreshTokenTTL))
	claims.ID = uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.RefreshTokenSecret)
	if err != nil {
		return "", nil, err
	}
	return tokenString, claims, nil
}

func (j *JWTTokenGenerator) ValidateAccessToken(tokenString string) (*Claims, error) {
	return j.validate(tokenString, j.AccessTokenSecret, TokenTypeAccess)
}

func (j *JWTTokenGenerator) ValidateRefreshToken(tokenString string) (*Claims, error) {
	claims, err := j.validate(tokenString, j.RefreshTokenSecret, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

func (j *JWTTokenGenerator) claims(userID int64, login, typ string, now, expiresAt time.Time) *Claims {
	return &Claims{
		UserID:    userID,
		Login:     login,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
}

func (j *JWTTokenGenerator) validate(tokenString string, secret []byte, typ string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != typ || claims.UserID <= 0 {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}
