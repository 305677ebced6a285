// Package apiclient is a small Go client for the production management API.
// It keeps the session in a caller supplied TokenStore and refreshes the
// access token transparently when the server answers 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	apiPrefix          = "/api/v1"
	refreshCookie      = "refresh_token"
	MaxRefreshAttempts = 3
)

// ErrSessionExpired means the refresh token was rejected or refreshing failed
// MaxRefreshAttempts times in a row. The store has been cleared.
var ErrSessionExpired = errors.New("apiclient: session expired")

// ErrNotLoggedIn is returned for authenticated calls made with an empty store.
var ErrNotLoggedIn = errors.New("apiclient: not logged in")

type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenStore holds the current session. Implementations must be safe for
// concurrent use.
type TokenStore interface {
	Load() (Tokens, bool)
	Save(Tokens)
	Clear()
}

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens Tokens
	set    bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Tokens, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, s.set
}

func (s *MemoryStore) Save(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens, s.set = t, true
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens, s.set = Tokens{}, false
}

// APIError is the decoded error body of a non-2xx response.
type APIError struct {
	StatusCode int    `json:"code"`
	Type       string `json:"type"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type RoleRef struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Profile is the body of /auth/me.
type Profile struct {
	ID          int64          `json:"id"`
	Login       string         `json:"login"`
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	IsActive    bool           `json:"is_active"`
	Roles       []RoleRef      `json:"roles"`
	IsSuperuser bool           `json:"is_superuser"`
	Permissions map[string]int `json:"permissions"`
}

type session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *Profile  `json:"user,omitempty"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore
	logger  *slog.Logger

	refresh  singleflight.Group
	mu       sync.Mutex
	failures int
}

func New(baseURL string, store TokenStore, opts ...Option) *Client {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates with a login name or email and stores the session.
func (c *Client) Login(ctx context.Context, login, password string) (*Profile, error) {
	body := map[string]string{"password": password}
	if strings.Contains(login, "@") {
		body["email"] = login
	} else {
		body["login"] = login
	}

	resp, err := c.send(ctx, http.MethodPost, "/auth/login", body, "")
	if err != nil {
		return nil, err
	}
	s, tokens, err := readSession(resp)
	if err != nil {
		return nil, err
	}
	c.store.Save(tokens)
	c.resetFailures()
	return s.User, nil
}

// Logout revokes the refresh token on the server. The local store is cleared
// even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	tokens, ok := c.store.Load()
	defer c.store.Clear()
	if !ok || tokens.RefreshToken == "" {
		return nil
	}

	resp, err := c.send(ctx, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": tokens.RefreshToken}, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Do sends an authenticated JSON request to path (relative to /api/v1) and
// decodes the response into out when it is not nil. A 401 triggers one
// refresh and one retry.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	tokens, ok := c.store.Load()
	if !ok || tokens.AccessToken == "" {
		return ErrNotLoggedIn
	}

	resp, err := c.send(ctx, method, path, in, tokens.AccessToken)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		fresh, err := c.refreshAfter(ctx, tokens.AccessToken)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, in, fresh.AccessToken)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// refreshAfter returns tokens newer than stale. Concurrent callers share one
// refresh request.
func (c *Client) refreshAfter(ctx context.Context, stale string) (Tokens, error) {
	if current, ok := c.store.Load(); ok && current.AccessToken != "" && current.AccessToken != stale {
		return current, nil
	}

	v, err, _ := c.refresh.Do("refresh", func() (interface{}, error) {
		current, ok := c.store.Load()
		if !ok || current.RefreshToken == "" {
			c.store.Clear()
			return Tokens{}, ErrSessionExpired
		}
		if current.AccessToken != stale {
			return current, nil
		}

		tokens, err := c.postRefresh(ctx, current.RefreshToken)
		if err != nil {
			var apiErr *APIError
			rejected := errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
			if rejected || c.recordFailure() >= MaxRefreshAttempts {
				c.logger.Warn("session expired", "error", err)
				c.store.Clear()
				c.resetFailures()
				return Tokens{}, ErrSessionExpired
			}
			return Tokens{}, err
		}

		c.resetFailures()
		c.store.Save(tokens)
		return tokens, nil
	})
	if err != nil {
		return Tokens{}, err
	}
	return v.(Tokens), nil
}

func (c *Client) postRefresh(ctx context.Context, refreshToken string) (Tokens, error) {
	resp, err := c.send(ctx, http.MethodPost, "/auth/refresh-token", map[string]string{"refresh_token": refreshToken}, "")
	if err != nil {
		return Tokens{}, err
	}
	_, tokens, err := readSession(resp)
	if err != nil {
		return Tokens{}, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

func (c *Client) send(ctx context.Context, method, path string, in any, accessToken string) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) recordFailure() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	return c.failures
}

func (c *Client) resetFailures() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}

func readSession(resp *http.Response) (*session, Tokens, error) {
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, Tokens{}, decodeError(resp)
	}

	var s session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, Tokens{}, fmt.Errorf("decode session: %w", err)
	}
	tokens := Tokens{AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt}
	for _, ck := range resp.Cookies() {
		if ck.Name == refreshCookie && ck.Value != "" {
			tokens.RefreshToken = ck.Value
		}
	}
	return &s, tokens, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(raw) == 0 || json.Unmarshal(raw, apiErr) != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	apiErr.StatusCode = resp.StatusCode
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
