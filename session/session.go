// Package session manages an authenticated identity against MOTHR: token
// acquisition at login, the derived Authorization header, and refresh of
// an expired access token.
//
// A Session is intended to have a single owner. Sharing one across
// concurrently running job requests makes concurrent refresh calls race;
// callers that need sharing must synchronize externally.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mothr "github.com/rs21io/mothr-go"
	"github.com/rs21io/mothr-go/gql"
)

// Execer runs one GraphQL operation. *transport.Conn satisfies it.
type Execer interface {
	Do(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error)
}

// Session holds the current access/refresh token pair and the derived
// Authorization header. State changes only through Login and
// RefreshAccessToken.
type Session struct {
	exec   Execer
	cfg    mothr.Config
	logger *slog.Logger

	access     string
	refresh    string
	authHeader string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// New creates a session from the resolved config.
//
// If the config carries a pre-issued token it is used as-is and no login
// happens. Otherwise, if both username and password resolved, the session
// logs in eagerly. With neither, the session stays unauthenticated and
// calls go out without an Authorization header — the server may reject
// them, which is its concern, not this package's.
func New(ctx context.Context, exec Execer, cfg mothr.Config, opts ...Option) (*Session, error) {
	s := &Session{
		exec:   exec,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch {
	case cfg.Token != "":
		s.setAccess(cfg.Token)
	case cfg.Username != "" && cfg.Password != "":
		if _, _, err := s.Login(ctx, cfg.Username, cfg.Password); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Login retrieves a token pair from MOTHR. Empty arguments fall back to
// the credentials resolved at construction; if either is still missing the
// call fails with mothr.ErrMissingCredentials before touching the network.
func (s *Session) Login(ctx context.Context, username, password string) (access, refresh string, err error) {
	if username == "" {
		username = s.cfg.Username
	}
	if password == "" {
		password = s.cfg.Password
	}
	if username == "" || password == "" {
		return "", "", mothr.ErrMissingCredentials
	}

	op := gql.Login(username, password)
	data, err := s.exec.Do(ctx, op.Query, op.Variables)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", mothr.ErrLoginFailed, err)
	}

	var resp struct {
		Login *struct {
			Token   string `json:"token"`
			Refresh string `json:"refresh"`
		} `json:"login"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", "", fmt.Errorf("%w: decode response: %v", mothr.ErrLoginFailed, err)
	}
	if resp.Login == nil || resp.Login.Token == "" {
		return "", "", mothr.ErrLoginFailed
	}

	s.refresh = resp.Login.Refresh
	s.setAccess(resp.Login.Token)
	s.logger.Debug("session authenticated", slog.String("username", username))
	return resp.Login.Token, resp.Login.Refresh, nil
}

// RefreshAccessToken trades the stored refresh token for a new access
// token. The refresh token itself is left untouched, so the call is safe
// to repeat; tokens issued earlier are simply abandoned.
func (s *Session) RefreshAccessToken(ctx context.Context) (string, error) {
	op := gql.Refresh(s.refresh)
	data, err := s.exec.Do(ctx, op.Query, op.Variables)
	if err != nil {
		return "", fmt.Errorf("%w: %v", mothr.ErrTokenRefresh, err)
	}

	var resp struct {
		Refresh *struct {
			Token string `json:"token"`
		} `json:"refresh"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", mothr.ErrTokenRefresh, err)
	}
	if resp.Refresh == nil || resp.Refresh.Token == "" {
		return "", mothr.ErrTokenRefresh
	}

	s.setAccess(resp.Refresh.Token)
	s.logger.Debug("access token refreshed")
	return resp.Refresh.Token, nil
}

// AuthHeader returns the current Authorization header, or "" when the
// session is unauthenticated. It always reflects the most recently issued
// access token.
func (s *Session) AuthHeader() string { return s.authHeader }

// AccessToken returns the current access token.
func (s *Session) AccessToken() string { return s.access }

// RefreshToken returns the stored refresh token.
func (s *Session) RefreshToken() string { return s.refresh }

func (s *Session) setAccess(token string) {
	s.access = token
	s.authHeader = "Bearer " + token
}
