package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	mothr "github.com/rs21io/mothr-go"
	"github.com/rs21io/mothr-go/session"
	"github.com/rs21io/mothr-go/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAPI is a GraphQL endpoint that answers login and refresh mutations
// with canned payloads and counts the calls it receives.
type stubAPI struct {
	calls        atomic.Int64
	loginBody    string
	refreshBody  string
	lastAuth     string
	lastUsername string
}

func (s *stubAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.lastAuth = r.Header.Get("Authorization")

		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(req.Query, "login"):
			s.lastUsername, _ = req.Variables["username"].(string)
			io.WriteString(w, s.loginBody)
		case strings.Contains(req.Query, "refresh"):
			io.WriteString(w, s.refreshBody)
		default:
			io.WriteString(w, `{"data":{}}`)
		}
	}
}

func newStub(t *testing.T, api *stubAPI) *transport.Conn {
	t.Helper()
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)
	return transport.NewConn(ts.URL, transport.WithLogger(testLogger()))
}

// ── Login ─────────────────────────────────────────────

func TestLogin_StoresTokensAndHeader(t *testing.T) {
	api := &stubAPI{loginBody: `{"data":{"login":{"token":"tok-1","refresh":"ref-1"}}}`}
	conn := newStub(t, api)

	sess, err := session.New(context.Background(), conn, mothr.Config{}, session.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	access, refresh, err := sess.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if access != "tok-1" || refresh != "ref-1" {
		t.Errorf("tokens = %q/%q", access, refresh)
	}
	if got := sess.AuthHeader(); got != "Bearer tok-1" {
		t.Errorf("header = %q, want %q", got, "Bearer tok-1")
	}
	if api.lastUsername != "alice" {
		t.Errorf("username variable = %q", api.lastUsername)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	api := &stubAPI{}
	conn := newStub(t, api)
	sess, err := session.New(context.Background(), conn, mothr.Config{}, session.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _, err = sess.Login(context.Background(), "", "")
	if !errors.Is(err, mothr.ErrMissingCredentials) {
		t.Fatalf("error = %v, want ErrMissingCredentials", err)
	}
	if api.calls.Load() != 0 {
		t.Errorf("expected no remote call, got %d", api.calls.Load())
	}
}

func TestLogin_FallsBackToConfigCredentials(t *testing.T) {
	api := &stubAPI{loginBody: `{"data":{"login":{"token":"tok-1","refresh":"ref-1"}}}`}
	conn := newStub(t, api)

	cfg := mothr.Config{Username: "cfg-user", Password: "cfg-pass"}
	// Config carries credentials, so construction logs in eagerly.
	sess, err := session.New(context.Background(), conn, cfg, session.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if api.calls.Load() != 1 {
		t.Fatalf("expected eager login, got %d calls", api.calls.Load())
	}
	if api.lastUsername != "cfg-user" {
		t.Errorf("username variable = %q", api.lastUsername)
	}
	if sess.AuthHeader() != "Bearer tok-1" {
		t.Errorf("header = %q", sess.AuthHeader())
	}
}

func TestLogin_Rejected(t *testing.T) {
	api := &stubAPI{loginBody: `{"data":{"login":null}}`}
	conn := newStub(t, api)
	sess, err := session.New(context.Background(), conn, mothr.Config{}, session.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _, err = sess.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, mothr.ErrLoginFailed) {
		t.Fatalf("error = %v, want ErrLoginFailed", err)
	}
}

// ── Refresh ───────────────────────────────────────────

func TestRefreshAccessToken(t *testing.T) {
	api := &stubAPI{
		loginBody:   `{"data":{"login":{"token":"tok-1","refresh":"ref-1"}}}`,
		refreshBody: `{"data":{"refresh":{"token":"tok-2"}}}`,
	}
	conn := newStub(t, api)
	sess, err := session.New(context.Background(), conn, mothr.Config{}, session.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := sess.Login(context.Background(), "alice", "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	token, err := sess.RefreshAccessToken(context.Background())
	if err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	if token != "tok-2" {
		t.Errorf("token = %q, want %q", token, "tok-2")
	}
	if sess.AuthHeader() != "Bearer tok-2" {
		t.Errorf("header = %q, want %q", sess.AuthHeader(), "Bearer tok-2")
	}
	// The refresh token itself must survive the exchange.
	if sess.RefreshToken() != "ref-1" {
		t.Errorf("refresh token = %q, want %q", sess.RefreshToken(), "ref-1")
	}
}

func TestRefreshAccessToken_Rejected(t *testing.T) {
	api := &stubAPI{refreshBody: `{"data":{"refresh":null}}`}
	conn := newStub(t, api)
	sess, err := session.New(context.Background(), conn, mothr.Config{}, session.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := sess.RefreshAccessToken(context.Background()); !errors.Is(err, mothr.ErrTokenRefresh) {
		t.Fatalf("error = %v, want ErrTokenRefresh", err)
	}
}

// ── Construction policy ───────────────────────────────

func TestNew_PreIssuedTokenSkipsLogin(t *testing.T) {
	api := &stubAPI{}
	conn := newStub(t, api)

	cfg := mothr.Config{Token: "pre-issued", Username: "alice", Password: "hunter2"}
	sess, err := session.New(context.Background(), conn, cfg, session.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sess.AuthHeader() != "Bearer pre-issued" {
		t.Errorf("header = %q", sess.AuthHeader())
	}
	if api.calls.Load() != 0 {
		t.Errorf("token construction must not log in, got %d calls", api.calls.Load())
	}
}

func TestNew_NoCredentialsStaysUnauthenticated(t *testing.T) {
	api := &stubAPI{}
	conn := newStub(t, api)

	sess, err := session.New(context.Background(), conn, mothr.Config{}, session.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sess.AuthHeader() != "" {
		t.Errorf("header = %q, want empty", sess.AuthHeader())
	}
	if api.calls.Load() != 0 {
		t.Errorf("expected no remote call, got %d", api.calls.Load())
	}
}
