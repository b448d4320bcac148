package mothr

import (
	"errors"
	"testing"
)

func TestResolveConfig_Defaults(t *testing.T) {
	t.Setenv(EnvEndpoint, "")
	t.Setenv(EnvAccessToken, "")
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	cfg := ResolveConfig()
	if cfg.Endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %q, want %q", cfg.Endpoint, DefaultEndpoint)
	}
	if cfg.Token != "" || cfg.Username != "" || cfg.Password != "" {
		t.Errorf("expected empty credentials, got %+v", cfg)
	}
}

func TestResolveConfig_Environment(t *testing.T) {
	t.Setenv(EnvEndpoint, "https://mothr.example.com/query")
	t.Setenv(EnvAccessToken, "env-token")
	t.Setenv(EnvUsername, "env-user")
	t.Setenv(EnvPassword, "env-pass")

	cfg := ResolveConfig()
	if cfg.Endpoint != "https://mothr.example.com/query" {
		t.Errorf("endpoint = %q", cfg.Endpoint)
	}
	if cfg.Token != "env-token" {
		t.Errorf("token = %q", cfg.Token)
	}
	if cfg.Username != "env-user" || cfg.Password != "env-pass" {
		t.Errorf("credentials = %q/%q", cfg.Username, cfg.Password)
	}
}

func TestResolveConfig_ExplicitWinsOverEnvironment(t *testing.T) {
	t.Setenv(EnvEndpoint, "http://env:8080/query")
	t.Setenv(EnvAccessToken, "env-token")

	cfg := ResolveConfig(
		WithEndpoint("http://explicit:8080/query"),
		WithToken("explicit-token"),
		WithCredentials("user", "pass"),
	)
	if cfg.Endpoint != "http://explicit:8080/query" {
		t.Errorf("endpoint = %q, want explicit value", cfg.Endpoint)
	}
	if cfg.Token != "explicit-token" {
		t.Errorf("token = %q, want explicit value", cfg.Token)
	}
	if cfg.Username != "user" || cfg.Password != "pass" {
		t.Errorf("credentials = %q/%q", cfg.Username, cfg.Password)
	}
}

func TestSocketEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"http://localhost:8080/query", "ws://localhost:8080/query"},
		{"https://mothr.example.com/query", "wss://mothr.example.com/query"},
	}
	for _, tt := range tests {
		cfg := Config{Endpoint: tt.endpoint}
		got, err := cfg.SocketEndpoint()
		if err != nil {
			t.Fatalf("SocketEndpoint(%q): %v", tt.endpoint, err)
		}
		if got != tt.want {
			t.Errorf("SocketEndpoint(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestSocketEndpoint_UnknownScheme(t *testing.T) {
	cfg := Config{Endpoint: "ftp://example.com/query"}
	if _, err := cfg.SocketEndpoint(); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusUnsubmitted: false,
		StatusSubmitted:   false,
		StatusRunning:     false,
		StatusComplete:    true,
		StatusFailed:      true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestErrorKindsAreDistinct(t *testing.T) {
	kinds := []error{
		ErrMissingCredentials,
		ErrLoginFailed,
		ErrTokenRefresh,
		ErrSubmit,
		ErrNotSubmitted,
	}
	for i, a := range kinds {
		for j, b := range kinds {
			if i != j && errors.Is(a, b) {
				t.Errorf("error %v should not match %v", a, b)
			}
		}
	}
}
