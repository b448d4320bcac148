package mothr

import (
	"fmt"
	"net/url"
	"os"
)

// Environment variables consulted when a Config field is not set explicitly.
const (
	EnvEndpoint    = "MOTHR_ENDPOINT"
	EnvAccessToken = "MOTHR_ACCESS_TOKEN"
	EnvUsername    = "MOTHR_USERNAME"
	EnvPassword    = "MOTHR_PASSWORD"
)

// DefaultEndpoint is used when neither an explicit endpoint nor
// MOTHR_ENDPOINT is set.
const DefaultEndpoint = "http://localhost:8080/query"

// Config holds connection and credential settings for the SDK.
//
// Fields left zero are filled from the environment and then from built-in
// defaults by ResolveConfig; the precedence is always explicit argument >
// environment variable > default.
type Config struct {
	// Endpoint is the HTTP URL of the MOTHR GraphQL API.
	Endpoint string

	// Token is a pre-issued access token. When set, login is skipped and
	// the token is used as-is.
	Token string

	// Username and Password are the login credentials. When both resolve
	// and no token is present, a session logs in eagerly at construction.
	Username string
	Password string
}

// ConfigOption overrides a single Config field before env resolution.
type ConfigOption func(*Config)

// WithEndpoint sets the API endpoint explicitly.
func WithEndpoint(url string) ConfigOption {
	return func(c *Config) { c.Endpoint = url }
}

// WithToken sets a pre-issued access token.
func WithToken(token string) ConfigOption {
	return func(c *Config) { c.Token = token }
}

// WithCredentials sets the login username and password.
func WithCredentials(username, password string) ConfigOption {
	return func(c *Config) {
		c.Username = username
		c.Password = password
	}
}

// ResolveConfig builds a Config from the given options, filling unset
// fields from the environment and defaults. Resolution happens exactly
// once; the returned value is passed around by value afterwards.
func ResolveConfig(opts ...ConfigOption) Config {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}
	if c.Endpoint == "" {
		c.Endpoint = os.Getenv(EnvEndpoint)
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Token == "" {
		c.Token = os.Getenv(EnvAccessToken)
	}
	if c.Username == "" {
		c.Username = os.Getenv(EnvUsername)
	}
	if c.Password == "" {
		c.Password = os.Getenv(EnvPassword)
	}
	return c
}

// SocketEndpoint derives the WebSocket URL for push subscriptions from the
// HTTP endpoint by swapping the scheme (http→ws, https→wss).
func (c Config) SocketEndpoint() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("mothr: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("mothr: endpoint scheme %q has no websocket equivalent", u.Scheme)
	}
	return u.String(), nil
}
