// Package client provides the high-level MOTHR client: session wiring,
// service-catalog queries, and a factory for job requests that share the
// client's connection and session.
//
// Usage:
//
//	c, err := client.New(ctx,
//	    client.WithConfig(mothr.ResolveConfig(
//	        mothr.WithEndpoint("https://mothr.example.com/query"),
//	    )),
//	)
//
//	services, err := c.Services(ctx, nil)
//	req := c.NewJobRequest("echo-test")
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mothr "github.com/rs21io/mothr-go"
	"github.com/rs21io/mothr-go/gql"
	"github.com/rs21io/mothr-go/request"
	"github.com/rs21io/mothr-go/session"
	"github.com/rs21io/mothr-go/transport"
)

// defaultServiceFields is the selection used when a catalog query names no
// fields of its own.
var defaultServiceFields = []string{"name", "version"}

// Client is a connection to MOTHR with an attached session.
type Client struct {
	cfg    mothr.Config
	conn   *transport.Conn
	sess   *session.Session
	logger *slog.Logger

	applied bool
}

// Option configures a Client.
type Option func(*Client)

// WithConfig supplies an already-resolved configuration.
func WithConfig(cfg mothr.Config) Option {
	return func(c *Client) {
		c.cfg = cfg
		c.applied = true
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client. The session follows the construction policy of
// session.New: a configured token is used as-is, resolvable credentials
// log in eagerly, and otherwise the client stays unauthenticated.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if !c.applied {
		c.cfg = mothr.ResolveConfig()
	}

	c.conn = transport.NewConn(c.cfg.Endpoint, transport.WithLogger(c.logger))
	sess, err := session.New(ctx, c.conn, c.cfg, session.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.sess = sess
	c.conn.SetHeaderSource(sess)
	return c, nil
}

// Login authenticates explicitly. Empty arguments fall back to the
// configured credentials.
func (c *Client) Login(ctx context.Context, username, password string) (access, refresh string, err error) {
	return c.sess.Login(ctx, username, password)
}

// RefreshToken trades the stored refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	return c.sess.RefreshAccessToken(ctx)
}

// Session returns the client's session.
func (c *Client) Session() *session.Session { return c.sess }

// ServiceRecord is one entry of the service catalog. Only the requested
// fields are populated.
type ServiceRecord struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Service queries a service by name. An empty version matches all
// versions; wildcards are accepted. Nil fields default to name and
// version; dotted paths ("parameters.fileType.name") resolve against the
// schema before the call goes out.
func (c *Client) Service(ctx context.Context, name, version string, fields []string) ([]ServiceRecord, error) {
	if version == "" {
		version = "*"
	}
	if fields == nil {
		fields = defaultServiceFields
	}
	op, err := gql.Service(name, version, fields)
	if err != nil {
		return nil, err
	}
	return c.catalog(ctx, op, "service")
}

// Services retrieves every service registered with MOTHR. Nil fields
// default to name and version.
func (c *Client) Services(ctx context.Context, fields []string) ([]ServiceRecord, error) {
	if fields == nil {
		fields = defaultServiceFields
	}
	op, err := gql.Services(fields)
	if err != nil {
		return nil, err
	}
	return c.catalog(ctx, op, "services")
}

func (c *Client) catalog(ctx context.Context, op gql.Operation, field string) ([]ServiceRecord, error) {
	data, err := c.conn.Do(ctx, op.Query, op.Variables)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", field, err)
	}
	var resp map[string][]ServiceRecord
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("query %s: decode response: %w", field, err)
	}
	return resp[field], nil
}

// NewJobRequest creates a job request wired to this client's connection
// and session.
func (c *Client) NewJobRequest(service string, opts ...request.Option) (*request.JobRequest, error) {
	base := []request.Option{
		request.WithConfig(c.cfg),
		request.WithExecer(c.conn),
		request.WithSession(c.sess),
		request.WithLogger(c.logger),
	}
	return request.New(service, append(base, opts...)...)
}
