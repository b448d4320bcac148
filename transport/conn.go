// Package transport carries GraphQL operations to MOTHR: queries and
// mutations over HTTP POST, subscriptions over a WebSocket using
// graphql-transport-ws framing. It knows nothing about job semantics;
// higher layers hand it rendered operations and decode the results.
package transport

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

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// HeaderSource supplies the Authorization header for outgoing calls. An
// empty string means the call goes out unauthenticated.
type HeaderSource interface {
	AuthHeader() string
}

// HeaderFunc adapts a function to the HeaderSource interface.
type HeaderFunc func() string

// AuthHeader returns f().
func (f HeaderFunc) AuthHeader() string { return f() }

// Conn executes queries and mutations against the MOTHR HTTP endpoint.
type Conn struct {
	url    string
	hc     *http.Client
	header HeaderSource
	logger *slog.Logger
	tracer trace.Tracer
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ConnOption {
	return func(c *Conn) { c.hc = hc }
}

// WithHeaderSource sets the Authorization header provider.
func WithHeaderSource(h HeaderSource) ConnOption {
	return func(c *Conn) { c.header = h }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ConnOption {
	return func(c *Conn) { c.logger = logger }
}

// WithTracer enables client-side spans around each operation.
func WithTracer(tracer trace.Tracer) ConnOption {
	return func(c *Conn) { c.tracer = tracer }
}

// NewConn creates a connection to the given GraphQL endpoint.
func NewConn(url string, opts ...ConnOption) *Conn {
	c := &Conn{
		url:    url,
		hc:     http.DefaultClient,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("mothr"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHeaderSource replaces the Authorization header provider. The session
// that supplies headers is usually constructed after the connection it
// logs in through, so the provider is late-bound.
func (c *Conn) SetHeaderSource(h HeaderSource) { c.header = h }

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors gqlerror.List   `json:"errors,omitempty"`
}

// Do posts one operation and returns the data payload. Server-reported
// errors come back as a gqlerror.List. No retries happen here.
func (c *Conn) Do(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "graphql.request",
		trace.WithAttributes(attribute.String("server.address", c.url)),
	)
	defer span.End()

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("transport: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.header != nil {
		if h := c.header.AuthHeader(); h != "" {
			req.Header.Set("Authorization", h)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("transport: post: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("transport: endpoint returned %s", resp.Status)
	}

	var gr graphqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("transport: decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		span.SetAttributes(attribute.Int("graphql.error_count", len(gr.Errors)))
		span.SetStatus(codes.Error, gr.Errors.Error())
		return gr.Data, gr.Errors
	}
	return gr.Data, nil
}

// TokenExpired reports whether err is the server rejecting an expired or
// invalid access token, which callers remedy with a session refresh.
func TokenExpired(err error) bool {
	var list gqlerror.List
	if !errors.As(err, &list) {
		return false
	}
	for _, e := range list {
		msg := strings.ToLower(e.Message)
		if strings.Contains(msg, "token is expired") ||
			strings.Contains(msg, "invalid token") ||
			strings.Contains(msg, "unauthorized") {
			return true
		}
	}
	return false
}
