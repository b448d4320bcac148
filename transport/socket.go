package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Message types of the graphql-transport-ws subprotocol.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
)

// wsMessage is the framing envelope for every subscription message.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ackTimeout bounds how long a dial waits for connection_ack.
const ackTimeout = 10 * time.Second

// subscriptionBuffer is the per-subscription channel capacity. Events past
// a full buffer are dropped rather than stalling the read loop.
const subscriptionBuffer = 64

// Socket is a long-lived WebSocket connection used for push subscriptions.
// Writes are serialized internally; a single read loop routes incoming
// events to their subscription channels by operation ID.
type Socket struct {
	url    string
	header HeaderSource
	logger *slog.Logger

	conn   net.Conn
	mu     sync.Mutex
	closed atomic.Bool
	subs   sync.Map // operation ID → *subscription
}

// subscription pairs the event channel with a done signal. The context
// watcher waits on done as well, so it exits when the server ends the
// subscription first instead of lingering until the context is cancelled.
type subscription struct {
	ch   chan json.RawMessage
	done chan struct{}
}

// SocketOption configures a Socket.
type SocketOption func(*Socket)

// WithSocketHeaderSource sets the Authorization header provider used in
// the connection handshake.
func WithSocketHeaderSource(h HeaderSource) SocketOption {
	return func(s *Socket) { s.header = h }
}

// WithSocketLogger sets the structured logger.
func WithSocketLogger(logger *slog.Logger) SocketOption {
	return func(s *Socket) { s.logger = logger }
}

// Dial connects to the subscription endpoint, performs the
// connection_init/ack handshake, and starts the read loop.
func Dial(ctx context.Context, url string, opts ...SocketOption) (*Socket, error) {
	s := &Socket{
		url:    url,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.connect(ctx); err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}

	go s.readLoop()

	return s, nil
}

// connect establishes the WebSocket and completes the protocol handshake.
// The ack is read directly here because the read loop starts afterwards.
func (s *Socket) connect(ctx context.Context) error {
	conn, _, _, err := ws.Dial(ctx, s.url)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn

	init := wsMessage{Type: msgConnectionInit}
	if s.header != nil {
		if h := s.header.AuthHeader(); h != "" {
			payload, marshalErr := json.Marshal(map[string]string{"Authorization": h})
			if marshalErr != nil {
				_ = conn.Close()
				return fmt.Errorf("marshal init payload: %w", marshalErr)
			}
			init.Payload = payload
		}
	}
	if writeErr := s.write(init); writeErr != nil {
		_ = conn.Close()
		return fmt.Errorf("write connection_init: %w", writeErr)
	}

	type readResult struct {
		msg wsMessage
		err error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		data, readErr := wsutil.ReadServerText(conn)
		if readErr != nil {
			resultCh <- readResult{err: fmt.Errorf("read connection_ack: %w", readErr)}
			return
		}
		var msg wsMessage
		if unmarshalErr := json.Unmarshal(data, &msg); unmarshalErr != nil {
			resultCh <- readResult{err: fmt.Errorf("unmarshal connection_ack: %w", unmarshalErr)}
			return
		}
		resultCh <- readResult{msg: msg}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			_ = conn.Close()
			return result.err
		}
		if result.msg.Type != msgConnectionAck {
			_ = conn.Close()
			return fmt.Errorf("handshake rejected: %s", result.msg.Type)
		}
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-time.After(ackTimeout):
		_ = conn.Close()
		return fmt.Errorf("connection_ack timeout")
	}
}

// Subscribe starts a subscription for the given operation and returns the
// channel its events arrive on. The channel closes when the server
// completes the subscription, the context is cancelled, or the socket
// closes; it never reopens.
func (s *Socket) Subscribe(ctx context.Context, query string, vars map[string]any) (<-chan json.RawMessage, error) {
	id := uuid.NewString()

	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("transport: marshal subscribe payload: %w", err)
	}

	sub := &subscription{
		ch:   make(chan json.RawMessage, subscriptionBuffer),
		done: make(chan struct{}),
	}
	s.subs.Store(id, sub)

	if err := s.write(wsMessage{ID: id, Type: msgSubscribe, Payload: payload}); err != nil {
		s.subs.Delete(id)
		return nil, fmt.Errorf("transport: write subscribe: %w", err)
	}

	// Cancellation closes the subscription explicitly; done releases the
	// watcher when the subscription ends on the server side first.
	go func() {
		select {
		case <-ctx.Done():
			s.complete(id)
		case <-sub.done:
		}
	}()

	return sub.ch, nil
}

// complete tells the server the subscription is done and tears it down
// locally. Safe to call after the subscription already ended.
func (s *Socket) complete(id string) {
	if _, ok := s.subs.Load(id); !ok {
		return
	}
	if !s.closed.Load() {
		_ = s.write(wsMessage{ID: id, Type: msgComplete})
	}
	s.finish(id)
}

// finish removes the subscription and closes its channels. LoadAndDelete
// has exactly one winner, so each channel is closed once no matter how
// many teardown paths race.
func (s *Socket) finish(id string) {
	if val, ok := s.subs.LoadAndDelete(id); ok {
		sub := val.(*subscription)
		close(sub.ch)
		close(sub.done)
	}
}

// readLoop reads frames from the WebSocket and routes them by operation ID.
func (s *Socket) readLoop() {
	for {
		if s.closed.Load() {
			return
		}

		data, err := wsutil.ReadServerText(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.logger.Warn("subscription socket read error", slog.String("error", err.Error()))
				_ = s.Close()
			}
			return
		}

		var msg wsMessage
		if unmarshalErr := json.Unmarshal(data, &msg); unmarshalErr != nil {
			s.logger.Warn("subscription socket: invalid frame", slog.String("error", unmarshalErr.Error()))
			continue
		}

		switch msg.Type {
		case msgNext:
			if val, ok := s.subs.Load(msg.ID); ok {
				var result graphqlResponse
				if json.Unmarshal(msg.Payload, &result) != nil {
					continue
				}
				if len(result.Errors) > 0 {
					s.logger.Warn("subscription event carried errors",
						slog.String("id", msg.ID),
						slog.String("error", result.Errors.Error()),
					)
				}
				select {
				case val.(*subscription).ch <- result.Data:
				default:
					// Drop if the subscriber is slow.
				}
			}
		case msgError:
			var list gqlerror.List
			if json.Unmarshal(msg.Payload, &list) == nil && len(list) > 0 {
				s.logger.Warn("subscription failed",
					slog.String("id", msg.ID),
					slog.String("error", list.Error()),
				)
			}
			s.finish(msg.ID)
		case msgComplete:
			s.finish(msg.ID)
		case msgPing:
			_ = s.write(wsMessage{Type: msgPong})
		case msgPong, msgConnectionAck:
			// Ignore.
		}
	}
}

// write JSON-encodes and sends one frame. Writes are serialized because
// subscriptions and the pong reply share the connection.
func (s *Socket) write(msg wsMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return wsutil.WriteClientText(s.conn, data)
}

// Close closes the socket and every open subscription channel. Safe to
// call more than once.
func (s *Socket) Close() error {
	if s.closed.Swap(true) {
		return nil // already closed
	}

	s.subs.Range(func(key, _ any) bool {
		s.finish(key.(string))
		return true
	})

	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
