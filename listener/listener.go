// Package listener provides a subscribe-and-dispatch loop over Redis
// pub/sub channels. MOTHR broadcasts job results to the channels named in
// a request's broadcast list; a Listener reacts to those events out-of-band
// from polling or socket subscriptions.
//
// Channels are exact names ("jobs:done") or patterns with a trailing
// wildcard ("jobs:*"), which subscribe to every channel sharing the
// prefix.
//
// Usage:
//
//	rdb := redis.NewClient(&redis.Options{Addr: listener.RedisAddr()})
//	l := listener.New(rdb, []string{"jobs:*"}, func(channel, payload string) {
//	    ...
//	})
//	defer l.Close()
//	err := l.Listen(ctx)
package listener

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

// EnvRedisHost names the environment variable consulted by RedisAddr.
const EnvRedisHost = "REDIS_HOST"

// RedisAddr returns the broadcast store address: REDIS_HOST if set,
// otherwise localhost, with the default Redis port appended when missing.
func RedisAddr() string {
	host := os.Getenv(EnvRedisHost)
	if host == "" {
		host = "localhost"
	}
	if !strings.Contains(host, ":") {
		host += ":6379"
	}
	return host
}

// Handler is invoked for every received event with the channel it arrived
// on and its payload.
type Handler func(channel, payload string)

// Listener subscribes to event channels and dispatches received messages
// to a handler.
type Listener struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	handler  Handler
	logger   *slog.Logger
	channels []string
	patterns []string
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) { l.logger = logger }
}

// New creates a listener on the given channels. The caller owns the Redis
// client lifecycle. Channel names ending in "*" are registered as
// patterns, the rest as exact subscriptions.
func New(client *redis.Client, channels []string, handler Handler, opts ...Option) *Listener {
	l := &Listener{
		client:  client,
		handler: handler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.channels, l.patterns = Split(channels)
	return l
}

// Split partitions channel names into exact subscriptions and
// trailing-wildcard patterns, preserving order.
func Split(channels []string) (exact, patterns []string) {
	for _, ch := range channels {
		if strings.HasSuffix(ch, "*") {
			patterns = append(patterns, ch)
		} else {
			exact = append(exact, ch)
		}
	}
	return exact, patterns
}

// Listen subscribes and dispatches events to the handler until ctx is
// cancelled or the connection closes. Direct messages and pattern-matched
// messages are treated alike; subscription confirmations are filtered out
// by the client library.
func (l *Listener) Listen(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx)
	l.pubsub = pubsub
	if len(l.channels) > 0 {
		if err := pubsub.Subscribe(ctx, l.channels...); err != nil {
			return err
		}
	}
	if len(l.patterns) > 0 {
		if err := pubsub.PSubscribe(ctx, l.patterns...); err != nil {
			return err
		}
	}

	l.logger.Info("listener started",
		slog.Int("channels", len(l.channels)),
		slog.Int("patterns", len(l.patterns)),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handler(msg.Channel, msg.Payload)
		}
	}
}

// Close unsubscribes from both exact channels and patterns unconditionally
// and releases the pub/sub connection. Safe to call when Listen never ran.
func (l *Listener) Close() error {
	if l.pubsub == nil {
		return nil
	}
	ctx := context.Background()
	if err := l.pubsub.Unsubscribe(ctx); err != nil {
		l.logger.Warn("unsubscribe failed", slog.String("error", err.Error()))
	}
	if err := l.pubsub.PUnsubscribe(ctx); err != nil {
		l.logger.Warn("punsubscribe failed", slog.String("error", err.Error()))
	}
	return l.pubsub.Close()
}
