// Package nats implements the event bus over NATS core subjects. Each event
// name maps to subject <prefix>.<name>; payloads travel as JSON envelopes.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/viant/procflow/internal/idgen"
	plog "github.com/viant/procflow/log"
	"github.com/viant/procflow/service/event"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "procflow"

// Bus publishes and subscribes events through a NATS connection.
type Bus struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
	owned  bool

	mu   sync.Mutex
	subs map[*nats.Subscription]bool
}

type Option func(b *Bus)

// WithPrefix sets the subject prefix
func WithPrefix(prefix string) Option {
	return func(b *Bus) {
		b.prefix = strings.TrimSuffix(prefix, ".")
	}
}

// WithLogger sets the logger used for handler failures
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// Connect dials url and returns a bus owning the connection.
func Connect(url string, opts ...Option) (*Bus, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("procflow"),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	ret := New(conn, opts...)
	ret.owned = true
	return ret, nil
}

// New wraps an existing connection.
func New(conn *nats.Conn, opts ...Option) *Bus {
	ret := &Bus{
		conn:   conn,
		prefix: DefaultPrefix,
		logger: slog.Default(),
		subs:   make(map[*nats.Subscription]bool),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Subject returns the NATS subject for an event name; "*" maps to the
// multi-level wildcard.
func (b *Bus) Subject(name string) string {
	if name == event.All {
		return b.prefix + ".>"
	}
	return b.prefix + "." + name
}

// Emit publishes a JSON envelope to the event subject.
func (b *Bus) Emit(ctx context.Context, name string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	anEvent := event.NewEvent(name, payload)
	anEvent.ID = idgen.New()
	data, err := json.Marshal(anEvent)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", name, err)
	}
	if err = b.conn.Publish(b.Subject(name), data); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", name, err)
	}
	return nil
}

// On subscribes handler to the event subject.
func (b *Bus) On(name string, handler event.Handler) func() {
	sub, err := b.conn.Subscribe(b.Subject(name), func(msg *nats.Msg) {
		anEvent := &event.Event{}
		if err := json.Unmarshal(msg.Data, anEvent); err != nil {
			b.logger.Error("failed to decode event", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(context.Background(), anEvent); err != nil {
			b.logger.Warn("event handler failed", plog.EventNameKey, anEvent.Name, "error", err)
		}
	})
	if err != nil {
		b.logger.Error("failed to subscribe", plog.EventNameKey, name, "error", err)
		return func() {}
	}
	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		_ = sub.Unsubscribe()
	}
}

// Close removes subscriptions and drains an owned connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	for sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = map[*nats.Subscription]bool{}
	b.mu.Unlock()
	if b.owned && !b.conn.IsClosed() {
		return b.conn.Drain()
	}
	return nil
}

var _ event.Bus = (*Bus)(nil)
