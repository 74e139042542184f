// Package eventbus publishes committed issue events to in-process handlers
// and, when configured, to a NATS JetStream stream so that other processes
// can follow the journal.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tracklog/tracklog/internal/debug"
	"github.com/tracklog/tracklog/internal/notification"
)

// Handler processes events on the bus. Handlers are called in priority
// order (lower priority value = called earlier) for matching kinds.
type Handler interface {
	// ID returns a unique identifier for this handler.
	ID() string

	// Handles returns the kinds this handler processes. Empty means all.
	Handles() []notification.Kind

	// Priority determines call order. Lower values are called first.
	Priority() int

	// Handle processes a single event. Returning an error logs a warning
	// but does not stop the handler chain.
	Handle(ctx context.Context, ev notification.Event) error
}

// Bus dispatches events to registered handlers and mirrors them to
// JetStream when a context is set.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	js       nats.JetStreamContext
	log      *slog.Logger
}

// New creates a bus with no handlers and no JetStream.
func New() *Bus {
	return &Bus{log: debug.Logger()}
}

// Register adds a handler to the bus.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Handlers returns all registered handlers.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.handlers)
}

// SetJetStream enables (or, with nil, disables) JetStream publishing.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

// JetStreamEnabled reports whether events are mirrored to JetStream.
func (b *Bus) JetStreamEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js != nil
}

// Publish runs the matching handlers, then publishes ev to JetStream.
// Handler errors are logged; a JetStream failure is returned so the
// notification route can report it. Publishing is idempotent per event id.
func (b *Bus) Publish(ctx context.Context, ev notification.Event) error {
	b.mu.RLock()
	matching := b.matchingHandlers(ev.Kind)
	js := b.js
	b.mu.RUnlock()

	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("eventbus: context cancelled: %w", err)
		}
		if err := h.Handle(ctx, ev); err != nil {
			b.log.Warn("eventbus handler failed", "handler", h.ID(), "kind", ev.Kind, "err", err)
		}
	}

	if js == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	subject := SubjectForEvent(ev)
	if _, err := js.Publish(subject, data, nats.MsgId(ev.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("eventbus: publish %s: %w", subject, err)
	}
	b.log.Debug("event published", "subject", subject, "event", ev.ID)
	return nil
}

// matchingHandlers returns handlers for kind sorted by priority. Must be
// called with at least a read lock held.
func (b *Bus) matchingHandlers(kind notification.Kind) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		if kinds := h.Handles(); len(kinds) == 0 || slices.Contains(kinds, kind) {
			matched = append(matched, h)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}

// Conn is a bus connected to a NATS server.
type Conn struct {
	*Bus
	nc *nats.Conn
}

// Connect dials url, ensures the journal stream exists and returns a bus
// that publishes to it.
func Connect(url string, timeout time.Duration) (*Conn, error) {
	nc, err := nats.Connect(url, nats.Name("tracklog"), nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}
	if err := EnsureStreams(js); err != nil {
		nc.Close()
		return nil, err
	}
	b := New()
	b.SetJetStream(js)
	return &Conn{Bus: b, nc: nc}, nil
}

// Close flushes pending publishes and closes the connection.
func (c *Conn) Close() error {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}
