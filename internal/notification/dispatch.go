// Package notification delivers issue events after a mutation commits.
//
// Events are dispatched to the routes configured in .tracklog/notify.toml
// (log, webhook, bus). Delivery is fire and forget: a failing route is
// logged and never reaches the caller of the mutation.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"

	"github.com/tracklog/tracklog/internal/debug"
)

// Route types
const (
	RouteLog     = "log"
	RouteWebhook = "webhook"
	RouteBus     = "bus"
)

// Config is the content of notify.toml.
type Config struct {
	Routes []RouteConfig `toml:"route"`
}

// RouteConfig configures one delivery channel.
//
//	[[route]]
//	name  = "ci"
//	type  = "webhook"
//	url   = "https://ci.example.com/hooks/tracklog"
//	kinds = ["issue.updated"]
type RouteConfig struct {
	Name       string   `toml:"name"`
	Type       string   `toml:"type"`
	Kinds      []string `toml:"kinds"`
	URL        string   `toml:"url"`
	Secret     string   `toml:"secret"`
	Timeout    Duration `toml:"timeout"`
	MaxElapsed Duration `toml:"max_elapsed"`
}

// Duration decodes TOML strings like "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultConfig logs every event and nothing else.
func DefaultConfig() *Config {
	return &Config{Routes: []RouteConfig{{Name: RouteLog, Type: RouteLog}}}
}

// LoadConfig reads the routes file. A missing file yields DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse notification routes %s: %w", path, err)
	}
	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		if r.Name == "" {
			r.Name = r.Type
		}
		switch r.Type {
		case RouteLog, RouteBus:
		case RouteWebhook:
			if r.URL == "" {
				return nil, fmt.Errorf("route %q: webhook url is required", r.Name)
			}
		default:
			return nil, fmt.Errorf("route %q: unknown type %q (expected log, webhook or bus)", r.Name, r.Type)
		}
	}
	return &cfg, nil
}

// Publisher sends events to a message bus. The eventbus package provides
// the JetStream implementation.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Sender delivers an event over one route.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// DispatchResult records the outcome of one route for one event.
type DispatchResult struct {
	Route   string `json:"route"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type route struct {
	name   string
	kinds  []Kind
	sender Sender
}

func (r route) accepts(k Kind) bool {
	return len(r.kinds) == 0 || slices.Contains(r.kinds, k)
}

// Dispatcher fans events out to its routes.
type Dispatcher struct {
	routes []route
	log    *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*dispatchOptions)

type dispatchOptions struct {
	publisher Publisher
	client    *http.Client
	log       *slog.Logger
}

// WithPublisher sets the bus used by "bus" routes.
func WithPublisher(p Publisher) Option {
	return func(o *dispatchOptions) { o.publisher = p }
}

// WithHTTPClient overrides the client used by webhook routes.
func WithHTTPClient(c *http.Client) Option {
	return func(o *dispatchOptions) { o.client = c }
}

// WithLogger overrides the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *dispatchOptions) { o.log = l }
}

// NewDispatcher builds the routes of cfg. A bus route without a publisher
// is skipped with a warning so that a missing NATS server does not stop
// mutations.
func NewDispatcher(cfg *Config, opts ...Option) *Dispatcher {
	o := dispatchOptions{client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = debug.Logger()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	d := &Dispatcher{log: o.log}
	for _, rc := range cfg.Routes {
		var sender Sender
		switch rc.Type {
		case RouteLog:
			sender = &logSender{log: o.log}
		case RouteWebhook:
			sender = newWebhookSender(rc, o.client)
		case RouteBus:
			if o.publisher == nil {
				o.log.Warn("bus route disabled: no publisher configured", "route", rc.Name)
				continue
			}
			sender = busSender{o.publisher}
		default:
			o.log.Warn("unknown notification route skipped", "route", rc.Name, "type", rc.Type)
			continue
		}
		d.Add(rc.Name, sender, kindsOf(rc.Kinds)...)
	}
	return d
}

// Add registers a sender under name. With no kinds it receives every event.
func (d *Dispatcher) Add(name string, s Sender, kinds ...Kind) {
	d.routes = append(d.routes, route{name: name, kinds: kinds, sender: s})
}

// Routes returns the route names in registration order.
func (d *Dispatcher) Routes() []string {
	names := make([]string, len(d.routes))
	for i, r := range d.routes {
		names[i] = r.name
	}
	return names
}

// Notify dispatches ev in the background. It never blocks on delivery and
// never fails; use Wait to drain in-flight deliveries before exit.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, res := range d.Dispatch(context.WithoutCancel(ctx), ev) {
			if !res.Success {
				d.log.Warn("notification not delivered", "route", res.Route, "event", ev.ID, "kind", ev.Kind, "err", res.Error)
			}
		}
	}()
}

// Wait blocks until every Notify call has finished delivering.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch delivers ev to every matching route concurrently and reports
// one result per route, in route order.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) []DispatchResult {
	var matched []route
	for _, r := range d.routes {
		if r.accepts(ev.Kind) {
			matched = append(matched, r)
		}
	}
	results := make([]DispatchResult, len(matched))

	var g errgroup.Group
	for i, r := range matched {
		g.Go(func() error {
			err := r.sender.Send(ctx, ev)
			results[i] = DispatchResult{Route: r.name, Success: err == nil}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func kindsOf(names []string) []Kind {
	kinds := make([]Kind, 0, len(names))
	for _, n := range names {
		kinds = append(kinds, Kind(n))
	}
	return kinds
}

// logSender writes a one-line summary of each event to the logger.
type logSender struct {
	log *slog.Logger
}

func (s *logSender) Send(_ context.Context, ev Event) error {
	msg := Render(ev)
	attrs := []any{
		"event", ev.ID,
		"kind", ev.Kind,
		"actor", ev.Actor.String(),
		"recipients", ev.Recipients,
	}
	if ev.Issue != nil {
		attrs = append(attrs, "issue", ev.Issue.ID)
	}
	if ev.Journal != nil {
		attrs = append(attrs, "journal", ev.Journal.ID, "details", len(ev.Journal.Details))
	}
	s.log.Info(msg.Subject, attrs...)
	return nil
}

type busSender struct {
	p Publisher
}

func (s busSender) Send(ctx context.Context, ev Event) error {
	return s.p.Publish(ctx, ev)
}
