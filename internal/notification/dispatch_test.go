package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/tracklog/tracklog/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testEvent(kind Kind) Event {
	issue := &types.Issue{ID: 12, Subject: "Cannot print recipes", AuthorID: 2, AssigneeIDs: []int64{3}, WatcherIDs: []int64{4, 3}}
	old, now := "4", "7"
	journal := &types.Journal{
		ID:      31,
		IssueID: 12,
		UserID:  2,
		Notes:   "Raised after the demo",
		Details: []*types.JournalDetail{{Property: types.PropertyAttribute, PropKey: types.FieldPriority, OldValue: &old, Value: &now}},
	}
	return NewEvent(kind, issue, journal, types.Actor{ID: 2, Login: "jsmith"}, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecipients(t *testing.T) {
	ev := testEvent(KindUpdated)
	want := []int64{3, 4}
	if len(ev.Recipients) != len(want) {
		t.Fatalf("Recipients = %v, want %v", ev.Recipients, want)
	}
	for i := range want {
		if ev.Recipients[i] != want[i] {
			t.Errorf("Recipients = %v, want %v", ev.Recipients, want)
		}
	}
	if got := Recipients(nil, types.Actor{}); got != nil {
		t.Errorf("Recipients(nil) = %v, want nil", got)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "notify.toml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Routes) != 1 || cfg.Routes[0].Type != RouteLog {
		t.Errorf("expected the default log route, got %+v", cfg.Routes)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.toml")
	content := `
[[route]]
type = "log"

[[route]]
name = "ci"
type = "webhook"
url = "https://ci.example.com/hook"
secret = "s3cret"
kinds = ["issue.updated", "issue.deleted"]
timeout = "5s"
max_elapsed = "1m"

[[route]]
type = "bus"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Routes) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(cfg.Routes))
	}
	if cfg.Routes[0].Name != "log" {
		t.Errorf("route name should default to its type, got %q", cfg.Routes[0].Name)
	}
	ci := cfg.Routes[1]
	if ci.Name != "ci" || ci.URL != "https://ci.example.com/hook" || ci.Secret != "s3cret" {
		t.Errorf("webhook route mismatch: %+v", ci)
	}
	if ci.Timeout.Duration != 5*time.Second || ci.MaxElapsed.Duration != time.Minute {
		t.Errorf("durations = %v/%v, want 5s/1m", ci.Timeout.Duration, ci.MaxElapsed.Duration)
	}
	if len(ci.Kinds) != 2 {
		t.Errorf("kinds = %v", ci.Kinds)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown type", "[[route]]\ntype = \"sms\"\n"},
		{"webhook without url", "[[route]]\ntype = \"webhook\"\n"},
		{"bad duration", "[[route]]\ntype = \"log\"\ntimeout = \"soon\"\n"},
		{"not toml", "route = [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "notify.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

type recordingSender struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSender) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatch_FiltersByKind(t *testing.T) {
	d := NewDispatcher(&Config{}, WithLogger(quietLogger()))
	all := &recordingSender{}
	deletes := &recordingSender{}
	failing := &recordingSender{err: errors.New("boom")}
	d.Add("all", all)
	d.Add("deletes", deletes, KindDeleted)
	d.Add("failing", failing, KindUpdated)

	results := d.Dispatch(context.Background(), testEvent(KindUpdated))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].Route != "all" || !results[0].Success {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Route != "failing" || results[1].Success || results[1].Error != "boom" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if deletes.count() != 0 {
		t.Error("deletes route should not receive updates")
	}
}

func TestNotify_IsAsyncAndDrains(t *testing.T) {
	d := NewDispatcher(&Config{}, WithLogger(quietLogger()))
	s := &recordingSender{err: errors.New("unreachable")}
	d.Add("s", s)

	ctx, cancel := context.WithCancel(context.Background())
	for range 5 {
		d.Notify(ctx, testEvent(KindUpdated))
	}
	cancel()
	d.Wait()

	if s.count() != 5 {
		t.Errorf("expected 5 deliveries, got %d", s.count())
	}
}

func TestNewDispatcher_SkipsBusWithoutPublisher(t *testing.T) {
	cfg := &Config{Routes: []RouteConfig{{Name: "log", Type: RouteLog}, {Name: "bus", Type: RouteBus}}}
	d := NewDispatcher(cfg, WithLogger(quietLogger()))
	if got := d.Routes(); len(got) != 1 || got[0] != "log" {
		t.Errorf("Routes() = %v, want [log]", got)
	}
}

type publisherFunc func(ctx context.Context, ev Event) error

func (f publisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

func TestBusRoute(t *testing.T) {
	var published atomic.Int32
	pub := publisherFunc(func(_ context.Context, ev Event) error {
		if ev.Kind != KindCreated {
			t.Errorf("kind = %q", ev.Kind)
		}
		published.Add(1)
		return nil
	})
	cfg := &Config{Routes: []RouteConfig{{Name: "bus", Type: RouteBus}}}
	d := NewDispatcher(cfg, WithPublisher(pub), WithLogger(quietLogger()))

	results := d.Dispatch(context.Background(), testEvent(KindCreated))
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %+v", results)
	}
	if published.Load() != 1 {
		t.Errorf("published %d events, want 1", published.Load())
	}
}

func TestLogRoute(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDispatcher(DefaultConfig(), WithLogger(log))

	results := d.Dispatch(context.Background(), testEvent(KindUpdated))
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %+v", results)
	}
	out := buf.String()
	for _, want := range []string{"Issue #12 updated", "actor=jsmith", "issue=12", "journal=31"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestWebhookRoute(t *testing.T) {
	var got struct {
		kind, delivery, signature string
		body                      []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.kind = r.Header.Get(HeaderEvent)
		got.delivery = r.Header.Get(HeaderDelivery)
		got.signature = r.Header.Get(HeaderSignature)
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := &Config{Routes: []RouteConfig{{Name: "hook", Type: RouteWebhook, URL: srv.URL, Secret: "s3cret"}}}
	d := NewDispatcher(cfg, WithHTTPClient(srv.Client()), WithLogger(quietLogger()))

	ev := testEvent(KindUpdated)
	results := d.Dispatch(context.Background(), ev)
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %+v", results)
	}
	if got.kind != string(KindUpdated) || got.delivery != ev.ID {
		t.Errorf("headers = %q/%q", got.kind, got.delivery)
	}
	if got.signature != "sha256="+Sign("s3cret", got.body) {
		t.Errorf("signature %q does not match body", got.signature)
	}
	var decoded Event
	if err := json.Unmarshal(got.body, &decoded); err != nil {
		t.Fatalf("body is not an event: %v", err)
	}
	if decoded.Issue.ID != 12 || decoded.Journal.ID != 31 {
		t.Errorf("decoded event = %+v", decoded)
	}
}

func TestWebhookRoute_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &Config{Routes: []RouteConfig{{Type: RouteWebhook, Name: "hook", URL: srv.URL, MaxElapsed: Duration{10 * time.Second}}}}
	d := NewDispatcher(cfg, WithHTTPClient(srv.Client()), WithLogger(quietLogger()))

	results := d.Dispatch(context.Background(), testEvent(KindUpdated))
	if !results[0].Success {
		t.Fatalf("expected success after retries, got %+v", results[0])
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestWebhookRoute_ClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "no such hook", http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := &Config{Routes: []RouteConfig{{Type: RouteWebhook, Name: "hook", URL: srv.URL}}}
	d := NewDispatcher(cfg, WithHTTPClient(srv.Client()), WithLogger(quietLogger()))

	results := d.Dispatch(context.Background(), testEvent(KindUpdated))
	if results[0].Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(results[0].Error, "404") || !strings.Contains(results[0].Error, "no such hook") {
		t.Errorf("error = %q", results[0].Error)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx should not be retried, got %d attempts", calls.Load())
	}
}
