package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/types"
)

const storageScopeName = "github.com/tracklog/tracklog/storage"

// instruments are shared by the store and the transactions it opens.
type instruments struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// op starts a span and records a metric for the named storage operation.
func (in *instruments) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := in.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	in.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (in *instruments) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	in.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func issueAttr(id int64) attribute.KeyValue {
	return attribute.Int64("tl.issue.id", id)
}

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in tl.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	instrumented
	inner storage.Storage
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return wrap(s)
}

func wrap(s storage.Storage) *InstrumentedStorage {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("tl.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("tl.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("tl.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	in := &instruments{tracer: Tracer(storageScopeName), ops: ops, dur: dur, errs: errs}
	return &InstrumentedStorage{instrumented: instrumented{in: in, rw: s}, inner: s}
}

// RunInTransaction traces the whole transaction and each statement in it.
// Statements called with the caller's own ctx are parented under the
// transaction span.
func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	outer := trace.SpanContextFromContext(ctx)
	ctx, span, t := s.in.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return fn(&instrumentedTx{instrumented{in: s.in, rw: tx, txSpan: span, outer: outer}})
	})
	s.in.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) Path() string { return s.inner.Path() }

func (s *InstrumentedStorage) Close() error { return s.inner.Close() }

type instrumentedTx struct {
	instrumented
}

// readWriter is what both a store and a transaction provide.
type readWriter interface {
	storage.Reader
	storage.Writer
}

// instrumented implements Reader and Writer over rw. Inside a transaction
// txSpan is the transaction's span and outer the span context it was
// started from.
type instrumented struct {
	in     *instruments
	rw     readWriter
	txSpan trace.Span
	outer  trace.SpanContext
}

// op starts a statement span. Within a transaction a ctx that carries no
// span, or only the span the transaction was started from, is moved under
// the transaction span.
func (s instrumented) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	if s.txSpan != nil {
		if cur := trace.SpanContextFromContext(ctx); !cur.IsValid() || cur.Equal(s.outer) {
			ctx = trace.ContextWithSpan(ctx, s.txSpan)
		}
	}
	return s.in.op(ctx, name, attrs...)
}

// ── Reader ──────────────────────────────────────────────────────────────────

func (s instrumented) GetIssue(ctx context.Context, id int64) (*types.Issue, error) {
	attrs := []attribute.KeyValue{issueAttr(id)}
	ctx, span, t := s.op(ctx, "GetIssue", attrs...)
	v, err := s.rw.GetIssue(ctx, id)
	s.in.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s instrumented) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "ListIssues")
	v, err := s.rw.ListIssues(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("tl.result.count", len(v)))
	}
	s.in.done(ctx, span, t, err)
	return v, err
}

func (s instrumented) CountIssues(ctx context.Context, filter types.IssueFilter) (int, error) {
	ctx, span, t := s.op(ctx, "CountIssues")
	v, err := s.rw.CountIssues(ctx, filter)
	s.in.done(ctx, span, t, err)
	return v, err
}

func (s instrumented) GetChildren(ctx context.Context, parentID int64) ([]*types.Issue, error) {
	attrs := []attribute.KeyValue{issueAttr(parentID)}
	ctx, span, t := s.op(ctx, "GetChildren", attrs...)
	v, err := s.rw.GetChildren(ctx, parentID)
	s.in.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s instrumented) GetJournals(ctx context.Context, issueID int64) ([]*types.Journal, error) {
	attrs := []attribute.KeyValue{issueAttr(issueID)}
	ctx, span, t := s.op(ctx, "GetJournals", attrs...)
	v, err := s.rw.GetJournals(ctx, issueID)
	s.in.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s instrumented) GetTimeEntries(ctx context.Context, issueID int64) ([]*types.TimeEntry, error) {
	attrs := []attribute.KeyValue{issueAttr(issueID)}
	ctx, span, t := s.op(ctx, "GetTimeEntries", attrs...)
	v, err := s.rw.GetTimeEntries(ctx, issueID)
	s.in.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s instrumented) GetAttachments(ctx context.Context, issueID int64) ([]*types.Attachment, error) {
	attrs := []attribute.KeyValue{issueAttr(issueID)}
	ctx, span, t := s.op(ctx, "GetAttachments", attrs...)
	v, err := s.rw.GetAttachments(ctx, issueID)
	s.in.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Writer ──────────────────────────────────────────────────────────────────

func (s instrumented) CreateIssue(ctx context.Context, issue *types.Issue) error {
	attrs := []attribute.KeyValue{
		attribute.Int64("tl.project.id", issue.ProjectID),
		attribute.Int64("tl.tracker.id", issue.TrackerID),
	}
	ctx, span, t := s.op(ctx, "CreateIssue", attrs...)
	err := s.rw.CreateIssue(ctx, issue)
	s.in.done(ctx, span, t, err, attrs...)
	return err
}

func (s instrumented) UpdateIssue(ctx context.Context, issue *types.Issue) error {
	attrs := []attribute.KeyValue{issueAttr(issue.ID), attribute.Int("tl.lock_version", issue.LockVersion)}
	ctx, span, t := s.op(ctx, "UpdateIssue", attrs...)
	err := s.rw.UpdateIssue(ctx, issue)
	s.in.done(ctx, span, t, err, attrs...)
	return err
}

func (s instrumented) DeleteIssue(ctx context.Context, id int64) error {
	attrs := []attribute.KeyValue{issueAttr(id)}
	ctx, span, t := s.op(ctx, "DeleteIssue", attrs...)
	err := s.rw.DeleteIssue(ctx, id)
	s.in.done(ctx, span, t, err, attrs...)
	return err
}

func (s instrumented) AddJournal(ctx context.Context, journal *types.Journal) error {
	attrs := []attribute.KeyValue{
		issueAttr(journal.IssueID),
		attribute.Int("tl.journal.details", len(journal.Details)),
	}
	ctx, span, t := s.op(ctx, "AddJournal", attrs...)
	err := s.rw.AddJournal(ctx, journal)
	s.in.done(ctx, span, t, err, attrs...)
	return err
}

func (s instrumented) AddTimeEntry(ctx context.Context, entry *types.TimeEntry) error {
	ctx, span, t := s.op(ctx, "AddTimeEntry")
	err := s.rw.AddTimeEntry(ctx, entry)
	s.in.done(ctx, span, t, err)
	return err
}

func (s instrumented) AddAttachment(ctx context.Context, attachment *types.Attachment) error {
	attrs := []attribute.KeyValue{issueAttr(attachment.IssueID)}
	ctx, span, t := s.op(ctx, "AddAttachment", attrs...)
	err := s.rw.AddAttachment(ctx, attachment)
	s.in.done(ctx, span, t, err, attrs...)
	return err
}

func (s instrumented) SetWatchers(ctx context.Context, issueID int64, userIDs []int64) error {
	attrs := []attribute.KeyValue{issueAttr(issueID)}
	ctx, span, t := s.op(ctx, "SetWatchers", attrs...)
	err := s.rw.SetWatchers(ctx, issueID, userIDs)
	s.in.done(ctx, span, t, err, attrs...)
	return err
}

func (s instrumented) DeleteTimeEntries(ctx context.Context, issueID int64) (int64, error) {
	attrs := []attribute.KeyValue{issueAttr(issueID)}
	ctx, span, t := s.op(ctx, "DeleteTimeEntries", attrs...)
	n, err := s.rw.DeleteTimeEntries(ctx, issueID)
	s.in.done(ctx, span, t, err, attrs...)
	return n, err
}

func (s instrumented) ReassignTimeEntries(ctx context.Context, issueID int64, to *types.Issue) (int64, error) {
	attrs := []attribute.KeyValue{issueAttr(issueID)}
	ctx, span, t := s.op(ctx, "ReassignTimeEntries", attrs...)
	n, err := s.rw.ReassignTimeEntries(ctx, issueID, to)
	s.in.done(ctx, span, t, err, attrs...)
	return n, err
}
