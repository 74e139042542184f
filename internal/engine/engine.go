// Package engine validates and applies changes to a single issue and
// writes the resulting journal.
//
// Every mutation runs as one pipeline inside one storage transaction:
// load, authorize, drop inapplicable fields, filter the status, parse and
// validate, apply to a copy, roll up ancestors, journal, persist. The
// notifier is called after the commit.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracklog/tracklog/internal/debug"
	"github.com/tracklog/tracklog/internal/notification"
	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/telemetry"
	"github.com/tracklog/tracklog/internal/types"
)

const tracerName = "github.com/tracklog/tracklog/engine"

// WorkflowGraph answers status transition questions.
type WorkflowGraph interface {
	AllowedTransitions(trackerID int64, roleIDs []int64, from int64) []int64
	DefaultStatus(trackerID int64) (int64, error)
}

// Catalog is the reference data the engine validates against.
// *workflow.Catalog implements it.
type Catalog interface {
	WorkflowGraph

	Status(id int64) (*types.Status, bool)
	IsClosed(statusID int64) bool
	Priority(id int64) (*types.Priority, bool)
	DefaultPriority() (*types.Priority, bool)
	Activity(id int64) (*types.Activity, bool)
	DefaultActivity() (*types.Activity, bool)
	Tracker(id int64) (*types.Tracker, bool)
	Project(id int64) (*types.Project, bool)
	Version(id int64) (*types.Version, bool)
	CustomField(id int64) (*types.CustomField, bool)
	VersionVisible(projectID, versionID int64) bool
	CategoryInProject(projectID, categoryID int64) bool
	Assignable(projectID, userID int64) bool
	CustomFieldApplies(projectID, trackerID, fieldID int64) bool
	ApplicableCustomFields(projectID, trackerID int64) []*types.CustomField
	RolesFor(actor types.Actor, projectID int64) []int64
}

// PermissionOracle decides capabilities. *workflow.Oracle implements it.
type PermissionOracle interface {
	Can(ctx context.Context, actor types.Actor, issue *types.Issue, capability types.Capability) bool
}

// Notifier receives committed mutations. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, event notification.Event)
}

// TimeLog is spent time submitted with an update. Hours wins over the
// SpentFrom/SpentTo clock range; blank hours and no range means no entry.
type TimeLog struct {
	Hours      string `json:"hours,omitempty"`
	SpentFrom  string `json:"spent_from,omitempty"`
	SpentTo    string `json:"spent_to,omitempty"`
	ActivityID int64  `json:"activity_id,omitempty"`
	Comments   string `json:"comments,omitempty"`
	SpentOn    string `json:"spent_on,omitempty"`
}

// Update is one mutation of an existing issue.
type Update struct {
	Changes     types.ChangeSet
	Notes       string
	TimeLog     *TimeLog
	Attachments []*types.Attachment

	// LockVersion, when set, is the version the caller last saw. A
	// mismatch fails with ErrConcurrentModification before anything runs.
	LockVersion *int
}

// NewIssue describes an issue to create.
type NewIssue struct {
	ProjectID   int64
	Changes     types.ChangeSet
	Notes       string
	WatcherIDs  []int64
	Attachments []*types.Attachment
	TimeLog     *TimeLog
	// KeepStatus takes the status in Changes as is, without falling back
	// to the default status. Copies use it to keep the source's status.
	KeepStatus bool
}

// Result is the outcome of a successful mutation.
type Result struct {
	Issue     *types.Issue     `json:"issue"`
	Journal   *types.Journal   `json:"journal,omitempty"`
	Changes   []types.Change   `json:"changes,omitempty"`
	TimeEntry *types.TimeEntry `json:"time_entry,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// Engine applies mutations to issues.
type Engine struct {
	store    storage.Storage
	catalog  Catalog
	oracle   PermissionOracle
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the dispatcher called after each committed mutation.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger overrides the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New returns an engine over the store and reference data.
func New(store storage.Storage, catalog Catalog, oracle PermissionOracle, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		oracle:  oracle,
		now:     time.Now,
		tracer:  telemetry.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = debug.Logger()
	}
	return e
}

// Store returns the storage the engine writes to.
func (e *Engine) Store() storage.Storage { return e.store }

// Catalog returns the reference data.
func (e *Engine) Catalog() Catalog { return e.catalog }

// Now reads the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// Can asks the permission oracle.
func (e *Engine) Can(ctx context.Context, actor types.Actor, issue *types.Issue, c types.Capability) bool {
	return e.oracle.Can(ctx, actor, issue, c)
}

// Apply validates and applies upd to the issue as actor.
//
// Business outcomes are returned as errors wrapping ErrUnauthorized,
// ErrValidationFailed (*ValidationError), ErrConcurrentModification or
// ErrNotFound. Storage failures wrap ErrInfrastructure.
func (e *Engine) Apply(ctx context.Context, issueID int64, actor types.Actor, upd Update) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.apply", trace.WithAttributes(
		attribute.Int64("issue.id", issueID),
		attribute.String("actor", actor.String()),
		attribute.Int("changes", len(upd.Changes)),
	))
	defer span.End()

	var res *Result
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		snapshot, err := tx.GetIssue(ctx, issueID)
		if err != nil {
			if isNotFound(err) {
				return notFound(issueID)
			}
			return err
		}
		m := e.newMutation(ctx, tx, actor, snapshot)
		res, err = m.update(upd)
		return err
	})
	if err = classify(err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err))
		e.log.Debug("issue update rejected", "issue", issueID, "actor", actor.String(), "reason", Reason(err), "err", err)
		return nil, err
	}

	if res.Journal != nil {
		span.SetAttributes(attribute.Int("journal.details", len(res.Journal.Details)))
		e.log.Info("issue updated", "issue", issueID, "actor", actor.String(), "journal", res.Journal.ID, "details", len(res.Journal.Details))
		e.notify(ctx, notification.KindUpdated, res.Issue, res.Journal, actor)
	}
	for _, w := range res.Warnings {
		e.log.Warn("issue update warning", "issue", issueID, "warning", w)
	}
	return res, nil
}

// Create validates and inserts a new issue authored by actor.
func (e *Engine) Create(ctx context.Context, actor types.Actor, n NewIssue) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.create", trace.WithAttributes(
		attribute.Int64("project.id", n.ProjectID),
		attribute.String("actor", actor.String()),
	))
	defer span.End()

	var res *Result
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		m := e.newMutation(ctx, tx, actor, nil)
		var err error
		res, err = m.create(n)
		return err
	})
	if err = classify(err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err))
		e.log.Debug("issue creation rejected", "project", n.ProjectID, "actor", actor.String(), "reason", Reason(err), "err", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("issue.id", res.Issue.ID))
	e.log.Info("issue created", "issue", res.Issue.ID, "project", res.Issue.ProjectID, "actor", actor.String())
	e.notify(ctx, notification.KindCreated, res.Issue, res.Journal, actor)
	for _, w := range res.Warnings {
		e.log.Warn("issue creation warning", "issue", res.Issue.ID, "warning", w)
	}
	return res, nil
}

// Notify forwards a committed event to the notifier, if any. Coordinators
// that write outside Apply/Create (deletions) use it too.
func (e *Engine) Notify(ctx context.Context, kind notification.Kind, issue *types.Issue, journal *types.Journal, actor types.Actor) {
	e.notify(ctx, kind, issue, journal, actor)
}

func (e *Engine) notify(ctx context.Context, kind notification.Kind, issue *types.Issue, journal *types.Journal, actor types.Actor) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, notification.NewEvent(kind, issue, journal, actor, e.now()))
}
