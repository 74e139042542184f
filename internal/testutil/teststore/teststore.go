// Package teststore provides SQLite-backed test helpers for engine and
// coordinator tests.
//
// Each Env owns an isolated database file under t.TempDir() and the
// embedded default workflow catalog. All helper methods operate through the
// storage.Storage interface so tests stay backend-agnostic.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    env := teststore.NewEnv(t)
//	    issue := env.CreateIssue("Cannot print recipes")
//	    got := env.Reload(issue.ID)
//	}
package teststore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/storage/sqlite"
	"github.com/tracklog/tracklog/internal/storage/sqlstore"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/workflow"
)

// Now is the fixed clock of every Env store.
var Now = time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

// New creates an isolated SQLite-backed storage.Storage for a single test
// or benchmark. The store is closed when the test completes.
func New(t testing.TB) storage.Storage {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "tracklog.db"),
		sqlstore.WithClock(func() time.Time { return Now }))
	if err != nil {
		t.Fatalf("teststore: failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Env provides a test environment with a store and the default catalog.
type Env struct {
	t       *testing.T
	Store   storage.Storage
	Catalog *workflow.Catalog
	Oracle  *workflow.Oracle
	Ctx     context.Context
}

// NewEnv creates a new test environment.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	cat, err := workflow.Default()
	if err != nil {
		t.Fatalf("teststore: default catalog: %v", err)
	}
	return &Env{
		t:       t,
		Store:   New(t),
		Catalog: cat,
		Oracle:  workflow.NewOracle(cat),
		Ctx:     context.Background(),
	}
}

// Actor resolves a login from the default catalog (admin, jsmith, dlopper,
// rhill, miscuser8).
func (e *Env) Actor(login string) types.Actor {
	return e.Catalog.Actor(login)
}

// ---------------------------------------------------------------------------
// Issue helpers
// ---------------------------------------------------------------------------

// IssueOption adjusts an issue before it is stored.
type IssueOption func(*types.Issue)

// InProject sets project and tracker.
func InProject(projectID, trackerID int64) IssueOption {
	return func(i *types.Issue) { i.ProjectID, i.TrackerID = projectID, trackerID }
}

// WithStatus sets the status.
func WithStatus(id int64) IssueOption {
	return func(i *types.Issue) { i.StatusID = id }
}

// WithPriority sets the priority.
func WithPriority(id int64) IssueOption {
	return func(i *types.Issue) { i.PriorityID = id }
}

// WithParent sets the parent issue.
func WithParent(id int64) IssueOption {
	return func(i *types.Issue) { i.ParentID = types.Int64Ptr(id) }
}

// WithAssignees sets the assignees.
func WithAssignees(ids ...int64) IssueOption {
	return func(i *types.Issue) { i.AssigneeIDs = ids }
}

// WithDates sets start and due dates (YYYY-MM-DD, blank for none).
func WithDates(start, due string) IssueOption {
	return func(i *types.Issue) {
		i.StartDate = parseDate(start)
		i.DueDate = parseDate(due)
	}
}

// WithEstimate sets estimated hours.
func WithEstimate(hours string) IssueOption {
	return func(i *types.Issue) {
		d := decimal.RequireFromString(hours)
		i.EstimatedHours = &d
	}
}

// WithCustomValue sets one custom field value.
func WithCustomValue(fieldID int64, value string) IssueOption {
	return func(i *types.Issue) {
		if i.CustomValues == nil {
			i.CustomValues = map[int64]string{}
		}
		i.CustomValues[fieldID] = value
	}
}

// WithWatchers sets the watchers.
func WithWatchers(ids ...int64) IssueOption {
	return func(i *types.Issue) { i.WatcherIDs = ids }
}

func parseDate(s string) *types.Date {
	if s == "" {
		return nil
	}
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

// CreateIssue stores an issue directly, bypassing the engine. Defaults:
// project 1 (ecookbook), tracker 1 (Bug), status 1 (New), priority 5
// (Normal), author 2 (jsmith).
func (e *Env) CreateIssue(subject string, opts ...IssueOption) *types.Issue {
	e.t.Helper()
	issue := &types.Issue{
		ProjectID:  1,
		TrackerID:  1,
		StatusID:   1,
		PriorityID: 5,
		AuthorID:   2,
		Subject:    subject,
	}
	for _, opt := range opts {
		opt(issue)
	}
	if err := e.Store.CreateIssue(e.Ctx, issue); err != nil {
		e.t.Fatalf("CreateIssue(%q) failed: %v", subject, err)
	}
	return issue
}

// Reload reads an issue back from the store.
func (e *Env) Reload(id int64) *types.Issue {
	e.t.Helper()
	issue, err := e.Store.GetIssue(e.Ctx, id)
	if err != nil {
		e.t.Fatalf("GetIssue(%d) failed: %v", id, err)
	}
	return issue
}

// Journals returns the journals of an issue, oldest first.
func (e *Env) Journals(id int64) []*types.Journal {
	e.t.Helper()
	journals, err := e.Store.GetJournals(e.Ctx, id)
	if err != nil {
		e.t.Fatalf("GetJournals(%d) failed: %v", id, err)
	}
	return journals
}

// TimeEntries returns the time entries of an issue.
func (e *Env) TimeEntries(id int64) []*types.TimeEntry {
	e.t.Helper()
	entries, err := e.Store.GetTimeEntries(e.Ctx, id)
	if err != nil {
		e.t.Fatalf("GetTimeEntries(%d) failed: %v", id, err)
	}
	return entries
}

// LogTime stores a time entry for issue by user.
func (e *Env) LogTime(issue *types.Issue, userID int64, hours string) *types.TimeEntry {
	e.t.Helper()
	entry := &types.TimeEntry{
		ProjectID:  issue.ProjectID,
		IssueID:    types.Int64Ptr(issue.ID),
		UserID:     userID,
		Hours:      decimal.RequireFromString(hours),
		ActivityID: 10,
		SpentOn:    types.DateOf(Now),
	}
	if err := e.Store.AddTimeEntry(e.Ctx, entry); err != nil {
		e.t.Fatalf("AddTimeEntry(#%d) failed: %v", issue.ID, err)
	}
	return entry
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// Fixtures are the issues created by Seed.
type Fixtures struct {
	// PrintBug is a Bug in ecookbook, priority Low, category Printing.
	PrintBug *types.Issue
	// Feature is a Feature request in ecookbook, status Assigned, assigned
	// to dlopper, targeted at the locked version 1.0.
	Feature *types.Issue
	// Recipe is a Bug in ecookbook with two children.
	Recipe *types.Issue
	// ChildA and ChildB are children of Recipe with dates and estimates.
	ChildA, ChildB *types.Issue
	// Support is a Support request in onlinestore with a customer set.
	Support *types.Issue
}

// Seed stores a small, fixed set of issues and returns them.
func (e *Env) Seed() *Fixtures {
	e.t.Helper()
	f := &Fixtures{}
	f.PrintBug = e.CreateIssue("Cannot print recipes",
		WithPriority(4),
		func(i *types.Issue) {
			i.CategoryID = types.Int64Ptr(1)
			i.Description = "Unable to print recipes"
		},
		WithCustomValue(2, "125"),
		WithWatchers(3))
	f.Feature = e.CreateIssue("Add ingredients categories",
		InProject(1, 2),
		WithStatus(2),
		WithAssignees(3),
		func(i *types.Issue) { i.FixedVersionID = types.Int64Ptr(2) })
	f.Recipe = e.CreateIssue("Error 281 when updating a recipe",
		WithDates("2026-03-01", "2026-03-20"),
		WithEstimate("8"))
	f.ChildA = e.CreateIssue("Reproduce error 281",
		WithParent(f.Recipe.ID),
		WithDates("2026-03-01", "2026-03-05"),
		WithEstimate("3"))
	f.ChildB = e.CreateIssue("Fix error 281",
		WithParent(f.Recipe.ID),
		WithDates("2026-03-06", "2026-03-20"),
		WithEstimate("5"))
	f.Support = e.CreateIssue("Customer portal is down",
		InProject(2, 3),
		WithCustomValue(6, "ACME"))
	e.LogTime(f.PrintBug, 2, "2.5")
	return f
}
