// Package tracklog is the public API for programs that embed the issue
// mutation engine instead of driving it through the tl command.
//
// Open a store, load a workflow catalog, then build an Engine:
//
//	store, err := tracklog.OpenSQLite(ctx, ".tracklog/tracklog.db")
//	catalog, err := tracklog.LoadCatalog(".tracklog/workflow.yaml")
//	eng := tracklog.NewEngine(store, catalog)
//	res, err := eng.Apply(ctx, 12, catalog.Actor("jsmith"), tracklog.Update{...})
package tracklog

import (
	"context"

	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/storage/sqlite"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/workflow"
)

// Core types
type (
	Issue         = types.Issue
	Journal       = types.Journal
	JournalDetail = types.JournalDetail
	Change        = types.Change
	ChangeSet     = types.ChangeSet
	Actor         = types.Actor
	TimeEntry     = types.TimeEntry
)

// Engine types
type (
	Engine   = engine.Engine
	Update   = engine.Update
	NewIssue = engine.NewIssue
	TimeLog  = engine.TimeLog
	Result   = engine.Result
	Option   = engine.Option
	Catalog  = workflow.Catalog
	Storage  = storage.Storage
	Failure  = engine.Failure
)

// Error categories, matched with errors.Is.
var (
	ErrUnauthorized           = engine.ErrUnauthorized
	ErrValidationFailed       = engine.ErrValidationFailed
	ErrConcurrentModification = engine.ErrConcurrentModification
	ErrPartialFailure         = engine.ErrPartialFailure
	ErrInfrastructure         = engine.ErrInfrastructure
	ErrNotFound               = engine.ErrNotFound
)

// Engine options
var (
	WithNotifier = engine.WithNotifier
	WithClock    = engine.WithClock
	WithLogger   = engine.WithLogger
)

// OpenSQLite opens (and creates when missing) a SQLite issue database.
func OpenSQLite(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// LoadCatalog reads a workflow catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	return workflow.Load(path)
}

// DefaultCatalog returns the starter catalog written by `tl init`.
func DefaultCatalog() (*Catalog, error) {
	return workflow.Default()
}

// NewEngine builds an engine whose permissions come from the catalog's
// roles and memberships.
func NewEngine(store Storage, catalog *Catalog, opts ...Option) *Engine {
	return engine.New(store, catalog, workflow.NewOracle(catalog), opts...)
}
