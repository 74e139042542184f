// Package storage provides shared types for issue storage.
//
// The concrete implementations live in the sqlite and dolt sub-packages,
// both built on the shared SQL layer in sqlstore. This package holds the
// interfaces and sentinel errors referenced by the backends and by their
// consumers (engine, coordinators, cmd/tl).
package storage

import (
	"context"
	"errors"

	"github.com/tracklog/tracklog/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by UpdateIssue when the stored lock version no
// longer matches the one the caller loaded: someone else wrote the issue
// in between.
var ErrConflict = errors.New("conflict: issue was modified concurrently")

// ErrClosed is returned when the store has already been closed.
var ErrClosed = errors.New("storage closed")

// Reader holds the queries available both on the store and inside a
// transaction (for read-your-writes).
type Reader interface {
	GetIssue(ctx context.Context, id int64) (*types.Issue, error)
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	CountIssues(ctx context.Context, filter types.IssueFilter) (int, error)
	GetChildren(ctx context.Context, parentID int64) ([]*types.Issue, error)
	GetJournals(ctx context.Context, issueID int64) ([]*types.Journal, error)
	GetTimeEntries(ctx context.Context, issueID int64) ([]*types.TimeEntry, error)
	GetAttachments(ctx context.Context, issueID int64) ([]*types.Attachment, error)
}

// Writer holds the mutations. Every method on a Storage runs in its own
// implicit transaction; inside RunInTransaction they share one.
type Writer interface {
	// CreateIssue assigns ID, CreatedOn, UpdatedOn and LockVersion.
	CreateIssue(ctx context.Context, issue *types.Issue) error

	// UpdateIssue writes every column of issue if the stored lock version
	// equals issue.LockVersion, then increments issue.LockVersion.
	// Returns ErrConflict otherwise, ErrNotFound if the row is gone.
	UpdateIssue(ctx context.Context, issue *types.Issue) error

	// DeleteIssue removes the issue with its journals, attachments and
	// watchers. Time entries must be disposed of by the caller first.
	DeleteIssue(ctx context.Context, id int64) error

	// AddJournal assigns IDs to the journal and its details.
	AddJournal(ctx context.Context, journal *types.Journal) error

	AddTimeEntry(ctx context.Context, entry *types.TimeEntry) error
	AddAttachment(ctx context.Context, attachment *types.Attachment) error
	SetWatchers(ctx context.Context, issueID int64, userIDs []int64) error

	// DeleteTimeEntries removes all time entries of the issue.
	DeleteTimeEntries(ctx context.Context, issueID int64) (int64, error)

	// ReassignTimeEntries moves the issue's time entries to another issue,
	// or detaches them (keeping their project) when to is nil.
	ReassignTimeEntries(ctx context.Context, issueID int64, to *types.Issue) (int64, error)
}

// Transaction is the view of the store inside RunInTransaction.
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same database connection
//   - Changes are not visible to other connections until commit
//   - If any operation returns an error, the transaction is rolled back
//   - If the callback function panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// # Example Usage
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if err := tx.UpdateIssue(ctx, issue); err != nil {
//	        return err // Triggers rollback
//	    }
//	    return tx.AddJournal(ctx, journal) // nil triggers commit
//	})
type Transaction interface {
	Reader
	Writer
}

// Storage is the interface satisfied by *sqlstore.Store. Consumers depend on
// it rather than on the concrete type so that decorators (telemetry) and
// alternative backends can be substituted.
type Storage interface {
	Reader
	Writer

	// RunInTransaction executes fn in a single database transaction.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Path describes where the data lives (file path or server DSN without
	// credentials), for diagnostics.
	Path() string

	Close() error
}
