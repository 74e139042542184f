package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/types"
)

// Verify Store implements storage.Storage at compile time
var _ storage.Storage = (*Store)(nil)

// retryMaxElapsed bounds how long a transient lock or connection failure is
// retried before it surfaces to the caller.
const retryMaxElapsed = 30 * time.Second

// queryer is the subset of *sql.DB and *sql.Conn the queries need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a storage.Storage backed by a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect *Dialect
	path    string
	closed  atomic.Bool
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_on/updated_on stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an open pool and applies the dialect's schema.
func New(ctx context.Context, db *sql.DB, dialect *Dialect, path string, opts ...Option) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		path:    path,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, stmt := range dialect.Schema {
		err := s.withRetry(ctx, func() error {
			_, err := db.ExecContext(ctx, stmt)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s schema: %w", dialect.Name, err)
		}
	}
	return s, nil
}

// DB exposes the underlying pool for diagnostics and tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns where the data lives.
func (s *Store) Path() string { return s.path }

// Close closes the pool. Subsequent calls return storage.ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return storage.ErrClosed
	}
	if s.dialect.OnClose != nil {
		s.dialect.OnClose(s.db)
	}
	return s.db.Close()
}

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// withRetry runs op, retrying while the dialect classifies the failure as
// transient.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if s.dialect.retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(newRetryBackoff(), ctx))
}

func (s *Store) ops() *ops {
	return &ops{q: s.db, now: s.now}
}

// read runs a query against the pool with retry.
func read[T any](ctx context.Context, s *Store, fn func(o *ops) (T, error)) (T, error) {
	var out T
	if s.closed.Load() {
		return out, storage.ErrClosed
	}
	err := s.withRetry(ctx, func() error {
		var err error
		out, err = fn(s.ops())
		return err
	})
	return out, err
}

// RunInTransaction executes fn within a database transaction.
//
// Transaction lifecycle:
//  1. Acquire dedicated connection from pool
//  2. Begin with the dialect's statement, retrying on lock contention
//  3. Execute user function with Transaction interface
//  4. On success: COMMIT
//  5. On error or panic: ROLLBACK
//
// Panic safety: If the callback panics, the transaction is rolled back
// and the panic is re-raised to the caller.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	err = s.withRetry(ctx, func() error {
		_, err := conn.ExecContext(ctx, s.dialect.Begin)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so the rollback completes even if ctx is cancelled
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := fn(&ops{q: conn, now: s.now}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// write runs a single mutation in its own transaction.
func (s *Store) write(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return s.RunInTransaction(ctx, fn)
}

// GetIssue returns the issue or an error wrapping storage.ErrNotFound.
func (s *Store) GetIssue(ctx context.Context, id int64) (*types.Issue, error) {
	return read(ctx, s, func(o *ops) (*types.Issue, error) { return o.GetIssue(ctx, id) })
}

// ListIssues returns the issues matching filter, ordered by id.
func (s *Store) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	return read(ctx, s, func(o *ops) ([]*types.Issue, error) { return o.ListIssues(ctx, filter) })
}

// CountIssues counts the issues matching filter (Limit is ignored).
func (s *Store) CountIssues(ctx context.Context, filter types.IssueFilter) (int, error) {
	return read(ctx, s, func(o *ops) (int, error) { return o.CountIssues(ctx, filter) })
}

// GetChildren returns the direct children of an issue.
func (s *Store) GetChildren(ctx context.Context, parentID int64) ([]*types.Issue, error) {
	return read(ctx, s, func(o *ops) ([]*types.Issue, error) { return o.GetChildren(ctx, parentID) })
}

// GetJournals returns the journals of an issue, oldest first.
func (s *Store) GetJournals(ctx context.Context, issueID int64) ([]*types.Journal, error) {
	return read(ctx, s, func(o *ops) ([]*types.Journal, error) { return o.GetJournals(ctx, issueID) })
}

// GetTimeEntries returns the time logged on an issue.
func (s *Store) GetTimeEntries(ctx context.Context, issueID int64) ([]*types.TimeEntry, error) {
	return read(ctx, s, func(o *ops) ([]*types.TimeEntry, error) { return o.GetTimeEntries(ctx, issueID) })
}

// GetAttachments returns the attachment metadata of an issue.
func (s *Store) GetAttachments(ctx context.Context, issueID int64) ([]*types.Attachment, error) {
	return read(ctx, s, func(o *ops) ([]*types.Attachment, error) { return o.GetAttachments(ctx, issueID) })
}

func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue) error {
	return s.write(ctx, func(tx storage.Transaction) error { return tx.CreateIssue(ctx, issue) })
}

func (s *Store) UpdateIssue(ctx context.Context, issue *types.Issue) error {
	return s.write(ctx, func(tx storage.Transaction) error { return tx.UpdateIssue(ctx, issue) })
}

func (s *Store) DeleteIssue(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx storage.Transaction) error { return tx.DeleteIssue(ctx, id) })
}

func (s *Store) AddJournal(ctx context.Context, journal *types.Journal) error {
	return s.write(ctx, func(tx storage.Transaction) error { return tx.AddJournal(ctx, journal) })
}

func (s *Store) AddTimeEntry(ctx context.Context, entry *types.TimeEntry) error {
	return s.write(ctx, func(tx storage.Transaction) error { return tx.AddTimeEntry(ctx, entry) })
}

func (s *Store) AddAttachment(ctx context.Context, attachment *types.Attachment) error {
	return s.write(ctx, func(tx storage.Transaction) error { return tx.AddAttachment(ctx, attachment) })
}

func (s *Store) SetWatchers(ctx context.Context, issueID int64, userIDs []int64) error {
	return s.write(ctx, func(tx storage.Transaction) error { return tx.SetWatchers(ctx, issueID, userIDs) })
}

func (s *Store) DeleteTimeEntries(ctx context.Context, issueID int64) (int64, error) {
	var n int64
	err := s.write(ctx, func(tx storage.Transaction) error {
		var err error
		n, err = tx.DeleteTimeEntries(ctx, issueID)
		return err
	})
	return n, err
}

func (s *Store) ReassignTimeEntries(ctx context.Context, issueID int64, to *types.Issue) (int64, error) {
	var n int64
	err := s.write(ctx, func(tx storage.Transaction) error {
		var err error
		n, err = tx.ReassignTimeEntries(ctx, issueID, to)
		return err
	})
	return n, err
}

// wrapDBError wraps a database error with operation context.
// It converts sql.ErrNoRows to storage.ErrNotFound for consistent error handling.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapDBErrorf is wrapDBError with a formatted operation.
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return wrapDBError(fmt.Sprintf(format, args...), err)
}
