package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/storage/sqlstore"
	"github.com/tracklog/tracklog/internal/types"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleIssue() *types.Issue {
	start := types.Date{Year: 2026, Month: time.March, Day: 1}
	est := decimal.RequireFromString("3.5")
	return &types.Issue{
		ProjectID:      1,
		TrackerID:      1,
		StatusID:       1,
		PriorityID:     4,
		AuthorID:       2,
		Subject:        "Can't print recipes",
		Description:    "Unable to print recipes",
		AssigneeIDs:    []int64{3, 2},
		CategoryID:     types.Int64Ptr(1),
		StartDate:      &start,
		EstimatedHours: &est,
		CustomValues:   map[int64]string{2: "125"},
		WatcherIDs:     []int64{4},
	}
}

func TestCreateAndGetIssue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	issue := sampleIssue()
	if err := store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if issue.ID == 0 || issue.CreatedOn.IsZero() {
		t.Fatalf("CreateIssue did not assign id/timestamps: %+v", issue)
	}

	got, err := store.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got.Subject != issue.Subject || got.Description != issue.Description {
		t.Errorf("text fields = %q/%q", got.Subject, got.Description)
	}
	if types.FormatIDs(got.AssigneeIDs) != "2,3" {
		t.Errorf("AssigneeIDs = %v", got.AssigneeIDs)
	}
	if got.CategoryID == nil || *got.CategoryID != 1 || got.FixedVersionID != nil {
		t.Errorf("references = %v/%v", got.CategoryID, got.FixedVersionID)
	}
	if got.StartDate == nil || got.StartDate.String() != "2026-03-01" || got.DueDate != nil {
		t.Errorf("dates = %v/%v", got.StartDate, got.DueDate)
	}
	if got.EstimatedHours == nil || !got.EstimatedHours.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("EstimatedHours = %v", got.EstimatedHours)
	}
	if got.CustomValue(2) != "125" {
		t.Errorf("CustomValues = %v", got.CustomValues)
	}
	if len(got.WatcherIDs) != 1 || got.WatcherIDs[0] != 4 {
		t.Errorf("WatcherIDs = %v", got.WatcherIDs)
	}
	if !got.SpentHours.IsZero() {
		t.Errorf("SpentHours = %v, want 0", got.SpentHours)
	}
}

func TestGetIssueNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetIssue(context.Background(), 42)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetIssue(42) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateIssueLockVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	issue := sampleIssue()
	if err := store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	stale := issue.Clone()
	issue.Subject = "first writer"
	if err := store.UpdateIssue(ctx, issue); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	if issue.LockVersion != 1 {
		t.Errorf("LockVersion = %d, want 1", issue.LockVersion)
	}

	stale.Subject = "second writer"
	err := store.UpdateIssue(ctx, stale)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("stale UpdateIssue error = %v, want ErrConflict", err)
	}

	got, _ := store.GetIssue(ctx, issue.ID)
	if got.Subject != "first writer" || got.LockVersion != 1 {
		t.Errorf("stored = %q v%d", got.Subject, got.LockVersion)
	}

	missing := issue.Clone()
	missing.ID = 999
	if err := store.UpdateIssue(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateIssue(missing) error = %v, want ErrNotFound", err)
	}
}

func TestClearingOptionalFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	issue := sampleIssue()
	if err := store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	issue.CategoryID = nil
	issue.StartDate = nil
	issue.EstimatedHours = nil
	issue.AssigneeIDs = nil
	issue.CustomValues = nil
	issue.Description = ""
	if err := store.UpdateIssue(ctx, issue); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	got, _ := store.GetIssue(ctx, issue.ID)
	if got.CategoryID != nil || got.StartDate != nil || got.EstimatedHours != nil ||
		len(got.AssigneeIDs) != 0 || len(got.CustomValues) != 0 || got.Description != "" {
		t.Errorf("fields not cleared: %+v", got)
	}
}

func TestJournalsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	issue := sampleIssue()
	if err := store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	old, val := "1", "2"
	j := &types.Journal{
		IssueID: issue.ID,
		UserID:  2,
		Notes:   "Some notes",
		Details: []*types.JournalDetail{
			{Property: types.PropertyAttribute, PropKey: types.FieldStatus, OldValue: &old, Value: &val},
			{Property: types.PropertyCustomField, PropKey: "2", OldValue: &old},
		},
	}
	if err := store.AddJournal(ctx, j); err != nil {
		t.Fatalf("AddJournal: %v", err)
	}
	if j.ID == 0 || j.Details[0].ID == 0 || j.Details[1].JournalID != j.ID {
		t.Fatalf("ids not assigned: %+v", j)
	}

	journals, err := store.GetJournals(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetJournals: %v", err)
	}
	if len(journals) != 1 || len(journals[0].Details) != 2 {
		t.Fatalf("GetJournals = %+v", journals)
	}
	d := journals[0].Details[1]
	if d.Property != types.PropertyCustomField || d.Value != nil || d.OldValue == nil || *d.OldValue != "1" {
		t.Errorf("detail = %+v", d)
	}

	bad := &types.Journal{IssueID: issue.ID, Details: []*types.JournalDetail{{Property: "bogus"}}}
	if err := store.AddJournal(ctx, bad); err == nil {
		t.Error("expected error for unknown detail property")
	}
	// The failed insert rolled back: still one journal.
	journals, _ = store.GetJournals(ctx, issue.ID)
	if len(journals) != 1 {
		t.Errorf("journals after failed insert = %d, want 1", len(journals))
	}
}

func TestTimeEntriesAndSpentHours(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a, b := sampleIssue(), sampleIssue()
	b.ProjectID = 2
	for _, issue := range []*types.Issue{a, b} {
		if err := store.CreateIssue(ctx, issue); err != nil {
			t.Fatalf("CreateIssue: %v", err)
		}
	}
	for _, h := range []string{"4.25", "1"} {
		entry := &types.TimeEntry{
			ProjectID:  1,
			IssueID:    types.Int64Ptr(a.ID),
			UserID:     2,
			Hours:      decimal.RequireFromString(h),
			ActivityID: 9,
			SpentOn:    types.Date{Year: 2026, Month: time.March, Day: 2},
		}
		if err := store.AddTimeEntry(ctx, entry); err != nil {
			t.Fatalf("AddTimeEntry: %v", err)
		}
	}

	got, _ := store.GetIssue(ctx, a.ID)
	if !got.SpentHours.Equal(decimal.RequireFromString("5.25")) {
		t.Errorf("SpentHours = %v, want 5.25", got.SpentHours)
	}

	// Time entries block deletion until disposed of.
	if err := store.DeleteIssue(ctx, a.ID); err == nil {
		t.Error("DeleteIssue with time entries should fail on the foreign key")
	}

	n, err := store.ReassignTimeEntries(ctx, a.ID, b)
	if err != nil || n != 2 {
		t.Fatalf("ReassignTimeEntries = (%d, %v)", n, err)
	}
	entries, _ := store.GetTimeEntries(ctx, b.ID)
	if len(entries) != 2 || entries[0].ProjectID != 2 {
		t.Errorf("reassigned entries = %+v", entries)
	}

	n, err = store.ReassignTimeEntries(ctx, b.ID, nil)
	if err != nil || n != 2 {
		t.Fatalf("ReassignTimeEntries(nil) = (%d, %v)", n, err)
	}
	if err := store.DeleteIssue(ctx, a.ID); err != nil {
		t.Fatalf("DeleteIssue: %v", err)
	}
	if err := store.DeleteIssue(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second DeleteIssue error = %v, want ErrNotFound", err)
	}
}

func TestListAndCountIssues(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	parent := sampleIssue()
	if err := store.CreateIssue(ctx, parent); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	for i := 0; i < 3; i++ {
		child := sampleIssue()
		child.Subject = fmt.Sprintf("child %d", i)
		child.ParentID = types.Int64Ptr(parent.ID)
		if err := store.CreateIssue(ctx, child); err != nil {
			t.Fatalf("CreateIssue: %v", err)
		}
	}

	children, err := store.GetChildren(ctx, parent.ID)
	if err != nil || len(children) != 3 {
		t.Fatalf("GetChildren = (%d, %v)", len(children), err)
	}
	n, err := store.CountIssues(ctx, types.IssueFilter{ProjectID: types.Int64Ptr(1)})
	if err != nil || n != 4 {
		t.Errorf("CountIssues = (%d, %v), want 4", n, err)
	}
	got, err := store.ListIssues(ctx, types.IssueFilter{IDs: []int64{children[2].ID, parent.ID}, Limit: 1})
	if err != nil || len(got) != 1 || got[0].ID != parent.ID {
		t.Errorf("ListIssues(ids, limit 1) = %v, %v", got, err)
	}
}

func TestRunInTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	boom := errors.New("boom")

	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateIssue(ctx, sampleIssue()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTransaction error = %v, want boom", err)
	}
	if n, _ := store.CountIssues(ctx, types.IssueFilter{}); n != 0 {
		t.Errorf("issues after rollback = %d, want 0", n)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic was not re-raised")
			}
		}()
		_ = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			_ = tx.CreateIssue(ctx, sampleIssue())
			panic("callback panic")
		})
	}()
	if n, _ := store.CountIssues(ctx, types.IssueFilter{}); n != 0 {
		t.Errorf("issues after panic = %d, want 0", n)
	}
}

func TestConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.RunInTransaction(ctx, func(tx storage.Transaction) error {
				return tx.CreateIssue(ctx, sampleIssue())
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent transaction: %v", err)
		}
	}
	if n, _ := store.CountIssues(ctx, types.IssueFilter{}); n != 8 {
		t.Errorf("issues = %d, want 8", n)
	}
}

func TestAttachmentsAndWatchers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	issue := sampleIssue()
	if err := store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	a := &types.Attachment{IssueID: issue.ID, Filename: "error281.txt", ContentType: "text/plain", Filesize: 28, AuthorID: 2}
	if err := store.AddAttachment(ctx, a); err != nil {
		t.Fatalf("AddAttachment: %v", err)
	}
	got, err := store.GetAttachments(ctx, issue.ID)
	if err != nil || len(got) != 1 || got[0].Filename != "error281.txt" || got[0].ID != a.ID {
		t.Errorf("GetAttachments = %v, %v", got, err)
	}

	if err := store.SetWatchers(ctx, issue.ID, []int64{3, 2, 3}); err != nil {
		t.Fatalf("SetWatchers: %v", err)
	}
	loaded, _ := store.GetIssue(ctx, issue.ID)
	if types.FormatIDs(loaded.WatcherIDs) != "2,3" {
		t.Errorf("WatcherIDs = %v", loaded.WatcherIDs)
	}
}

func TestIsBusyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy code", sqlite3.BUSY, true},
		{"wrapped busy", fmt.Errorf("begin: %w", sqlite3.BUSY), true},
		{"message", errors.New("failed to begin: SQLITE_BUSY: database is locked"), true},
		{"other", errors.New("no such table: issues"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBusyError(tt.err); got != tt.want {
				t.Errorf("IsBusyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCloseTwice(t *testing.T) {
	store, err := New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("New(:memory:): %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.Close(); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
	if _, err := store.GetIssue(context.Background(), 1); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("GetIssue after Close = %v, want ErrClosed", err)
	}
}
