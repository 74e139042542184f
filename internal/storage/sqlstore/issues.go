package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/validation"
)

// Verify ops implements storage.Transaction at compile time
var _ storage.Transaction = (*ops)(nil)

// ops runs the queries against either the pool or a transaction connection.
type ops struct {
	q   queryer
	now func() time.Time
}

const issueColumns = `id, project_id, tracker_id, status_id, priority_id, author_id,
	subject, description, assignee_ids, category_id, fixed_version_id,
	start_date, due_date, estimated_hours, parent_id, custom_values,
	billable, closed_on, created_on, updated_on, lock_version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var (
		issue                                      types.Issue
		description, assignees, startDate, dueDate sql.NullString
		estimated, customValues, closedOn          sql.NullString
		category, version, parent                  sql.NullInt64
		billable                                   int64
		created, updated                           string
	)
	err := row.Scan(
		&issue.ID, &issue.ProjectID, &issue.TrackerID, &issue.StatusID, &issue.PriorityID, &issue.AuthorID,
		&issue.Subject, &description, &assignees, &category, &version,
		&startDate, &dueDate, &estimated, &parent, &customValues,
		&billable, &closedOn, &created, &updated, &issue.LockVersion,
	)
	if err != nil {
		return nil, err
	}

	issue.Description = description.String
	issue.Billable = billable != 0
	issue.CategoryID = fromNullID(category)
	issue.FixedVersionID = fromNullID(version)
	issue.ParentID = fromNullID(parent)

	if assignees.Valid && assignees.String != "" {
		if issue.AssigneeIDs, err = validation.ParseIDList(assignees.String); err != nil {
			return nil, fmt.Errorf("issue %d: assignee_ids: %w", issue.ID, err)
		}
	}
	if issue.StartDate, err = parseNullDate(startDate); err != nil {
		return nil, fmt.Errorf("issue %d: start_date: %w", issue.ID, err)
	}
	if issue.DueDate, err = parseNullDate(dueDate); err != nil {
		return nil, fmt.Errorf("issue %d: due_date: %w", issue.ID, err)
	}
	if estimated.Valid && estimated.String != "" {
		d, err := decimal.NewFromString(estimated.String)
		if err != nil {
			return nil, fmt.Errorf("issue %d: estimated_hours: %w", issue.ID, err)
		}
		issue.EstimatedHours = &d
	}
	if customValues.Valid && customValues.String != "" {
		if err := json.Unmarshal([]byte(customValues.String), &issue.CustomValues); err != nil {
			return nil, fmt.Errorf("issue %d: custom_values: %w", issue.ID, err)
		}
	}
	if closedOn.Valid && closedOn.String != "" {
		t, err := parseTime(closedOn.String)
		if err != nil {
			return nil, fmt.Errorf("issue %d: closed_on: %w", issue.ID, err)
		}
		issue.ClosedOn = &t
	}
	if issue.CreatedOn, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("issue %d: created_on: %w", issue.ID, err)
	}
	if issue.UpdatedOn, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("issue %d: updated_on: %w", issue.ID, err)
	}
	return &issue, nil
}

// issueValues returns the column values of issue in issueColumns order,
// without the id.
func issueValues(issue *types.Issue) ([]any, error) {
	var customValues any
	if len(issue.CustomValues) > 0 {
		data, err := json.Marshal(issue.CustomValues)
		if err != nil {
			return nil, fmt.Errorf("encode custom values: %w", err)
		}
		customValues = string(data)
	}
	var assignees any
	if len(issue.AssigneeIDs) > 0 {
		assignees = types.FormatIDs(issue.AssigneeIDs)
	}
	var estimated any
	if issue.EstimatedHours != nil {
		estimated = issue.EstimatedHours.String()
	}
	var closedOn any
	if issue.ClosedOn != nil {
		closedOn = formatTime(*issue.ClosedOn)
	}
	billable := 0
	if issue.Billable {
		billable = 1
	}
	return []any{
		issue.ProjectID, issue.TrackerID, issue.StatusID, issue.PriorityID, issue.AuthorID,
		issue.Subject, nullString(issue.Description), assignees, nullID(issue.CategoryID), nullID(issue.FixedVersionID),
		nullDate(issue.StartDate), nullDate(issue.DueDate), estimated, nullID(issue.ParentID), customValues,
		billable, closedOn, formatTime(issue.CreatedOn), formatTime(issue.UpdatedOn), issue.LockVersion,
	}, nil
}

// GetIssue loads one issue with its derived spent hours and watchers.
func (o *ops) GetIssue(ctx context.Context, id int64) (*types.Issue, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get issue %d", id)
	}
	if err := o.hydrate(ctx, []*types.Issue{issue}); err != nil {
		return nil, err
	}
	return issue, nil
}

func filterClause(filter types.IssueFilter) (string, []any) {
	var where []string
	var args []any
	if filter.ProjectID != nil {
		where = append(where, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.ParentID != nil {
		where = append(where, "parent_id = ?")
		args = append(args, *filter.ParentID)
	}
	if filter.StatusID != nil {
		where = append(where, "status_id = ?")
		args = append(args, *filter.StatusID)
	}
	if len(filter.IDs) > 0 {
		marks := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			marks[i] = "?"
			args = append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(marks, ", ")+")")
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListIssues returns the issues matching filter, ordered by id.
func (o *ops) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	clause, args := filterClause(filter)
	query := `SELECT ` + issueColumns + ` FROM issues` + clause + ` ORDER BY id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list issues", err)
	}
	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			_ = rows.Close()
			return nil, wrapDBError("scan issue", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, wrapDBError("list issues", err)
	}
	// Close before hydrating: a transaction connection runs one statement at a time.
	_ = rows.Close()
	if err := o.hydrate(ctx, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// CountIssues counts the issues matching filter.
func (o *ops) CountIssues(ctx context.Context, filter types.IssueFilter) (int, error) {
	clause, args := filterClause(filter)
	var n int
	if err := o.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`+clause, args...).Scan(&n); err != nil {
		return 0, wrapDBError("count issues", err)
	}
	return n, nil
}

// GetChildren returns the direct children of an issue.
func (o *ops) GetChildren(ctx context.Context, parentID int64) ([]*types.Issue, error) {
	return o.ListIssues(ctx, types.IssueFilter{ParentID: &parentID})
}

// hydrate fills the derived SpentHours and the WatcherIDs.
func (o *ops) hydrate(ctx context.Context, issues []*types.Issue) error {
	for _, issue := range issues {
		entries, err := o.GetTimeEntries(ctx, issue.ID)
		if err != nil {
			return err
		}
		issue.SpentHours = decimal.Zero
		for _, e := range entries {
			issue.SpentHours = issue.SpentHours.Add(e.Hours)
		}
		watchers, err := o.watchers(ctx, issue.ID)
		if err != nil {
			return err
		}
		issue.WatcherIDs = watchers
	}
	return nil
}

func (o *ops) watchers(ctx context.Context, issueID int64) ([]int64, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT user_id FROM issue_watchers WHERE issue_id = ? ORDER BY user_id`, issueID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get watchers of issue %d", issueID)
	}
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan watcher", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateIssue inserts the issue and assigns its ID. CreatedOn is kept when
// already set so imports preserve history.
func (o *ops) CreateIssue(ctx context.Context, issue *types.Issue) error {
	now := o.now()
	if issue.CreatedOn.IsZero() {
		issue.CreatedOn = now
	}
	issue.UpdatedOn = now
	issue.LockVersion = 0

	values, err := issueValues(issue)
	if err != nil {
		return err
	}
	var id any
	if issue.ID != 0 {
		id = issue.ID
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)+1), ", ")
	res, err := o.q.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (`+marks+`)`,
		append([]any{id}, values...)...)
	if err != nil {
		return wrapDBError("insert issue", err)
	}
	if issue.ID == 0 {
		if issue.ID, err = res.LastInsertId(); err != nil {
			return wrapDBError("read issue id", err)
		}
	}
	if len(issue.WatcherIDs) > 0 {
		return o.SetWatchers(ctx, issue.ID, issue.WatcherIDs)
	}
	return nil
}

// UpdateIssue writes the issue guarded by its lock version.
func (o *ops) UpdateIssue(ctx context.Context, issue *types.Issue) error {
	issue.UpdatedOn = o.now()
	values, err := issueValues(issue)
	if err != nil {
		return err
	}
	// Drop lock_version from the SET list; it is bumped in SQL.
	values = values[:len(values)-1]
	cols := strings.Split(issueColumns, ",")[1:]
	sets := make([]string, 0, len(cols))
	for _, c := range cols[:len(cols)-1] {
		sets = append(sets, strings.TrimSpace(c)+" = ?")
	}
	query := `UPDATE issues SET ` + strings.Join(sets, ", ") +
		`, lock_version = lock_version + 1 WHERE id = ? AND lock_version = ?`
	res, err := o.q.ExecContext(ctx, query, append(values, issue.ID, issue.LockVersion)...)
	if err != nil {
		return wrapDBErrorf(err, "update issue %d", issue.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBErrorf(err, "update issue %d", issue.ID)
	}
	if n == 0 {
		var stored int
		err := o.q.QueryRowContext(ctx, `SELECT lock_version FROM issues WHERE id = ?`, issue.ID).Scan(&stored)
		if err != nil {
			return wrapDBErrorf(err, "update issue %d", issue.ID)
		}
		return fmt.Errorf("update issue %d (lock version %d, stored %d): %w",
			issue.ID, issue.LockVersion, stored, storage.ErrConflict)
	}
	issue.LockVersion++
	return nil
}

// DeleteIssue removes the issue row and everything hanging off it except
// time entries.
func (o *ops) DeleteIssue(ctx context.Context, id int64) error {
	stmts := []string{
		`DELETE FROM journal_details WHERE journal_id IN (SELECT id FROM journals WHERE issue_id = ?)`,
		`DELETE FROM journals WHERE issue_id = ?`,
		`DELETE FROM attachments WHERE issue_id = ?`,
		`DELETE FROM issue_watchers WHERE issue_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := o.q.ExecContext(ctx, stmt, id); err != nil {
			return wrapDBErrorf(err, "delete issue %d", id)
		}
	}
	res, err := o.q.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id)
	if err != nil {
		return wrapDBErrorf(err, "delete issue %d", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete issue %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// SetWatchers replaces the watcher list of an issue.
func (o *ops) SetWatchers(ctx context.Context, issueID int64, userIDs []int64) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM issue_watchers WHERE issue_id = ?`, issueID); err != nil {
		return wrapDBErrorf(err, "clear watchers of issue %d", issueID)
	}
	ids := append([]int64(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if _, err := o.q.ExecContext(ctx, `INSERT INTO issue_watchers (issue_id, user_id) VALUES (?, ?)`, issueID, id); err != nil {
			return wrapDBErrorf(err, "add watcher %d to issue %d", id, issueID)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullDate(s sql.NullString) (*types.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := types.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullDate(d *types.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullID(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNullID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return types.Int64Ptr(n.Int64)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
