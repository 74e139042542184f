package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/types"
)

// AddJournal inserts a journal and its details, assigning IDs.
func (o *ops) AddJournal(ctx context.Context, journal *types.Journal) error {
	if journal.CreatedOn.IsZero() {
		journal.CreatedOn = o.now()
	}
	res, err := o.q.ExecContext(ctx,
		`INSERT INTO journals (issue_id, user_id, notes, created_on) VALUES (?, ?, ?, ?)`,
		journal.IssueID, journal.UserID, nullString(journal.Notes), formatTime(journal.CreatedOn))
	if err != nil {
		return wrapDBErrorf(err, "insert journal for issue %d", journal.IssueID)
	}
	if journal.ID, err = res.LastInsertId(); err != nil {
		return wrapDBError("read journal id", err)
	}
	for _, d := range journal.Details {
		if !d.Property.IsValid() {
			return fmt.Errorf("insert journal detail: unknown property %q", d.Property)
		}
		d.JournalID = journal.ID
		res, err := o.q.ExecContext(ctx,
			`INSERT INTO journal_details (journal_id, property, prop_key, old_value, value) VALUES (?, ?, ?, ?, ?)`,
			d.JournalID, string(d.Property), d.PropKey, derefOrNil(d.OldValue), derefOrNil(d.Value))
		if err != nil {
			return wrapDBErrorf(err, "insert journal detail %s", d.PropKey)
		}
		if d.ID, err = res.LastInsertId(); err != nil {
			return wrapDBError("read journal detail id", err)
		}
	}
	return nil
}

// GetJournals returns the journals of an issue with their details, oldest first.
func (o *ops) GetJournals(ctx context.Context, issueID int64) ([]*types.Journal, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, issue_id, user_id, notes, created_on FROM journals WHERE issue_id = ? ORDER BY id`, issueID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get journals of issue %d", issueID)
	}
	var journals []*types.Journal
	byID := make(map[int64]*types.Journal)
	for rows.Next() {
		var (
			j       types.Journal
			notes   sql.NullString
			created string
		)
		if err := rows.Scan(&j.ID, &j.IssueID, &j.UserID, &notes, &created); err != nil {
			_ = rows.Close()
			return nil, wrapDBError("scan journal", err)
		}
		j.Notes = notes.String
		if j.CreatedOn, err = parseTime(created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("journal %d: created_on: %w", j.ID, err)
		}
		journals = append(journals, &j)
		byID[j.ID] = &j
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, wrapDBError("get journals", err)
	}
	_ = rows.Close()
	if len(journals) == 0 {
		return nil, nil
	}

	rows, err = o.q.QueryContext(ctx,
		`SELECT d.id, d.journal_id, d.property, d.prop_key, d.old_value, d.value
		FROM journal_details d JOIN journals j ON j.id = d.journal_id
		WHERE j.issue_id = ? ORDER BY d.id`, issueID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get journal details of issue %d", issueID)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			d          types.JournalDetail
			prop       string
			old, value sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.JournalID, &prop, &d.PropKey, &old, &value); err != nil {
			return nil, wrapDBError("scan journal detail", err)
		}
		d.Property = types.DetailProperty(prop)
		d.OldValue = fromNullString(old)
		d.Value = fromNullString(value)
		if j, ok := byID[d.JournalID]; ok {
			j.Details = append(j.Details, &d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("get journal details", err)
	}
	return journals, nil
}

// AddTimeEntry inserts a time entry and assigns its ID.
func (o *ops) AddTimeEntry(ctx context.Context, entry *types.TimeEntry) error {
	if entry.CreatedOn.IsZero() {
		entry.CreatedOn = o.now()
	}
	res, err := o.q.ExecContext(ctx,
		`INSERT INTO time_entries (project_id, issue_id, user_id, hours, activity_id, comments, spent_on, created_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ProjectID, nullID(entry.IssueID), entry.UserID, entry.Hours.String(), entry.ActivityID,
		nullString(entry.Comments), entry.SpentOn.String(), formatTime(entry.CreatedOn))
	if err != nil {
		return wrapDBError("insert time entry", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return wrapDBError("read time entry id", err)
	}
	return nil
}

// GetTimeEntries returns the time logged on an issue, oldest first.
func (o *ops) GetTimeEntries(ctx context.Context, issueID int64) ([]*types.TimeEntry, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, project_id, issue_id, user_id, hours, activity_id, comments, spent_on, created_on
		FROM time_entries WHERE issue_id = ? ORDER BY id`, issueID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get time entries of issue %d", issueID)
	}
	defer func() { _ = rows.Close() }()
	var entries []*types.TimeEntry
	for rows.Next() {
		var (
			e                       types.TimeEntry
			issue                   sql.NullInt64
			hours, spentOn, created string
			comments                sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &issue, &e.UserID, &hours, &e.ActivityID, &comments, &spentOn, &created); err != nil {
			return nil, wrapDBError("scan time entry", err)
		}
		e.IssueID = fromNullID(issue)
		e.Comments = comments.String
		if e.Hours, err = decimal.NewFromString(hours); err != nil {
			return nil, fmt.Errorf("time entry %d: hours: %w", e.ID, err)
		}
		if e.SpentOn, err = types.ParseDate(spentOn); err != nil {
			return nil, fmt.Errorf("time entry %d: spent_on: %w", e.ID, err)
		}
		if e.CreatedOn, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("time entry %d: created_on: %w", e.ID, err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteTimeEntries removes all time entries of the issue.
func (o *ops) DeleteTimeEntries(ctx context.Context, issueID int64) (int64, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM time_entries WHERE issue_id = ?`, issueID)
	if err != nil {
		return 0, wrapDBErrorf(err, "delete time entries of issue %d", issueID)
	}
	return res.RowsAffected()
}

// ReassignTimeEntries moves the issue's time entries to another issue (and
// its project), or detaches them when to is nil.
func (o *ops) ReassignTimeEntries(ctx context.Context, issueID int64, to *types.Issue) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if to == nil {
		res, err = o.q.ExecContext(ctx, `UPDATE time_entries SET issue_id = NULL WHERE issue_id = ?`, issueID)
	} else {
		res, err = o.q.ExecContext(ctx,
			`UPDATE time_entries SET issue_id = ?, project_id = ? WHERE issue_id = ?`,
			to.ID, to.ProjectID, issueID)
	}
	if err != nil {
		return 0, wrapDBErrorf(err, "reassign time entries of issue %d", issueID)
	}
	return res.RowsAffected()
}

// AddAttachment inserts attachment metadata and assigns its ID.
func (o *ops) AddAttachment(ctx context.Context, a *types.Attachment) error {
	if a.CreatedOn.IsZero() {
		a.CreatedOn = o.now()
	}
	res, err := o.q.ExecContext(ctx,
		`INSERT INTO attachments (issue_id, filename, content_type, filesize, author_id, created_on)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.IssueID, a.Filename, nullString(a.ContentType), a.Filesize, a.AuthorID, formatTime(a.CreatedOn))
	if err != nil {
		return wrapDBErrorf(err, "insert attachment %s", a.Filename)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return wrapDBError("read attachment id", err)
	}
	return nil
}

// GetAttachments returns the attachment metadata of an issue.
func (o *ops) GetAttachments(ctx context.Context, issueID int64) ([]*types.Attachment, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, issue_id, filename, content_type, filesize, author_id, created_on
		FROM attachments WHERE issue_id = ? ORDER BY id`, issueID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get attachments of issue %d", issueID)
	}
	defer func() { _ = rows.Close() }()
	var out []*types.Attachment
	for rows.Next() {
		var (
			a           types.Attachment
			contentType sql.NullString
			created     string
		)
		if err := rows.Scan(&a.ID, &a.IssueID, &a.Filename, &contentType, &a.Filesize, &a.AuthorID, &created); err != nil {
			return nil, wrapDBError("scan attachment", err)
		}
		a.ContentType = contentType.String
		if a.CreatedOn, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("attachment %d: created_on: %w", a.ID, err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
