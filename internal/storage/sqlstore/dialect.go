// Package sqlstore implements storage.Storage over database/sql. The sqlite
// and dolt packages supply the driver, the connection and a Dialect.
package sqlstore

import "database/sql"

// Dialect captures what differs between the SQL engines we run on.
type Dialect struct {
	// Name is used in error messages and telemetry attributes.
	Name string

	// Schema statements, executed in order on open. They must be idempotent.
	Schema []string

	// Begin opens a write transaction on a dedicated connection.
	Begin string

	// Retryable reports whether err is a transient lock or connection
	// failure worth retrying with backoff.
	Retryable func(err error) bool

	// OnClose runs before the pool is closed.
	OnClose func(db *sql.DB)
}

func (d *Dialect) retryable(err error) bool {
	return err != nil && d.Retryable != nil && d.Retryable(err)
}

// SQLiteSchema is the schema used by the sqlite backend.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		tracker_id INTEGER NOT NULL,
		status_id INTEGER NOT NULL,
		priority_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		subject TEXT NOT NULL,
		description TEXT,
		assignee_ids TEXT,
		category_id INTEGER,
		fixed_version_id INTEGER,
		start_date TEXT,
		due_date TEXT,
		estimated_hours TEXT,
		parent_id INTEGER,
		custom_values TEXT,
		billable INTEGER NOT NULL DEFAULT 0,
		closed_on TEXT,
		created_on TEXT NOT NULL,
		updated_on TEXT NOT NULL,
		lock_version INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_parent ON issues(parent_id)`,
	`CREATE TABLE IF NOT EXISTS issue_watchers (
		issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		PRIMARY KEY (issue_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS journals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		notes TEXT,
		created_on TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_journals_issue ON journals(issue_id)`,
	`CREATE TABLE IF NOT EXISTS journal_details (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		journal_id INTEGER NOT NULL REFERENCES journals(id) ON DELETE CASCADE,
		property TEXT NOT NULL,
		prop_key TEXT NOT NULL,
		old_value TEXT,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS time_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		issue_id INTEGER REFERENCES issues(id),
		user_id INTEGER NOT NULL,
		hours TEXT NOT NULL,
		activity_id INTEGER NOT NULL,
		comments TEXT,
		spent_on TEXT NOT NULL,
		created_on TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_time_entries_issue ON time_entries(issue_id)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		content_type TEXT,
		filesize INTEGER NOT NULL DEFAULT 0,
		author_id INTEGER NOT NULL,
		created_on TEXT NOT NULL
	)`,
}

// MySQLSchema is the schema used by the dolt backend (MySQL dialect).
var MySQLSchema = []string{
	`CREATE TABLE IF NOT EXISTS issues (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		project_id BIGINT NOT NULL,
		tracker_id BIGINT NOT NULL,
		status_id BIGINT NOT NULL,
		priority_id BIGINT NOT NULL,
		author_id BIGINT NOT NULL,
		subject VARCHAR(255) NOT NULL,
		description TEXT,
		assignee_ids VARCHAR(1024),
		category_id BIGINT,
		fixed_version_id BIGINT,
		start_date VARCHAR(10),
		due_date VARCHAR(10),
		estimated_hours VARCHAR(32),
		parent_id BIGINT,
		custom_values TEXT,
		billable TINYINT NOT NULL DEFAULT 0,
		closed_on VARCHAR(40),
		created_on VARCHAR(40) NOT NULL,
		updated_on VARCHAR(40) NOT NULL,
		lock_version INT NOT NULL DEFAULT 0,
		INDEX idx_issues_project (project_id),
		INDEX idx_issues_parent (parent_id)
	)`,
	`CREATE TABLE IF NOT EXISTS issue_watchers (
		issue_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		PRIMARY KEY (issue_id, user_id),
		FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS journals (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		issue_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		notes TEXT,
		created_on VARCHAR(40) NOT NULL,
		INDEX idx_journals_issue (issue_id),
		FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS journal_details (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		journal_id BIGINT NOT NULL,
		property VARCHAR(32) NOT NULL,
		prop_key VARCHAR(255) NOT NULL,
		old_value TEXT,
		value TEXT,
		FOREIGN KEY (journal_id) REFERENCES journals(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS time_entries (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		project_id BIGINT NOT NULL,
		issue_id BIGINT,
		user_id BIGINT NOT NULL,
		hours VARCHAR(32) NOT NULL,
		activity_id BIGINT NOT NULL,
		comments TEXT,
		spent_on VARCHAR(10) NOT NULL,
		created_on VARCHAR(40) NOT NULL,
		INDEX idx_time_entries_issue (issue_id),
		FOREIGN KEY (issue_id) REFERENCES issues(id)
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		issue_id BIGINT NOT NULL,
		filename VARCHAR(255) NOT NULL,
		content_type VARCHAR(255),
		filesize BIGINT NOT NULL DEFAULT 0,
		author_id BIGINT NOT NULL,
		created_on VARCHAR(40) NOT NULL,
		FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
	)`,
}
