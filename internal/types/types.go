// Package types defines core data structures for the tracklog issue engine.
package types

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Issue represents a tracked work item
type Issue struct {
	ID             int64            `json:"id"`
	ProjectID      int64            `json:"project_id"`
	TrackerID      int64            `json:"tracker_id"`
	StatusID       int64            `json:"status_id"`
	PriorityID     int64            `json:"priority_id"`
	AuthorID       int64            `json:"author_id"`
	Subject        string           `json:"subject"`
	Description    string           `json:"description,omitempty"`
	AssigneeIDs    []int64          `json:"assigned_to_ids,omitempty"`
	CategoryID     *int64           `json:"category_id,omitempty"`
	FixedVersionID *int64           `json:"fixed_version_id,omitempty"`
	StartDate      *Date            `json:"start_date,omitempty"`
	DueDate        *Date            `json:"due_date,omitempty"`
	EstimatedHours *decimal.Decimal `json:"estimated_hours,omitempty"`
	ParentID       *int64           `json:"parent_id,omitempty"`
	CustomValues   map[int64]string `json:"custom_field_values,omitempty"`
	SpentHours     decimal.Decimal  `json:"spent_hours"` // Derived from time entries, never written directly
	Billable       bool             `json:"billable"`
	ClosedOn       *time.Time       `json:"closed_on,omitempty"`
	CreatedOn      time.Time        `json:"created_on"`
	UpdatedOn      time.Time        `json:"updated_on"`
	LockVersion    int              `json:"lock_version"`
	WatcherIDs     []int64          `json:"watcher_ids,omitempty"` // Populated on load, stored in issue_watchers
}

// Clone returns a deep copy of the issue. The engine mutates clones so a
// failed validation never leaks into the caller's snapshot.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	c := *i
	c.AssigneeIDs = append([]int64(nil), i.AssigneeIDs...)
	c.WatcherIDs = append([]int64(nil), i.WatcherIDs...)
	c.CategoryID = cloneID(i.CategoryID)
	c.FixedVersionID = cloneID(i.FixedVersionID)
	c.ParentID = cloneID(i.ParentID)
	if i.StartDate != nil {
		d := *i.StartDate
		c.StartDate = &d
	}
	if i.DueDate != nil {
		d := *i.DueDate
		c.DueDate = &d
	}
	if i.EstimatedHours != nil {
		h := *i.EstimatedHours
		c.EstimatedHours = &h
	}
	if i.ClosedOn != nil {
		t := *i.ClosedOn
		c.ClosedOn = &t
	}
	if i.CustomValues != nil {
		c.CustomValues = make(map[int64]string, len(i.CustomValues))
		for k, v := range i.CustomValues {
			c.CustomValues[k] = v
		}
	}
	return &c
}

// IsAssignedTo reports whether userID is one of the issue's assignees.
func (i *Issue) IsAssignedTo(userID int64) bool {
	for _, id := range i.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CustomValue returns the stored value of a custom field ("" when unset).
func (i *Issue) CustomValue(fieldID int64) string {
	if i.CustomValues == nil {
		return ""
	}
	return i.CustomValues[fieldID]
}

func cloneID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// DetailProperty identifies what a JournalDetail records.
type DetailProperty string

// Journal detail kinds
const (
	PropertyAttribute   DetailProperty = "attr"
	PropertyCustomField DetailProperty = "cf"
	PropertyAttachment  DetailProperty = "attachment"
)

// IsValid checks if the property kind is known
func (p DetailProperty) IsValid() bool {
	switch p {
	case PropertyAttribute, PropertyCustomField, PropertyAttachment:
		return true
	}
	return false
}

// Journal is the immutable audit entry written once per effective mutation.
type Journal struct {
	ID        int64            `json:"id"`
	IssueID   int64            `json:"issue_id"`
	UserID    int64            `json:"user_id"`
	Notes     string           `json:"notes,omitempty"`
	Details   []*JournalDetail `json:"details,omitempty"`
	CreatedOn time.Time        `json:"created_on"`
}

// JournalDetail records one changed field or one added attachment.
// A nil OldValue/Value means "none".
type JournalDetail struct {
	ID        int64          `json:"id,omitempty"`
	JournalID int64          `json:"journal_id,omitempty"`
	Property  DetailProperty `json:"property"`
	PropKey   string         `json:"prop_key"`
	OldValue  *string        `json:"old_value,omitempty"`
	Value     *string        `json:"value,omitempty"`
}

// Change is one (field, old, new) tuple produced by the change tracker.
// Values are in stored string form; nil means unset.
type Change struct {
	Field    string  `json:"field"`
	OldValue *string `json:"old_value,omitempty"`
	NewValue *string `json:"new_value,omitempty"`
}

// IsCustomField reports whether the change targets a custom field.
func (c Change) IsCustomField() bool {
	_, ok := ParseCustomFieldKey(c.Field)
	return ok
}

// TimeEntry is a unit of logged work.
type TimeEntry struct {
	ID         int64           `json:"id"`
	ProjectID  int64           `json:"project_id"`
	IssueID    *int64          `json:"issue_id,omitempty"`
	UserID     int64           `json:"user_id"`
	Hours      decimal.Decimal `json:"hours"`
	ActivityID int64           `json:"activity_id"`
	Comments   string          `json:"comments,omitempty"`
	SpentOn    Date            `json:"spent_on"`
	CreatedOn  time.Time       `json:"created_on"`
}

// Attachment is the metadata of a file added to an issue. File bytes are
// handled by the caller.
type Attachment struct {
	ID          int64     `json:"id"`
	IssueID     int64     `json:"issue_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type,omitempty"`
	Filesize    int64     `json:"filesize"`
	AuthorID    int64     `json:"author_id"`
	CreatedOn   time.Time `json:"created_on"`
}

// FormatIDs renders ids as a sorted comma separated list, the stored form
// of multi-valued reference fields.
func FormatIDs(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	parts := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
