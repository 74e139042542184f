package types

import "fmt"

// Status is an issue status. Closed statuses stamp Issue.ClosedOn.
type Status struct {
	ID        int64  `json:"id" mapstructure:"id"`
	Name      string `json:"name" mapstructure:"name"`
	IsClosed  bool   `json:"is_closed" mapstructure:"closed"`
	IsDefault bool   `json:"is_default" mapstructure:"default"`
}

// Priority is an issue priority enumeration value.
type Priority struct {
	ID        int64  `json:"id" mapstructure:"id"`
	Name      string `json:"name" mapstructure:"name"`
	IsDefault bool   `json:"is_default" mapstructure:"default"`
}

// Activity classifies logged time.
type Activity struct {
	ID        int64  `json:"id" mapstructure:"id"`
	Name      string `json:"name" mapstructure:"name"`
	IsDefault bool   `json:"is_default" mapstructure:"default"`
}

// Tracker is an issue kind with its own workflow and field set.
type Tracker struct {
	ID              int64    `json:"id" mapstructure:"id"`
	Name            string   `json:"name" mapstructure:"name"`
	DefaultStatusID int64    `json:"default_status_id" mapstructure:"default_status"`
	CustomFieldIDs  []int64  `json:"custom_field_ids,omitempty" mapstructure:"custom_fields"`
	DisabledFields  []string `json:"disabled_fields,omitempty" mapstructure:"disabled_fields"`
}

// FieldEnabled reports whether a core attribute applies to this tracker.
func (t *Tracker) FieldEnabled(field string) bool {
	if !OptionalFields[field] {
		return true
	}
	for _, f := range t.DisabledFields {
		if f == field {
			return false
		}
	}
	return true
}

// HasCustomField reports whether the tracker enables a custom field.
func (t *Tracker) HasCustomField(id int64) bool {
	return containsID(t.CustomFieldIDs, id)
}

// VersionStatus controls whether a version accepts new assignments.
type VersionStatus string

// Version statuses
const (
	VersionOpen   VersionStatus = "open"
	VersionLocked VersionStatus = "locked"
	VersionClosed VersionStatus = "closed"
)

// IsValid checks if the version status value is valid
func (s VersionStatus) IsValid() bool {
	switch s {
	case VersionOpen, VersionLocked, VersionClosed, "":
		return true
	}
	return false
}

// Version is a project milestone issues can target.
type Version struct {
	ID        int64         `json:"id" mapstructure:"id"`
	ProjectID int64         `json:"project_id" mapstructure:"-"`
	Name      string        `json:"name" mapstructure:"name"`
	Status    VersionStatus `json:"status,omitempty" mapstructure:"status"`
}

// IsOpen reports whether new issues may be assigned to the version.
func (v *Version) IsOpen() bool {
	return v.Status == "" || v.Status == VersionOpen
}

// Category groups issues within one project.
type Category struct {
	ID        int64  `json:"id" mapstructure:"id"`
	ProjectID int64  `json:"project_id" mapstructure:"-"`
	Name      string `json:"name" mapstructure:"name"`
}

// Project owns issues, categories and versions. Projects form a tree.
type Project struct {
	ID             int64       `json:"id" mapstructure:"id"`
	Identifier     string      `json:"identifier" mapstructure:"identifier"`
	Name           string      `json:"name" mapstructure:"name"`
	ParentID       *int64      `json:"parent_id,omitempty" mapstructure:"parent"`
	TrackerIDs     []int64     `json:"tracker_ids" mapstructure:"trackers"`
	CustomFieldIDs []int64     `json:"custom_field_ids,omitempty" mapstructure:"custom_fields"`
	Categories     []*Category `json:"categories,omitempty" mapstructure:"categories"`
	Versions       []*Version  `json:"versions,omitempty" mapstructure:"versions"`
}

// HasTracker reports whether the tracker is enabled for the project.
func (p *Project) HasTracker(id int64) bool {
	return containsID(p.TrackerIDs, id)
}

// CustomFieldFormat is the value format of a custom field.
type CustomFieldFormat string

// Custom field formats
const (
	FormatString CustomFieldFormat = "string"
	FormatText   CustomFieldFormat = "text"
	FormatInt    CustomFieldFormat = "int"
	FormatFloat  CustomFieldFormat = "float"
	FormatDate   CustomFieldFormat = "date"
	FormatBool   CustomFieldFormat = "bool"
	FormatList   CustomFieldFormat = "list"
)

// IsValid checks if the format is known
func (f CustomFieldFormat) IsValid() bool {
	switch f {
	case FormatString, FormatText, FormatInt, FormatFloat, FormatDate, FormatBool, FormatList:
		return true
	}
	return false
}

// CustomField is a user-defined issue field.
type CustomField struct {
	ID             int64             `json:"id" mapstructure:"id"`
	Name           string            `json:"name" mapstructure:"name"`
	Format         CustomFieldFormat `json:"format" mapstructure:"format"`
	PossibleValues []string          `json:"possible_values,omitempty" mapstructure:"possible_values"`
	Required       bool              `json:"required" mapstructure:"required"`
	ForAll         bool              `json:"for_all" mapstructure:"for_all"`
	Default        string            `json:"default,omitempty" mapstructure:"default"`
	MaxLength      int               `json:"max_length,omitempty" mapstructure:"max_length"`
}

// Key returns the ChangeSet key of the field.
func (f *CustomField) Key() string {
	return CustomFieldKey(f.ID)
}

// User is a person who may act on issues.
type User struct {
	ID    int64  `json:"id" mapstructure:"id"`
	Login string `json:"login" mapstructure:"login"`
	Name  string `json:"name" mapstructure:"name"`
	Mail  string `json:"mail,omitempty" mapstructure:"mail"`
	Admin bool   `json:"admin,omitempty" mapstructure:"admin"`
}

// BuiltinRole marks roles applied implicitly rather than through membership.
type BuiltinRole string

// Builtin roles
const (
	BuiltinNone      BuiltinRole = ""
	BuiltinNonMember BuiltinRole = "non_member"
	BuiltinAnonymous BuiltinRole = "anonymous"
)

// Role grants capabilities to project members. LockedFields lists, per
// tracker id, the attributes members with this role may not change.
type Role struct {
	ID           int64              `json:"id" mapstructure:"id"`
	Name         string             `json:"name" mapstructure:"name"`
	Builtin      BuiltinRole        `json:"builtin,omitempty" mapstructure:"builtin"`
	Permissions  []Capability       `json:"permissions" mapstructure:"permissions"`
	LockedFields map[int64][]string `json:"locked_fields,omitempty" mapstructure:"-"`
}

// Allows reports whether the role grants the capability.
func (r *Role) Allows(c Capability) bool {
	for _, p := range r.Permissions {
		if p == c {
			return true
		}
	}
	return false
}

// FieldLocked reports whether the role locks field for a tracker.
func (r *Role) FieldLocked(trackerID int64, field string) bool {
	for _, f := range r.LockedFields[trackerID] {
		if f == field {
			return true
		}
	}
	return false
}

// Member attaches a user to a project with one or more roles.
type Member struct {
	ProjectID int64   `json:"project_id" mapstructure:"project"`
	UserID    int64   `json:"user_id" mapstructure:"user"`
	RoleIDs   []int64 `json:"role_ids" mapstructure:"roles"`
}

// Transition is one allowed status change for a tracker and role.
type Transition struct {
	TrackerID int64 `json:"tracker_id"`
	RoleID    int64 `json:"role_id"`
	From      int64 `json:"from"`
	To        int64 `json:"to"`
}

func (t Transition) String() string {
	return fmt.Sprintf("tracker %d role %d: %d -> %d", t.TrackerID, t.RoleID, t.From, t.To)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
