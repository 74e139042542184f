package types

import (
	"sort"
	"strconv"
	"strings"
)

// Core issue attribute names. These are the keys accepted in a ChangeSet
// and the PropKey of attribute journal details.
const (
	FieldSubject        = "subject"
	FieldDescription    = "description"
	FieldProject        = "project_id"
	FieldTracker        = "tracker_id"
	FieldStatus         = "status_id"
	FieldPriority       = "priority_id"
	FieldAssignees      = "assigned_to_ids"
	FieldCategory       = "category_id"
	FieldFixedVersion   = "fixed_version_id"
	FieldStartDate      = "start_date"
	FieldDueDate        = "due_date"
	FieldEstimatedHours = "estimated_hours"
	FieldParent         = "parent_id"
	FieldBillable       = "billable"
)

// AttributeFields lists core fields in journal order.
var AttributeFields = []string{
	FieldProject,
	FieldTracker,
	FieldSubject,
	FieldDescription,
	FieldStatus,
	FieldPriority,
	FieldAssignees,
	FieldCategory,
	FieldFixedVersion,
	FieldStartDate,
	FieldDueDate,
	FieldEstimatedHours,
	FieldParent,
	FieldBillable,
}

// OptionalFields may be disabled per tracker. Subject, status, priority and
// the project/tracker references always apply.
var OptionalFields = map[string]bool{
	FieldDescription:    true,
	FieldAssignees:      true,
	FieldCategory:       true,
	FieldFixedVersion:   true,
	FieldStartDate:      true,
	FieldDueDate:        true,
	FieldEstimatedHours: true,
	FieldParent:         true,
	FieldBillable:       true,
}

// IsAttributeField reports whether name is a known core attribute.
func IsAttributeField(name string) bool {
	for _, f := range AttributeFields {
		if f == name {
			return true
		}
	}
	return false
}

const customFieldPrefix = "custom_field_values."

// CustomFieldKey returns the ChangeSet key for a custom field.
func CustomFieldKey(id int64) string {
	return customFieldPrefix + strconv.FormatInt(id, 10)
}

// ParseCustomFieldKey extracts the custom field id from a ChangeSet key.
func ParseCustomFieldKey(key string) (int64, bool) {
	if !strings.HasPrefix(key, customFieldPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(key, customFieldPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ChangeSet maps field names to proposed raw values, as submitted by a
// form or command line. An empty value clears an optional field.
type ChangeSet map[string]string

// Has reports whether the change set proposes a value for field.
func (c ChangeSet) Has(field string) bool {
	_, ok := c[field]
	return ok
}

// Clone returns a shallow copy.
func (c ChangeSet) Clone() ChangeSet {
	out := make(ChangeSet, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Fields returns the keys in journal order: core attributes first, then
// custom fields by ascending id, then anything unrecognized sorted by name.
func (c ChangeSet) Fields() []string {
	var out []string
	for _, f := range AttributeFields {
		if c.Has(f) {
			out = append(out, f)
		}
	}
	var cfs []int64
	var unknown []string
	for k := range c {
		if IsAttributeField(k) {
			continue
		}
		if id, ok := ParseCustomFieldKey(k); ok {
			cfs = append(cfs, id)
			continue
		}
		unknown = append(unknown, k)
	}
	sort.Slice(cfs, func(a, b int) bool { return cfs[a] < cfs[b] })
	for _, id := range cfs {
		out = append(out, CustomFieldKey(id))
	}
	sort.Strings(unknown)
	return append(out, unknown...)
}

// FieldValue returns the stored string representation of a field on the
// issue, or nil when the field is unset.
func (i *Issue) FieldValue(field string) *string {
	str := func(s string) *string { return &s }
	id := func(p *int64) *string {
		if p == nil {
			return nil
		}
		return str(strconv.FormatInt(*p, 10))
	}
	switch field {
	case FieldSubject:
		return str(i.Subject)
	case FieldDescription:
		if i.Description == "" {
			return nil
		}
		return str(i.Description)
	case FieldProject:
		return str(strconv.FormatInt(i.ProjectID, 10))
	case FieldTracker:
		return str(strconv.FormatInt(i.TrackerID, 10))
	case FieldStatus:
		return str(strconv.FormatInt(i.StatusID, 10))
	case FieldPriority:
		return str(strconv.FormatInt(i.PriorityID, 10))
	case FieldAssignees:
		if len(i.AssigneeIDs) == 0 {
			return nil
		}
		return str(FormatIDs(i.AssigneeIDs))
	case FieldCategory:
		return id(i.CategoryID)
	case FieldFixedVersion:
		return id(i.FixedVersionID)
	case FieldParent:
		return id(i.ParentID)
	case FieldStartDate:
		if i.StartDate == nil {
			return nil
		}
		return str(i.StartDate.String())
	case FieldDueDate:
		if i.DueDate == nil {
			return nil
		}
		return str(i.DueDate.String())
	case FieldEstimatedHours:
		if i.EstimatedHours == nil {
			return nil
		}
		return str(i.EstimatedHours.String())
	case FieldBillable:
		return str(strconv.FormatBool(i.Billable))
	}
	if cf, ok := ParseCustomFieldKey(field); ok {
		if v := i.CustomValue(cf); v != "" {
			return str(v)
		}
	}
	return nil
}
