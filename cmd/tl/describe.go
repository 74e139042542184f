package main

import (
	"fmt"
	"strings"

	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/ui"
	"github.com/tracklog/tracklog/internal/validation"
	"github.com/tracklog/tracklog/internal/workflow"
)

var fieldLabels = map[string]string{
	types.FieldSubject:        "Subject",
	types.FieldDescription:    "Description",
	types.FieldProject:        "Project",
	types.FieldTracker:        "Tracker",
	types.FieldStatus:         "Status",
	types.FieldPriority:       "Priority",
	types.FieldAssignees:      "Assignees",
	types.FieldCategory:       "Category",
	types.FieldFixedVersion:   "Target version",
	types.FieldStartDate:      "Start date",
	types.FieldDueDate:        "Due date",
	types.FieldEstimatedHours: "Estimated time",
	types.FieldParent:         "Parent task",
	types.FieldBillable:       "Billable",
}

// fieldLabel is the display name of a change set key or custom field.
func fieldLabel(c *workflow.Catalog, field string) string {
	if id, ok := types.ParseCustomFieldKey(field); ok {
		if cf, ok := c.CustomField(id); ok {
			return cf.Name
		}
		return field
	}
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

// valueName renders a stored raw value (ids, dates) with catalog names.
func valueName(c *workflow.Catalog, field string, raw *string) string {
	if raw == nil || *raw == "" {
		return ""
	}
	v := *raw
	id, isNumeric := isID(v)
	switch field {
	case types.FieldStatus:
		if s, ok := c.Status(id); isNumeric && ok {
			return s.Name
		}
	case types.FieldPriority:
		if p, ok := c.Priority(id); isNumeric && ok {
			return p.Name
		}
	case types.FieldTracker:
		if t, ok := c.Tracker(id); isNumeric && ok {
			return t.Name
		}
	case types.FieldProject:
		if p, ok := c.Project(id); isNumeric && ok {
			return p.Name
		}
	case types.FieldCategory:
		if cat, ok := c.Category(id); isNumeric && ok {
			return cat.Name
		}
	case types.FieldFixedVersion:
		if ver, ok := c.Version(id); isNumeric && ok {
			return ver.Name
		}
	case types.FieldParent:
		if isNumeric {
			return fmt.Sprintf("#%d", id)
		}
	case types.FieldAssignees:
		ids, err := validation.ParseIDList(v)
		if err != nil {
			return v
		}
		return userNames(c, ids)
	}
	return v
}

func userName(c *workflow.Catalog, id int64) string {
	if u, ok := c.User(id); ok {
		return u.Name
	}
	return fmt.Sprintf("user %d", id)
}

func userNames(c *workflow.Catalog, ids []int64) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = userName(c, id)
	}
	return strings.Join(names, ", ")
}

// renderChanges prints one line per change, indented under the summary.
func renderChanges(c *workflow.Catalog, changes []types.Change) []string {
	lines := make([]string, 0, len(changes))
	for _, ch := range changes {
		label := fieldLabel(c, ch.Field)
		if ch.Field == types.FieldDescription {
			lines = append(lines, ui.RenderChange(label+" updated", "", ""))
			continue
		}
		lines = append(lines, ui.RenderChange(label, valueName(c, ch.Field, ch.OldValue), valueName(c, ch.Field, ch.NewValue)))
	}
	return lines
}

// renderDetail prints a journal detail the way renderChanges prints a change.
func renderDetail(c *workflow.Catalog, d *types.JournalDetail) string {
	switch d.Property {
	case types.PropertyAttachment:
		if d.Value != nil {
			return ui.RenderChange("File", "", *d.Value)
		}
		return ui.RenderChange("File", deref(d.OldValue), "")
	case types.PropertyCustomField:
		field := d.PropKey
		if id, ok := isID(d.PropKey); ok {
			field = types.CustomFieldKey(id)
		}
		return ui.RenderChange(fieldLabel(c, field), deref(d.OldValue), deref(d.Value))
	}
	if d.PropKey == types.FieldDescription {
		return ui.RenderChange("Description updated", "", "")
	}
	return ui.RenderChange(fieldLabel(c, d.PropKey), valueName(c, d.PropKey, d.OldValue), valueName(c, d.PropKey, d.Value))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
