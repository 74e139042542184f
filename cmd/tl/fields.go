package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/validation"
	"github.com/tracklog/tracklog/internal/workflow"
)

// fieldFlag maps a command line flag to a change set key. Named references
// (status, tracker, ...) are resolved to ids through the catalog.
type fieldFlag struct {
	flag    string
	field   string
	usage   string
	resolve func(c *workflow.Catalog, value string) (string, error)
}

var fieldFlags = []fieldFlag{
	{flag: "subject", field: types.FieldSubject, usage: "Issue subject"},
	{flag: "description", field: types.FieldDescription, usage: "Issue description (markdown)"},
	{flag: "project", field: types.FieldProject, usage: "Project identifier or id", resolve: resolveProject},
	{flag: "tracker", field: types.FieldTracker, usage: "Tracker name or id", resolve: resolveTracker},
	{flag: "status", field: types.FieldStatus, usage: "Status name or id", resolve: resolveStatus},
	{flag: "priority", field: types.FieldPriority, usage: "Priority name or id", resolve: resolvePriority},
	{flag: "category", field: types.FieldCategory, usage: "Category id ('none' clears)"},
	{flag: "version", field: types.FieldFixedVersion, usage: "Target version id ('none' clears)"},
	{flag: "start", field: types.FieldStartDate, usage: "Start date (YYYY-MM-DD, +3d, 'next monday')"},
	{flag: "due", field: types.FieldDueDate, usage: "Due date (YYYY-MM-DD, +1w, 'next friday')"},
	{flag: "estimate", field: types.FieldEstimatedHours, usage: "Estimated hours (2.5, 2h30m)"},
	{flag: "parent", field: types.FieldParent, usage: "Parent issue id ('none' clears)"},
	{flag: "billable", field: types.FieldBillable, usage: "Billable flag (true/false)"},
}

// registerFieldFlags adds the attribute flags shared by create, update and
// bulk-edit.
func registerFieldFlags(cmd *cobra.Command) {
	for _, f := range fieldFlags {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().StringSlice("assignee", nil, "Assignee login or id, repeatable ('none' clears)")
	cmd.Flags().StringArray("cf", nil, "Custom field value as <name or id>=<value>, repeatable")
}

// changeSetFromFlags collects only the flags the user set, so an update
// never touches fields that were not mentioned.
func changeSetFromFlags(cmd *cobra.Command, c *workflow.Catalog) (types.ChangeSet, error) {
	cs := types.ChangeSet{}
	for _, f := range fieldFlags {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		value, _ := cmd.Flags().GetString(f.flag)
		if f.resolve != nil && value != "" && value != validation.NoneValue {
			resolved, err := f.resolve(c, value)
			if err != nil {
				return nil, err
			}
			value = resolved
		}
		cs[f.field] = value
	}

	if cmd.Flags().Changed("assignee") {
		logins, _ := cmd.Flags().GetStringSlice("assignee")
		ids, err := resolveAssignees(c, logins)
		if err != nil {
			return nil, err
		}
		cs[types.FieldAssignees] = ids
	}

	values, _ := cmd.Flags().GetStringArray("cf")
	for _, kv := range values {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --cf %q: expected <field>=<value>", kv)
		}
		cf, err := resolveCustomField(c, name)
		if err != nil {
			return nil, err
		}
		cs[cf.Key()] = value
	}
	return cs, nil
}

func isID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil && id > 0
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func resolveProject(c *workflow.Catalog, value string) (string, error) {
	if id, ok := isID(value); ok {
		return idString(id), nil
	}
	if p, ok := c.ProjectByIdentifier(value); ok {
		return idString(p.ID), nil
	}
	return "", fmt.Errorf("unknown project %q", value)
}

func resolveTracker(c *workflow.Catalog, value string) (string, error) {
	if id, ok := isID(value); ok {
		return idString(id), nil
	}
	for _, t := range c.Trackers {
		if strings.EqualFold(t.Name, value) {
			return idString(t.ID), nil
		}
	}
	return "", fmt.Errorf("unknown tracker %q", value)
}

func resolveStatus(c *workflow.Catalog, value string) (string, error) {
	if id, ok := isID(value); ok {
		return idString(id), nil
	}
	for _, s := range c.Statuses {
		if strings.EqualFold(s.Name, value) {
			return idString(s.ID), nil
		}
	}
	return "", fmt.Errorf("unknown status %q", value)
}

func resolvePriority(c *workflow.Catalog, value string) (string, error) {
	if id, ok := isID(value); ok {
		return idString(id), nil
	}
	for _, p := range c.Priorities {
		if strings.EqualFold(p.Name, value) {
			return idString(p.ID), nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", value)
}

func resolveActivity(c *workflow.Catalog, value string) (int64, error) {
	if id, ok := isID(value); ok {
		return id, nil
	}
	for _, a := range c.Activities {
		if strings.EqualFold(a.Name, value) {
			return a.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown activity %q", value)
}

// resolveAssignees turns logins or ids into the comma separated id list the
// engine expects. "none" clears the assignees.
func resolveAssignees(c *workflow.Catalog, logins []string) (string, error) {
	ids := make([]string, 0, len(logins))
	for _, login := range logins {
		login = strings.TrimSpace(login)
		switch {
		case login == "":
			continue
		case login == validation.NoneValue:
			return validation.NoneValue, nil
		}
		if id, ok := isID(login); ok {
			ids = append(ids, idString(id))
			continue
		}
		u, ok := c.UserByLogin(login)
		if !ok {
			return "", fmt.Errorf("unknown user %q", login)
		}
		ids = append(ids, idString(u.ID))
	}
	return strings.Join(ids, ","), nil
}

func resolveCustomField(c *workflow.Catalog, name string) (*types.CustomField, error) {
	if id, ok := isID(name); ok {
		if cf, ok := c.CustomField(id); ok {
			return cf, nil
		}
	}
	for _, cf := range c.CustomFields {
		if strings.EqualFold(cf.Name, name) {
			return cf, nil
		}
	}
	return nil, fmt.Errorf("unknown custom field %q", name)
}

// parseIDArgs parses issue ids given as arguments, accepting "#12" and
// comma separated lists.
func parseIDArgs(args []string) ([]int64, error) {
	var ids []int64
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimPrefix(strings.TrimSpace(part), "#")
			if part == "" {
				continue
			}
			id, ok := isID(part)
			if !ok {
				return nil, fmt.Errorf("invalid issue id %q", part)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no issue ids given")
	}
	return ids, nil
}
