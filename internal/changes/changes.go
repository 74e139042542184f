// Package changes computes field-level differences between two versions of
// an issue.
package changes

import (
	"github.com/tracklog/tracklog/internal/types"
)

// Diff returns one Change per field in fields whose value on proposed
// differs from snapshot. Fields are compared in their stored string form,
// which makes ids and decimals compare numerically, dates by calendar day
// and assignee lists as sets. An unset custom field and an empty one are
// the same value. The order of fields is preserved.
func Diff(snapshot, proposed *types.Issue, fields []string) []types.Change {
	var out []types.Change
	for _, f := range fields {
		before := snapshot.FieldValue(f)
		after := proposed.FieldValue(f)
		if equal(before, after) {
			continue
		}
		out = append(out, types.Change{Field: f, OldValue: before, NewValue: after})
	}
	return out
}

// All diffs every core attribute and every custom field present on either
// side, in journal order.
func All(snapshot, proposed *types.Issue) []types.Change {
	fields := append([]string(nil), types.AttributeFields...)
	cs := types.ChangeSet{}
	for id := range snapshot.CustomValues {
		cs[types.CustomFieldKey(id)] = ""
	}
	for id := range proposed.CustomValues {
		cs[types.CustomFieldKey(id)] = ""
	}
	fields = append(fields, cs.Fields()...)
	return Diff(snapshot, proposed, fields)
}

// Fields returns the names of the changed fields.
func Fields(changes []types.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Field
	}
	return out
}

// Find returns the change for field, if any.
func Find(changes []types.Change, field string) (types.Change, bool) {
	for _, c := range changes {
		if c.Field == field {
			return c, true
		}
	}
	return types.Change{}, false
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
