// Package journal turns change records, notes and attachment events into
// issue journals.
package journal

import (
	"strconv"
	"strings"
	"time"

	"github.com/tracklog/tracklog/internal/types"
)

// Build assembles the journal for one mutation. It returns nil, false when
// notes are blank and there is nothing to record.
//
// Details follow the order of changes; attachment details come last.
func Build(actor types.Actor, notes string, changes []types.Change, attachments []*types.Attachment, now time.Time) (*types.Journal, bool) {
	var details []*types.JournalDetail
	for _, c := range changes {
		if id, ok := types.ParseCustomFieldKey(c.Field); ok {
			details = append(details, &types.JournalDetail{
				Property: types.PropertyCustomField,
				PropKey:  strconv.FormatInt(id, 10),
				OldValue: c.OldValue,
				Value:    c.NewValue,
			})
			continue
		}
		details = append(details, &types.JournalDetail{
			Property: types.PropertyAttribute,
			PropKey:  c.Field,
			OldValue: c.OldValue,
			Value:    c.NewValue,
		})
	}
	for _, a := range attachments {
		name := a.Filename
		details = append(details, &types.JournalDetail{
			Property: types.PropertyAttachment,
			PropKey:  strconv.FormatInt(a.ID, 10),
			Value:    &name,
		})
	}

	if strings.TrimSpace(notes) == "" && len(details) == 0 {
		return nil, false
	}
	return &types.Journal{
		UserID:    actor.ID,
		Notes:     notes,
		Details:   details,
		CreatedOn: now,
	}, true
}

// HasDetail reports whether the journal records a change of prop.
func HasDetail(j *types.Journal, property types.DetailProperty, propKey string) bool {
	if j == nil {
		return false
	}
	for _, d := range j.Details {
		if d.Property == property && d.PropKey == propKey {
			return true
		}
	}
	return false
}
