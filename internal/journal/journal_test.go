package journal

import (
	"testing"
	"time"

	"github.com/tracklog/tracklog/internal/types"
)

func sp(s string) *string { return &s }

var (
	jsmith = types.Actor{ID: 2, Login: "jsmith"}
	now    = time.Date(2009, 12, 1, 10, 0, 0, 0, time.UTC)
)

func TestBuildNothingToRecord(t *testing.T) {
	for _, notes := range []string{"", "   \n"} {
		j, ok := Build(jsmith, notes, nil, nil, now)
		if ok || j != nil {
			t.Errorf("Build(%q) = (%v, %v), want no journal", notes, j, ok)
		}
	}
}

func TestBuildNoteOnly(t *testing.T) {
	j, ok := Build(jsmith, "just a note", nil, nil, now)
	if !ok {
		t.Fatal("expected a journal")
	}
	if j.Notes != "just a note" || len(j.Details) != 0 || j.UserID != 2 {
		t.Errorf("journal = %+v", j)
	}
	if !j.CreatedOn.Equal(now) {
		t.Errorf("CreatedOn = %v", j.CreatedOn)
	}
}

func TestBuildDetailKinds(t *testing.T) {
	changes := []types.Change{
		{Field: types.FieldSubject, OldValue: sp("old"), NewValue: sp("new")},
		{Field: types.FieldPriority, OldValue: sp("4"), NewValue: sp("6")},
		{Field: types.CustomFieldKey(2), OldValue: sp("125"), NewValue: sp("New custom value")},
	}
	attachments := []*types.Attachment{{ID: 9, Filename: "testfile.txt"}}

	j, ok := Build(jsmith, "", changes, attachments, now)
	if !ok {
		t.Fatal("expected a journal")
	}
	if len(j.Details) != 4 {
		t.Fatalf("details = %d, want 4", len(j.Details))
	}

	want := []struct {
		prop types.DetailProperty
		key  string
	}{
		{types.PropertyAttribute, "subject"},
		{types.PropertyAttribute, "priority_id"},
		{types.PropertyCustomField, "2"},
		{types.PropertyAttachment, "9"},
	}
	for i, w := range want {
		d := j.Details[i]
		if d.Property != w.prop || d.PropKey != w.key {
			t.Errorf("detail[%d] = %s/%s, want %s/%s", i, d.Property, d.PropKey, w.prop, w.key)
		}
	}

	att := j.Details[3]
	if att.OldValue != nil || att.Value == nil || *att.Value != "testfile.txt" {
		t.Errorf("attachment detail = %+v", att)
	}
	if !HasDetail(j, types.PropertyCustomField, "2") {
		t.Error("HasDetail(cf 2) = false")
	}
	if HasDetail(j, types.PropertyAttribute, "status_id") {
		t.Error("HasDetail(status_id) = true")
	}
}
