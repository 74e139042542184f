package notification

import (
	"strings"
	"testing"

	"github.com/tracklog/tracklog/internal/types"
)

func TestRender_Update(t *testing.T) {
	msg := Render(testEvent(KindUpdated))

	if msg.Subject != "Issue #12 updated: Cannot print recipes" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	for _, want := range []string{
		"has been updated by jsmith",
		"priority_id changed from 4 to 7",
		"Raised after the demo",
	} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("Text missing %q:\n%s", want, msg.Text)
		}
	}
}

func TestRender_CreatedAndDeleted(t *testing.T) {
	created := testEvent(KindCreated)
	created.Journal = nil
	if msg := Render(created); !strings.HasPrefix(msg.Subject, "Issue #12 created") {
		t.Errorf("Subject = %q", msg.Subject)
	}

	deleted := testEvent(KindDeleted)
	deleted.Journal = nil
	msg := Render(deleted)
	if !strings.HasPrefix(msg.Subject, "Issue #12 deleted") {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "has been deleted by jsmith") {
		t.Errorf("Text = %q", msg.Text)
	}
}

func TestRender_LongSubject(t *testing.T) {
	ev := testEvent(KindUpdated)
	ev.Issue.Subject = strings.Repeat("é", 100)
	msg := Render(ev)
	if !strings.HasSuffix(msg.Subject, "...") {
		t.Errorf("long subject not truncated: %q", msg.Subject)
	}
	if n := len([]rune(strings.TrimPrefix(msg.Subject, "Issue #12 updated: "))); n != 60 {
		t.Errorf("truncated subject has %d runes, want 60", n)
	}
}

func TestDescribeDetail(t *testing.T) {
	s := func(v string) *string { return &v }
	tests := []struct {
		detail types.JournalDetail
		want   string
	}{
		{types.JournalDetail{Property: types.PropertyAttribute, PropKey: "status_id", OldValue: s("1"), Value: s("2")}, "status_id changed from 1 to 2"},
		{types.JournalDetail{Property: types.PropertyAttribute, PropKey: "due_date", Value: s("2026-03-25")}, "due_date set to 2026-03-25"},
		{types.JournalDetail{Property: types.PropertyAttribute, PropKey: "category_id", OldValue: s("1")}, "category_id deleted (1)"},
		{types.JournalDetail{Property: types.PropertyCustomField, PropKey: "2", OldValue: s("125"), Value: s("126")}, "custom field 2 changed from 125 to 126"},
		{types.JournalDetail{Property: types.PropertyAttachment, PropKey: "7", Value: s("trace.txt")}, "File trace.txt added"},
	}
	for _, tt := range tests {
		if got := DescribeDetail(&tt.detail); got != tt.want {
			t.Errorf("DescribeDetail(%+v) = %q, want %q", tt.detail, got, tt.want)
		}
	}
}
