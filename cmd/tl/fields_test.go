package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/workflow"
)

func defaultCatalog(t *testing.T) *workflow.Catalog {
	t.Helper()
	c, err := workflow.Default()
	if err != nil {
		t.Fatalf("workflow.Default: %v", err)
	}
	return c
}

func TestParseIDArgs(t *testing.T) {
	tests := []struct {
		args    []string
		want    []int64
		wantErr bool
	}{
		{[]string{"1"}, []int64{1}, false},
		{[]string{"#2", "3,4"}, []int64{2, 3, 4}, false},
		{[]string{"5,,6"}, []int64{5, 6}, false},
		{[]string{"abc"}, nil, true},
		{[]string{"0"}, nil, true},
		{[]string{","}, nil, true},
	}
	for _, tt := range tests {
		got, err := parseIDArgs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDArgs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseIDArgs(%v) = %v, want %v", tt.args, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseIDArgs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		}
	}
}

func TestResolveNames(t *testing.T) {
	c := defaultCatalog(t)
	tests := []struct {
		name    string
		resolve func(*workflow.Catalog, string) (string, error)
		value   string
		want    string
	}{
		{"project identifier", resolveProject, "ecookbook", "1"},
		{"project id", resolveProject, "2", "2"},
		{"tracker name", resolveTracker, "feature request", "2"},
		{"status name", resolveStatus, "Resolved", "3"},
		{"priority name", resolvePriority, "urgent", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resolve(c, tt.value)
			if err != nil {
				t.Fatalf("resolve(%q): %v", tt.value, err)
			}
			if got != tt.want {
				t.Errorf("resolve(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
	if _, err := resolveStatus(c, "Nonexistent"); err == nil {
		t.Error("unknown status should fail")
	}
	if id, err := resolveActivity(c, "Design"); err != nil || id != 9 {
		t.Errorf("resolveActivity(Design) = %d, %v", id, err)
	}
}

func TestResolveAssignees(t *testing.T) {
	c := defaultCatalog(t)
	got, err := resolveAssignees(c, []string{"jsmith", "3", "jsmith"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "2,3,2" {
		t.Errorf("resolveAssignees = %q, want 2,3,2 (dedup happens in the engine)", got)
	}
	if got, _ := resolveAssignees(c, []string{"jsmith", "none"}); got != "none" {
		t.Errorf("'none' should clear, got %q", got)
	}
	if _, err := resolveAssignees(c, []string{"nobody"}); err == nil {
		t.Error("unknown login should fail")
	}
}

func TestChangeSetFromFlags(t *testing.T) {
	c := defaultCatalog(t)
	cmd := &cobra.Command{Use: "test"}
	registerFieldFlags(cmd)
	if err := cmd.ParseFlags([]string{
		"--status", "Feedback",
		"--due", "",
		"--assignee", "dlopper",
		"--cf", "Database=PostgreSQL",
		"--cf", "3=42",
	}); err != nil {
		t.Fatal(err)
	}

	cs, err := changeSetFromFlags(cmd, c)
	if err != nil {
		t.Fatalf("changeSetFromFlags: %v", err)
	}
	want := types.ChangeSet{
		types.FieldStatus:       "4",
		types.FieldDueDate:      "",
		types.FieldAssignees:    "3",
		types.CustomFieldKey(1): "PostgreSQL",
		types.CustomFieldKey(3): "42",
	}
	if len(cs) != len(want) {
		t.Fatalf("changeSetFromFlags = %v, want %v", cs, want)
	}
	for k, v := range want {
		if got, ok := cs[k]; !ok || got != v {
			t.Errorf("cs[%q] = %q (present %v), want %q", k, got, ok, v)
		}
	}
	if cs.Has(types.FieldSubject) {
		t.Error("unset flags must not appear in the change set")
	}
}

func TestChangeSetFromFlagsRejectsBadCustomField(t *testing.T) {
	c := defaultCatalog(t)
	for _, arg := range []string{"Database", "Unknown=1"} {
		cmd := &cobra.Command{Use: "test"}
		registerFieldFlags(cmd)
		if err := cmd.ParseFlags([]string{"--cf", arg}); err != nil {
			t.Fatal(err)
		}
		if _, err := changeSetFromFlags(cmd, c); err == nil {
			t.Errorf("--cf %q should fail", arg)
		}
	}
}

func TestValueName(t *testing.T) {
	c := defaultCatalog(t)
	tests := []struct {
		field string
		raw   *string
		want  string
	}{
		{types.FieldStatus, ptr("5"), "Closed"},
		{types.FieldPriority, ptr("6"), "High"},
		{types.FieldAssignees, ptr("2,3"), "John Smith, Dave Lopper"},
		{types.FieldParent, ptr("12"), "#12"},
		{types.FieldFixedVersion, ptr("3"), "2.0"},
		{types.FieldDueDate, ptr("2026-03-20"), "2026-03-20"},
		{types.FieldStatus, nil, ""},
		{types.FieldStatus, ptr("99"), "99"},
	}
	for _, tt := range tests {
		if got := valueName(c, tt.field, tt.raw); got != tt.want {
			t.Errorf("valueName(%s, %v) = %q, want %q", tt.field, deref(tt.raw), got, tt.want)
		}
	}
	if got := fieldLabel(c, types.CustomFieldKey(6)); got != "Customer" {
		t.Errorf("fieldLabel(cf 6) = %q", got)
	}
}
