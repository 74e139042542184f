package deletions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Missing(t *testing.T) {
	result, err := Load("/nonexistent/path/deletions.jsonl")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if result.Skipped != 0 || len(result.Records) != 0 || len(result.Warnings) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestAppendThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deletions.jsonl")
	now := time.Now().UTC().Truncate(time.Millisecond)
	parent := int64(3)

	first := Record{IssueID: 12, ProjectID: 1, Subject: "Cannot print", Timestamp: now, Actor: "jsmith", Todo: TodoDestroy, Hours: decimal.RequireFromString("2.5"), Reason: "duplicate"}
	second := Record{IssueID: 13, ProjectID: 1, ParentID: &parent, Timestamp: now.Add(time.Hour), Actor: "admin", Hours: decimal.Zero}

	if err := Append(path, first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := Append(path, second); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	result, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	got := result.Records[12]
	if got.Actor != "jsmith" || got.Todo != TodoDestroy || got.Reason != "duplicate" {
		t.Errorf("record 12 mismatch: %+v", got)
	}
	if !got.Hours.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("expected 2.5 hours, got %s", got.Hours)
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("timestamp mismatch: %v != %v", got.Timestamp, now)
	}
	if p := result.Records[13].ParentID; p == nil || *p != 3 {
		t.Errorf("expected parent 3 on record 13, got %v", p)
	}
}

func TestLoad_CorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deletions.jsonl")
	content := `{"id":1,"ts":"2026-03-10T09:30:00Z","by":"jsmith","hours":"0"}
this is not json
{"id":2,"ts":"2026-03-10T09:31:00Z","by":"jsmith","hours":"0"}
{"broken
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail on corrupt lines: %v", err)
	}
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", result.Skipped)
	}
	if len(result.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %d", len(result.Warnings))
	}
	if len(result.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(result.Records))
	}
}

func TestLoad_MissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deletions.jsonl")
	content := `{"ts":"2026-03-10T09:30:00Z","by":"jsmith"}
{"id":0,"by":"jsmith"}

{"id":7,"by":"jsmith","hours":"1"}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", result.Skipped)
	}
	if _, ok := result.Records[7]; !ok || len(result.Records) != 1 {
		t.Errorf("expected only record 7, got %v", result.Records)
	}
}

func TestLoad_LastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deletions.jsonl")
	if err := Append(path, Record{IssueID: 5, Actor: "dlopper", Reason: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := Append(path, Record{IssueID: 5, Actor: "jsmith", Reason: "second"}); err != nil {
		t.Fatal(err)
	}

	result, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := result.Records[5]; got.Actor != "jsmith" || got.Reason != "second" {
		t.Errorf("expected the later record to win, got %+v", got)
	}
}

func TestWrite_Compacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deletions.jsonl")
	for _, id := range []int64{1, 2, 3} {
		if err := Append(path, Record{IssueID: id, Actor: "admin"}); err != nil {
			t.Fatal(err)
		}
	}

	if err := Write(path, []Record{{IssueID: 2, Actor: "admin"}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	result, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record after compaction, got %d", len(result.Records))
	}
	if _, ok := result.Records[2]; !ok {
		t.Error("expected record 2 to survive")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestAppend_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".tracklog", "deletions.jsonl")
	if err := Append(path, Record{IssueID: 1, Actor: "admin"}); err != nil {
		t.Fatalf("Append should create parent directories: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("manifest not created: %v", err)
	}
}

func TestAppend_RequiresID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deletions.jsonl")
	err := Append(path, Record{IssueID: 1}, Record{Actor: "admin"})
	if err == nil {
		t.Fatal("expected an error for a record without id")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("nothing should be written when a record is invalid")
	}
}

func TestDefaultPath(t *testing.T) {
	got := DefaultPath(filepath.Join("repo", ".tracklog"))
	want := filepath.Join("repo", ".tracklog", "deletions.jsonl")
	if got != want {
		t.Errorf("DefaultPath = %q, want %q", got, want)
	}
}

func TestParseDisposition(t *testing.T) {
	tests := []struct {
		in      string
		want    Disposition
		wantErr bool
	}{
		{"", Disposition{}, false},
		{"destroy", Disposition{Todo: TodoDestroy}, false},
		{" nullify ", Disposition{Todo: TodoNullify}, false},
		{"reassign:42", Disposition{Todo: TodoReassign, ReassignTo: 42}, false},
		{"reassign:", Disposition{}, true},
		{"reassign:abc", Disposition{}, true},
		{"reassign:-1", Disposition{}, true},
		{"keep", Disposition{}, true},
	}
	for _, tt := range tests {
		got, err := ParseDisposition(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDisposition(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDisposition(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
