package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/tracklog/tracklog/internal/config"
	"github.com/tracklog/tracklog/internal/types"
)

// TestMain runs every test in a scratch directory with its own HOME so the
// developer's .tracklog and user config are never read.
func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "tracklog-cli-tests-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	oldWD, _ := os.Getwd()

	_ = os.Chdir(tmp)
	_ = os.Setenv("HOME", tmp)
	_ = os.Setenv("USERPROFILE", tmp)
	_ = os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg-config"))
	_ = os.Setenv("TL_NO_PAGER", "1")
	_ = os.Unsetenv("TL_OTEL_ENABLED")
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	config.ResetForTesting()
	_ = os.Chdir(oldWD)
	_ = os.RemoveAll(tmp)
	os.Exit(code)
}

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	err = fn()
	_ = w.Close()
	os.Stdout = oldStdout
	out := <-done
	if err != nil {
		t.Fatalf("command failed: %v\noutput: %s", err, out)
	}
	return out
}

// run executes tl with args and returns stdout.
func run(t *testing.T, args ...string) string {
	t.Helper()
	return captureStdout(t, func() error {
		rootCmd.SetArgs(args)
		return rootCmd.Execute()
	})
}

func decode(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
}

func TestCommandLineRoundTrip(t *testing.T) {
	var initOut map[string]string
	decode(t, run(t, "init", "--json", "--actor", "jsmith"), &initOut)
	if initOut["backend"] != "sqlite" {
		t.Errorf("backend = %q, want sqlite", initOut["backend"])
	}
	for _, name := range []string{"config.yaml", "workflow.yaml", "notify.toml", "hooks"} {
		if _, err := os.Stat(filepath.Join(config.DirName, name)); err != nil {
			t.Errorf("init did not write %s: %v", name, err)
		}
	}

	t.Run("create", func(t *testing.T) {
		var res struct {
			Issue    types.Issue `json:"issue"`
			Warnings []string    `json:"warnings"`
		}
		decode(t, run(t, "create", "Printing fails", "--project", "ecookbook",
			"--tracker", "Bug", "--priority", "High", "--json"), &res)
		if res.Issue.ID != 1 {
			t.Fatalf("issue id = %d, want 1", res.Issue.ID)
		}
		if res.Issue.Subject != "Printing fails" || res.Issue.PriorityID != 6 {
			t.Errorf("issue = %+v", res.Issue)
		}
		if res.Issue.StatusID != 1 {
			t.Errorf("status = %d, want the tracker default 1", res.Issue.StatusID)
		}
		if res.Issue.AuthorID != 2 {
			t.Errorf("author = %d, want jsmith (2)", res.Issue.AuthorID)
		}
	})

	t.Run("update", func(t *testing.T) {
		var res struct {
			Journal *types.Journal `json:"journal"`
			Changes []types.Change `json:"changes"`
		}
		decode(t, run(t, "update", "1", "--status", "Resolved", "-m", "Fixed", "--json"), &res)
		if res.Journal == nil {
			t.Fatal("update should write a journal")
		}
		if res.Journal.Notes != "Fixed" {
			t.Errorf("notes = %q", res.Journal.Notes)
		}
		if len(res.Changes) != 1 || res.Changes[0].Field != types.FieldStatus {
			t.Fatalf("changes = %+v, want one status change", res.Changes)
		}
		if deref(res.Changes[0].OldValue) != "1" || deref(res.Changes[0].NewValue) != "3" {
			t.Errorf("status change = %s -> %s", deref(res.Changes[0].OldValue), deref(res.Changes[0].NewValue))
		}
	})

	t.Run("journal", func(t *testing.T) {
		var journals []*types.Journal
		decode(t, run(t, "journal", "1", "--json"), &journals)
		if len(journals) != 1 {
			t.Fatalf("got %d journals, want 1", len(journals))
		}
		details := journals[0].Details
		if len(details) != 1 || details[0].Property != types.PropertyAttribute || details[0].PropKey != types.FieldStatus {
			t.Errorf("details = %+v", details)
		}
	})

	t.Run("show yaml", func(t *testing.T) {
		out := run(t, "show", "1", "--yaml", "--json=false")
		var view map[string]any
		if err := yaml.Unmarshal([]byte(out), &view); err != nil {
			t.Fatalf("invalid YAML: %v\n%s", err, out)
		}
		if view["subject"] != "Printing fails" {
			t.Errorf("subject = %v", view["subject"])
		}
		if _, ok := view["allowed_status_ids"]; !ok {
			t.Errorf("show output lacks allowed_status_ids:\n%s", out)
		}
	})

	t.Run("statuses", func(t *testing.T) {
		var opts []statusOption
		decode(t, run(t, "statuses", "1", "--json"), &opts)
		var current int
		for _, o := range opts {
			if o.Current {
				current++
				if o.ID != 3 {
					t.Errorf("current status = %d, want 3", o.ID)
				}
			}
		}
		if current != 1 {
			t.Errorf("want exactly one current status, got %d in %+v", current, opts)
		}
	})

	t.Run("list", func(t *testing.T) {
		var issues []types.Issue
		decode(t, run(t, "list", "--where", "status=Resolved AND priority>=High", "--json"), &issues)
		if len(issues) != 1 || issues[0].ID != 1 {
			t.Errorf("list = %+v, want issue 1", issues)
		}
		var none []types.Issue
		decode(t, run(t, "list", "--where", "status=closed", "--json"), &none)
		if len(none) != 0 {
			t.Errorf("status=closed matched %d issues", len(none))
		}
	})

	t.Run("bulk-edit", func(t *testing.T) {
		var res struct {
			RunID     string  `json:"run_id"`
			Succeeded []int64 `json:"succeeded"`
			Journals  int     `json:"journals"`
		}
		decode(t, run(t, "bulk-edit", "#1", "--priority", "Low", "--json"), &res)
		if res.RunID == "" {
			t.Error("bulk run should carry a run id")
		}
		if len(res.Succeeded) != 1 || res.Succeeded[0] != 1 || res.Journals != 1 {
			t.Errorf("bulk result = %+v", res)
		}
		if _, err := os.Stat(filepath.Join(config.DirName, "run.lock")); err != nil {
			t.Errorf("run lock file missing: %v", err)
		}
	})

	t.Run("journal after bulk", func(t *testing.T) {
		var journals []*types.Journal
		decode(t, run(t, "journal", "1", "--json"), &journals)
		if len(journals) != 2 {
			t.Fatalf("got %d journals, want 2", len(journals))
		}
		last := journals[1].Details
		if len(last) != 1 || last[0].PropKey != types.FieldPriority || deref(last[0].Value) != "4" {
			t.Errorf("bulk journal details = %+v", last)
		}
	})
}

func TestRenderJournals(t *testing.T) {
	oldNoColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = oldNoColor })

	c := defaultCatalog(t)
	journals := []*types.Journal{{
		UserID: 2,
		Notes:  "Fixed",
		Details: []*types.JournalDetail{
			{Property: types.PropertyAttribute, PropKey: types.FieldStatus, OldValue: ptr("1"), Value: ptr("3")},
			{Property: types.PropertyAttachment, PropKey: "7", Value: ptr("trace.log")},
		},
	}}
	out := renderJournals(c, journals)
	for _, want := range []string{"John Smith", "Status: New → Resolved", "File set to trace.log", "Fixed"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderJournals output lacks %q:\n%s", want, out)
		}
	}
}
