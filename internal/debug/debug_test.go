package debug

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func restore(t *testing.T) {
	t.Helper()
	oldEnabled := enabled
	t.Cleanup(func() {
		enabled = oldEnabled
		SetVerbose(false)
		SetQuiet(false)
		SetFormat("text")
		SetOutput(os.Stderr)
	})
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		name    string
		env     bool
		verbose bool
		want    bool
	}{
		{"env set", true, false, true},
		{"verbose flag", false, true, true},
		{"neither", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restore(t)
			enabled = tt.env
			SetVerbose(tt.verbose)
			if got := Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogf(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	SetOutput(&buf)

	enabled = false
	Logf("hidden %d\n", 1)
	if buf.Len() != 0 {
		t.Fatalf("Logf wrote %q while disabled", buf.String())
	}

	SetVerbose(true)
	Logf("shown %d\n", 2)
	if buf.String() != "shown 2\n" {
		t.Errorf("Logf output = %q", buf.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	restore(t)
	enabled = false
	var buf bytes.Buffer
	SetOutput(&buf)

	Logger().Debug("debug line")
	Logger().Info("info line")
	if strings.Contains(buf.String(), "debug line") || !strings.Contains(buf.String(), "info line") {
		t.Errorf("default level output = %q", buf.String())
	}

	buf.Reset()
	SetQuiet(true)
	Logger().Info("info line")
	Logger().Warn("warn line")
	if strings.Contains(buf.String(), "info line") || !strings.Contains(buf.String(), "warn line") {
		t.Errorf("quiet output = %q", buf.String())
	}

	buf.Reset()
	SetQuiet(false)
	SetVerbose(true)
	Logger().Debug("debug line")
	if !strings.Contains(buf.String(), "debug line") {
		t.Errorf("verbose output = %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	restore(t)
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")

	Logger().Info("issue updated", "issue", 7)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %q (%v)", buf.String(), err)
	}
	if rec["msg"] != "issue updated" || rec["issue"] != float64(7) {
		t.Errorf("record = %v", rec)
	}
}
