package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeProjectConfig(t *testing.T, dir, content string) string {
	t.Helper()
	tlDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(tlDir, 0o750); err != nil {
		t.Fatalf("failed to create %s: %v", DirName, err)
	}
	path := filepath.Join(tlDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestInitialize(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
}

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected any
		getter   func(string) any
	}{
		{"backend", "sqlite", func(k string) any { return GetString(k) }},
		{"db", filepath.Join(".tracklog", "tracklog.db"), func(k string) any { return GetString(k) }},
		{"actor", "", func(k string) any { return GetString(k) }},
		{"json", false, func(k string) any { return GetBool(k) }},
		{"notify.routes", filepath.Join(".tracklog", "notify.toml"), func(k string) any { return GetString(k) }},
		{"lock.timeout", 30 * time.Second, func(k string) any { return GetDuration(k) }},
		{"nats.url", "", func(k string) any { return GetString(k) }},
		{"dolt.port", 3307, func(k string) any { return GetInt(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected any
		getter   func(string) any
	}{
		{"TL_JSON", "json", "true", true, func(k string) any { return GetBool(k) }},
		{"TL_ACTOR", "actor", "jsmith", "jsmith", func(k string) any { return GetString(k) }},
		{"TL_DB", "db", "/tmp/test.db", "/tmp/test.db", func(k string) any { return GetString(k) }},
		{"TL_BACKEND", "backend", "dolt", "dolt", func(k string) any { return GetString(k) }},
		{"TL_LOCK_TIMEOUT", "lock.timeout", "10s", 10 * time.Second, func(k string) any { return GetDuration(k) }},
		{"TL_NATS_URL", "nats.url", "nats://127.0.0.1:4222", "nats://127.0.0.1:4222", func(k string) any { return GetString(k) }},
		{"TL_DOLT_PORT", "dolt.port", "3310", 3310, func(k string) any { return GetInt(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) with %s=%s = %v, want %v", tt.key, tt.envVar, tt.value, got, tt.expected)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeProjectConfig(t, tmpDir, `
json: true
actor: configuser
backend: dolt
lock:
  timeout: 15s
dolt:
  database: issues
`)
	sub := filepath.Join(tmpDir, "src", "deep")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetBool("json"); !got {
		t.Errorf("GetBool(json) = %v, want true", got)
	}
	if got := GetString("actor"); got != "configuser" {
		t.Errorf("GetString(actor) = %q, want \"configuser\"", got)
	}
	if got := GetDuration("lock.timeout"); got != 15*time.Second {
		t.Errorf("GetDuration(lock.timeout) = %v, want 15s", got)
	}
	if got := GetString("dolt.database"); got != "issues" {
		t.Errorf("GetString(dolt.database) = %q, want \"issues\"", got)
	}
	if got := GetString("dolt.host"); got != "127.0.0.1" {
		t.Errorf("unset nested keys keep their default, got %q", got)
	}

	// Paths resolve against the directory holding .tracklog, not the cwd.
	root, _ := filepath.EvalSymlinks(tmpDir)
	got, _ := filepath.EvalSymlinks(filepath.Dir(filepath.Dir(ResolvePath("db"))))
	if got != root {
		t.Errorf("ResolvePath(db) is under %q, want %q", got, root)
	}
}

func TestUserConfigIsOverriddenByProject(t *testing.T) {
	tmpDir := t.TempDir()
	xdg := filepath.Join(tmpDir, "xdg")
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if err := os.MkdirAll(filepath.Join(xdg, "tracklog"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(xdg, "tracklog", "config.yaml"), []byte("actor: global\nlog:\n  format: json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	project := filepath.Join(tmpDir, "project")
	writeProjectConfig(t, project, "actor: local\n")
	t.Chdir(project)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString("actor"); got != "local" {
		t.Errorf("actor = %q, want the project value", got)
	}
	if got := GetString("log.format"); got != "json" {
		t.Errorf("log.format = %q, want the user value", got)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	writeProjectConfig(t, tmpDir, "json: false\n")
	t.Chdir(tmpDir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if GetBool("json") {
		t.Error("GetBool(json) from config file = true, want false")
	}

	t.Setenv("TL_JSON", "true")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if !GetBool("json") {
		t.Error("env should override config file")
	}

	Set("json", false)
	if GetBool("json") {
		t.Error("Set should override env")
	}
}

func TestInvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeProjectConfig(t, tmpDir, "actor: [unterminated\n")
	t.Chdir(tmpDir)

	if err := Initialize(); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestNilViperBehavior(t *testing.T) {
	savedV := v
	v = nil
	defer func() { v = savedV }()

	if got := GetString("any-key"); got != "" {
		t.Errorf("GetString with nil viper = %q, want \"\"", got)
	}
	if got := GetBool("any-key"); got {
		t.Errorf("GetBool with nil viper = %v, want false", got)
	}
	if got := GetInt("any-key"); got != 0 {
		t.Errorf("GetInt with nil viper = %d, want 0", got)
	}
	if got := GetDuration("any-key"); got != 0 {
		t.Errorf("GetDuration with nil viper = %v, want 0", got)
	}
	if got := AllSettings(); got == nil || len(got) != 0 {
		t.Errorf("AllSettings with nil viper = %v, want empty map", got)
	}
	Set("any-key", "any-value") // no-op
}
