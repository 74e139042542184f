// Package config holds the process-wide settings read from
// .tracklog/config.yaml, ~/.config/tracklog/config.yaml and TL_* variables.
//
// Priority: flags (applied by cmd/tl) > environment > project file >
// user file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the per-project directory holding the database and settings.
const DirName = ".tracklog"

var v *viper.Viper

// Initialize sets up the viper singleton. It is safe to call more than once;
// each call starts from a clean instance.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Project config wins over the user config, so it is merged last.
	if home, err := os.UserConfigDir(); err == nil {
		if err := merge(filepath.Join(home, "tracklog", "config.yaml")); err != nil {
			return err
		}
	}
	if path := findProjectConfig(); path != "" {
		if err := merge(path); err != nil {
			return err
		}
		v.Set("project-dir", filepath.Dir(filepath.Dir(path)))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "sqlite")
	v.SetDefault("db", filepath.Join(DirName, "tracklog.db"))
	v.SetDefault("actor", "")
	v.SetDefault("json", false)
	v.SetDefault("workflow", filepath.Join(DirName, "workflow.yaml"))
	v.SetDefault("notify.routes", filepath.Join(DirName, "notify.toml"))
	v.SetDefault("deletions.manifest", filepath.Join(DirName, "deletions.jsonl"))
	v.SetDefault("lock.timeout", 30*time.Second)
	v.SetDefault("hooks.timeout", 10*time.Second)
	v.SetDefault("log.format", "text")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.timeout", 5*time.Second)
	v.SetDefault("dolt.host", "127.0.0.1")
	v.SetDefault("dolt.port", 3307)
	v.SetDefault("dolt.user", "root")
	v.SetDefault("dolt.password", "")
	v.SetDefault("dolt.database", "tracklog")
}

func merge(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// findProjectConfig walks up from the working directory looking for
// .tracklog/config.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, DirName, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResetForTesting drops the singleton. Getters return zero values until
// the next Initialize.
func ResetForTesting() {
	v = nil
}

// GetString returns a string setting.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns a boolean setting.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns an integer setting.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns a duration setting ("30s", "2m").
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a setting for the rest of the process. cmd/tl uses it to
// apply flags. No-op before Initialize.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns the merged settings, for `tl config`-style dumps.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

// ConfigFileUsed returns the last config file merged, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// ProjectDir returns the directory containing .tracklog, or the working
// directory when no project config was found.
func ProjectDir() string {
	if dir := GetString("project-dir"); dir != "" {
		return dir
	}
	wd, _ := os.Getwd()
	return wd
}

// ResolvePath returns the path setting key, made absolute against
// ProjectDir when relative.
func ResolvePath(key string) string {
	p := GetString(key)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ProjectDir(), p)
}
