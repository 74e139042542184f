// Package debug holds the process-wide logger and the verbose/quiet switches.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	enabled     = os.Getenv("TL_DEBUG") != ""
	verboseMode = false
	quietMode   = false
	jsonFormat  = false

	mu     sync.Mutex
	out    io.Writer = os.Stderr
	level            = new(slog.LevelVar)
	logger *slog.Logger
)

func init() {
	resetLevel()
	logger = newLogger()
}

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	verboseMode = verbose
	resetLevel()
}

// SetQuiet suppresses informational output and info-level logs.
func SetQuiet(quiet bool) {
	mu.Lock()
	defer mu.Unlock()
	quietMode = quiet
	resetLevel()
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// SetFormat switches the log handler between "text" and "json".
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	jsonFormat = format == "json"
	logger = newLogger()
}

// SetOutput redirects log output. Tests use it to capture records.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	logger = newLogger()
}

func resetLevel() {
	switch {
	case enabled || verboseMode:
		level.Set(slog.LevelDebug)
	case quietMode:
		level.Set(slog.LevelWarn)
	default:
		level.Set(slog.LevelInfo)
	}
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Logf prints a trace line to stderr when debugging is on.
func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		mu.Lock()
		w := out
		mu.Unlock()
		fmt.Fprintf(w, format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
// Use this for normal informational output that should be suppressed in quiet mode
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
