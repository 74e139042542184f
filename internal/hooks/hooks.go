// Package hooks runs executable scripts from .tracklog/hooks/ when issues
// change. A Runner is a notification.Sender, so hooks are just one more
// route on the dispatcher.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tracklog/tracklog/internal/notification"
)

// Hook file names
const (
	HookOnCreate = "on_create"
	HookOnUpdate = "on_update"
	HookOnClose  = "on_close"
	HookOnDelete = "on_delete"
)

// DirName is the hooks directory inside .tracklog.
const DirName = "hooks"

const (
	defaultTimeout = 10 * time.Second
	maxOutputBytes = 4096
)

// Runner handles hook execution
type Runner struct {
	hooksDir string
	timeout  time.Duration
}

// NewRunner creates a hook runner for hooksDir, typically .tracklog/hooks.
func NewRunner(hooksDir string) *Runner {
	return &Runner{
		hooksDir: hooksDir,
		timeout:  defaultTimeout,
	}
}

// NewRunnerFromProject creates a hook runner for the .tracklog directory
// of a project.
func NewRunnerFromProject(trackDir string) *Runner {
	return NewRunner(filepath.Join(trackDir, DirName))
}

// SetTimeout bounds how long a single hook may run.
func (r *Runner) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Send runs the hook for ev, if one is installed. The script gets the
// issue id and event kind as arguments and the event as JSON on stdin.
func (r *Runner) Send(ctx context.Context, ev notification.Event) error {
	name := hookFor(ev)
	if name == "" || ev.Issue == nil {
		return nil
	}
	path := filepath.Join(r.hooksDir, name)
	if !isExecutable(path) {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.runHook(ctx, path, strconv.FormatInt(ev.Issue.ID, 10), string(ev.Kind), payload); err != nil {
		return fmt.Errorf("hook %s: %w", name, err)
	}
	return nil
}

// HookExists reports whether an executable hook is installed under name.
func (r *Runner) HookExists(name string) bool {
	return isExecutable(filepath.Join(r.hooksDir, name))
}

// hookFor picks the script for an event. An update that closes the issue
// runs on_close instead of on_update.
func hookFor(ev notification.Event) string {
	switch ev.Kind {
	case notification.KindCreated:
		return HookOnCreate
	case notification.KindUpdated:
		if closedByJournal(ev) {
			return HookOnClose
		}
		return HookOnUpdate
	case notification.KindDeleted:
		return HookOnDelete
	default:
		return ""
	}
}

func closedByJournal(ev notification.Event) bool {
	if ev.Issue == nil || ev.Issue.ClosedOn == nil || ev.Journal == nil {
		return false
	}
	return !ev.Issue.ClosedOn.Before(ev.Journal.CreatedOn)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

func truncateOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "... (truncated)"
}
