package deletions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/debug"
	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/notification"
	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/validation"
)

// Todo says what happens to the time logged on deleted issues.
type Todo string

// Dispositions
const (
	TodoNone     Todo = ""
	TodoDestroy  Todo = "destroy"
	TodoNullify  Todo = "nullify"
	TodoReassign Todo = "reassign"
)

// Disposition is a Todo with its reassignment target.
type Disposition struct {
	Todo       Todo
	ReassignTo int64
}

// ParseDisposition parses "destroy", "nullify" or "reassign:<id>". Blank
// means no disposition.
func ParseDisposition(s string) (Disposition, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Disposition{}, nil
	case s == string(TodoDestroy):
		return Disposition{Todo: TodoDestroy}, nil
	case s == string(TodoNullify):
		return Disposition{Todo: TodoNullify}, nil
	case strings.HasPrefix(s, string(TodoReassign)+":"):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, string(TodoReassign)+":"), 10, 64)
		if err != nil || id <= 0 {
			return Disposition{}, fmt.Errorf("invalid reassign target in %q", s)
		}
		return Disposition{Todo: TodoReassign, ReassignTo: id}, nil
	}
	return Disposition{}, fmt.Errorf("invalid time entry disposition %q (expected destroy, nullify or reassign:<id>)", s)
}

// ErrHoursLogged is returned when issues with logged time are deleted
// without a disposition. Nothing is deleted.
var ErrHoursLogged = errors.New("issues have logged hours")

// HoursLoggedError reports the hours that need a disposition.
type HoursLoggedError struct {
	Hours decimal.Decimal
}

func (e *HoursLoggedError) Error() string {
	return fmt.Sprintf("%s hours were reported on the issues you are about to delete", e.Hours.String())
}

// Is lets errors.Is(err, ErrHoursLogged) match.
func (e *HoursLoggedError) Is(target error) bool {
	return target == ErrHoursLogged
}

// Result of a deletion run.
type Result struct {
	Deleted     []int64          `json:"deleted"`
	Failed      []engine.Failure `json:"failed,omitempty"`
	TimeEntries int64            `json:"time_entries"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// Err returns a *engine.PartialFailureError when any issue failed.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &engine.PartialFailureError{Succeeded: r.Deleted, Failed: r.Failed}
}

// Deleter deletes issues through the engine's store and permission oracle.
type Deleter struct {
	engine   *engine.Engine
	manifest string
	log      *slog.Logger
}

// New returns a deleter that appends to the manifest at path. An empty path
// disables the manifest.
func New(e *engine.Engine, path string) *Deleter {
	return &Deleter{engine: e, manifest: path, log: debug.Logger()}
}

// target is one requested issue and its subtree, leaves first.
type target struct {
	root    *types.Issue
	subtree []*types.Issue
}

// Delete removes the issues in ids together with their sub-issues.
//
// Issues the actor may not see or delete are reported in Result.Failed.
// When the remaining issues have logged hours and disp is empty, nothing is
// deleted and a *HoursLoggedError is returned.
func (d *Deleter) Delete(ctx context.Context, ids []int64, actor types.Actor, disp Disposition, reason string) (*Result, error) {
	store := d.engine.Store()
	res := &Result{}

	var targets []target
	covered := make(map[int64]bool)
	for _, id := range ids {
		if covered[id] {
			continue
		}
		issue, err := store.GetIssue(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				res.Failed = append(res.Failed, engine.NewFailure(id, fmt.Errorf("%w: #%d", engine.ErrNotFound, id)))
				continue
			}
			return nil, fmt.Errorf("%w: %w", engine.ErrInfrastructure, err)
		}
		subtree, err := d.subtree(ctx, issue)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", engine.ErrInfrastructure, err)
		}
		if denied := d.firstDenied(ctx, actor, subtree); denied != nil {
			err := fmt.Errorf("%w: %s cannot delete issue #%d", engine.ErrUnauthorized, actor, denied.ID)
			res.Failed = append(res.Failed, engine.NewFailure(id, err))
			continue
		}
		for _, i := range subtree {
			covered[i.ID] = true
		}
		targets = append(targets, target{root: issue, subtree: subtree})
	}
	if len(targets) == 0 {
		return res, nil
	}

	hours, err := d.loggedHours(ctx, targets)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrInfrastructure, err)
	}
	var reassignTo *types.Issue
	if hours.IsPositive() {
		switch disp.Todo {
		case TodoNone:
			return nil, &HoursLoggedError{Hours: hours}
		case TodoReassign:
			reassignTo, err = d.reassignTarget(ctx, actor, disp.ReassignTo, covered)
			if err != nil {
				return nil, err
			}
		}
	}

	var records []Record
	for _, t := range targets {
		n, recs, err := d.deleteTree(ctx, actor, t, disp, reassignTo, reason)
		if err != nil {
			if engine.IsBusinessError(err) {
				res.Failed = append(res.Failed, engine.NewFailure(t.root.ID, err))
				continue
			}
			return res, err
		}
		res.Deleted = append(res.Deleted, t.root.ID)
		res.TimeEntries += n
		records = append(records, recs...)
		for _, i := range t.subtree {
			d.engine.Notify(ctx, notification.KindDeleted, i, nil, actor)
		}
	}

	if d.manifest != "" && len(records) > 0 {
		if err := Append(d.manifest, records...); err != nil {
			d.log.Warn("deletions manifest not updated", "path", d.manifest, "err", err)
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	d.log.Info("issues deleted", "actor", actor.String(), "deleted", len(res.Deleted), "failed", len(res.Failed), "todo", string(disp.Todo))
	return res, nil
}

// subtree returns the issue and all its descendants, leaves first.
func (d *Deleter) subtree(ctx context.Context, root *types.Issue) ([]*types.Issue, error) {
	var out []*types.Issue
	var walk func(issue *types.Issue, depth int) error
	walk = func(issue *types.Issue, depth int) error {
		if depth > 100 {
			return fmt.Errorf("issue #%d: sub-issue tree too deep", root.ID)
		}
		children, err := d.engine.Store().GetChildren(ctx, issue.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		out = append(out, issue)
		return nil
	}
	if err := walk(root, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Deleter) firstDenied(ctx context.Context, actor types.Actor, issues []*types.Issue) *types.Issue {
	for _, i := range issues {
		if !d.engine.Can(ctx, actor, i, types.CapDelete) {
			return i
		}
	}
	return nil
}

func (d *Deleter) loggedHours(ctx context.Context, targets []target) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range targets {
		for _, i := range t.subtree {
			entries, err := d.engine.Store().GetTimeEntries(ctx, i.ID)
			if err != nil {
				return decimal.Zero, err
			}
			for _, e := range entries {
				total = total.Add(e.Hours)
			}
		}
	}
	return total, nil
}

// reassignTarget checks that hours can be moved to issue id: it must exist,
// survive the deletion and accept time from the actor.
func (d *Deleter) reassignTarget(ctx context.Context, actor types.Actor, id int64, deleted map[int64]bool) (*types.Issue, error) {
	if id == 0 || deleted[id] {
		return nil, invalidReassignTarget()
	}
	issue, err := d.engine.Store().GetIssue(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, invalidReassignTarget()
		}
		return nil, fmt.Errorf("%w: %w", engine.ErrInfrastructure, err)
	}
	if !d.engine.Can(ctx, actor, issue, types.CapLogTime) {
		return nil, fmt.Errorf("%w: %s cannot log time on issue #%d", engine.ErrUnauthorized, actor, id)
	}
	return issue, nil
}

// deleteTree deletes one requested issue and its subtree in a single
// transaction.
func (d *Deleter) deleteTree(ctx context.Context, actor types.Actor, t target, disp Disposition, reassignTo *types.Issue, reason string) (int64, []Record, error) {
	var moved int64
	var records []Record
	err := d.engine.Store().RunInTransaction(ctx, func(tx storage.Transaction) error {
		moved, records = 0, nil
		for _, i := range t.subtree {
			hours := decimal.Zero
			entries, err := tx.GetTimeEntries(ctx, i.ID)
			if err != nil {
				return err
			}
			for _, e := range entries {
				hours = hours.Add(e.Hours)
			}

			var n int64
			switch disp.Todo {
			case TodoDestroy:
				n, err = tx.DeleteTimeEntries(ctx, i.ID)
			case TodoNullify:
				n, err = tx.ReassignTimeEntries(ctx, i.ID, nil)
			case TodoReassign:
				if len(entries) > 0 {
					n, err = tx.ReassignTimeEntries(ctx, i.ID, reassignTo)
				}
			}
			if err != nil {
				return err
			}
			moved += n

			if err := tx.DeleteIssue(ctx, i.ID); err != nil {
				return err
			}
			if err := d.engine.RollupRemoved(ctx, tx, i); err != nil {
				return err
			}
			records = append(records, Record{
				IssueID:    i.ID,
				ProjectID:  i.ProjectID,
				Subject:    i.Subject,
				ParentID:   i.ParentID,
				Timestamp:  d.engine.Now().UTC(),
				Actor:      actor.String(),
				Todo:       disp.Todo,
				ReassignTo: disp.ReassignTo,
				Hours:      hours,
				Reason:     reason,
			})
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return 0, nil, fmt.Errorf("%w: #%d", engine.ErrNotFound, t.root.ID)
		case errors.Is(err, storage.ErrConflict):
			return 0, nil, fmt.Errorf("%w: %w", engine.ErrConcurrentModification, err)
		}
		return 0, nil, fmt.Errorf("%w: %w", engine.ErrInfrastructure, err)
	}
	return moved, records, nil
}

func invalidReassignTarget() error {
	return &engine.ValidationError{Errors: []validation.FieldError{
		validation.NewFieldError("reassign_to_id", validation.CodeInvalid),
	}}
}
