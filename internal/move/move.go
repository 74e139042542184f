// Package move moves issues to another project or tracker, or copies them.
//
// Both modes go through the engine, so a moved issue is revalidated
// against its destination and a copy is a regular creation. Issues are
// processed in input order and a rejected issue does not stop the run.
package move

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracklog/tracklog/internal/bulk"
	"github.com/tracklog/tracklog/internal/debug"
	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/telemetry"
	"github.com/tracklog/tracklog/internal/types"
)

// Mode selects between moving and copying.
type Mode string

// Modes
const (
	ModeMove Mode = "move"
	ModeCopy Mode = "copy"
)

// CopyOptions selects what a copy carries over besides attributes.
type CopyOptions struct {
	Attachments bool `json:"attachments"`
	Children    bool `json:"children"`
	Watchers    bool `json:"watchers"`
}

// Request describes one move or copy run.
type Request struct {
	IDs             []int64
	Actor           types.Actor
	TargetProjectID int64
	TargetTrackerID int64 // 0 keeps the tracker when the target project has it
	Overrides       types.ChangeSet
	Mode            Mode
	Copy            CopyOptions
	Notes           string
}

// Result aggregates per-issue outcomes. Copies maps each source id to the
// id of its copy, children included.
type Result struct {
	RunID     string             `json:"run_id"`
	Mode      Mode               `json:"mode"`
	Succeeded []int64            `json:"succeeded"`
	Failed    []engine.Failure   `json:"failed,omitempty"`
	Copies    map[int64]int64    `json:"copies,omitempty"`
	Warnings  map[int64][]string `json:"warnings,omitempty"`
}

// Err returns a *engine.PartialFailureError when any issue failed.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &engine.PartialFailureError{Succeeded: r.Succeeded, Failed: r.Failed}
}

func (r *Result) warn(id int64, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	if r.Warnings == nil {
		r.Warnings = make(map[int64][]string)
	}
	r.Warnings[id] = append(r.Warnings[id], warnings...)
}

// Coordinator runs move and copy requests.
type Coordinator struct {
	engine *engine.Engine
	log    *slog.Logger
	tracer trace.Tracer
}

// New returns a coordinator over e.
func New(e *engine.Engine) *Coordinator {
	return &Coordinator{
		engine: e,
		log:    debug.Logger(),
		tracer: telemetry.Tracer("github.com/tracklog/tracklog/move"),
	}
}

// Run moves or copies every issue of req.
//
// As with bulk edits the error is non-nil only when an infrastructure
// failure or cancellation cut the run short.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Mode != ModeMove && req.Mode != ModeCopy {
		return nil, fmt.Errorf("unknown mode %q (expected move or copy)", req.Mode)
	}
	if _, ok := c.engine.Catalog().Project(req.TargetProjectID); !ok {
		return nil, fmt.Errorf("unknown target project %d", req.TargetProjectID)
	}

	res := &Result{RunID: uuid.NewString(), Mode: req.Mode}
	ctx, span := c.tracer.Start(ctx, "move.run", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("mode", string(req.Mode)),
		attribute.Int64("target.project", req.TargetProjectID),
		attribute.Int("issues", len(req.IDs)),
	))
	defer span.End()

	log := c.log.With("run", res.RunID, "mode", req.Mode, "actor", req.Actor.String())
	overrides := bulk.Shared(req.Overrides)

	seen := make(map[int64]bool, len(req.IDs))
	for _, id := range req.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s interrupted: %w", req.Mode, err)
		}

		if _, copied := res.Copies[id]; copied {
			// Already copied as a sub-issue of an earlier id.
			res.Succeeded = append(res.Succeeded, id)
			continue
		}

		var err error
		if req.Mode == ModeMove {
			err = c.moveOne(ctx, req, id, overrides, res)
		} else {
			_, err = c.copyOne(ctx, req, id, nil, overrides, res)
		}
		if err != nil {
			if !engine.IsBusinessError(err) {
				log.Error("run aborted", "issue", id, "err", err)
				return res, fmt.Errorf("%s #%d: %w", req.Mode, id, err)
			}
			log.Debug("issue skipped", "issue", id, "reason", engine.Reason(err))
			res.Failed = append(res.Failed, engine.NewFailure(id, err))
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	log.Info("run finished", "succeeded", len(res.Succeeded), "failed", len(res.Failed))
	return res, nil
}

func (c *Coordinator) load(ctx context.Context, id int64, actor types.Actor) (*types.Issue, error) {
	issue, err := c.engine.Store().GetIssue(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: #%d", engine.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %w", engine.ErrInfrastructure, err)
	}
	if !c.engine.Can(ctx, actor, issue, types.CapView) {
		return nil, fmt.Errorf("%w: %s cannot view issue #%d", engine.ErrUnauthorized, actor, id)
	}
	return issue, nil
}

// targetTracker picks the destination tracker: the requested one, else the
// issue's own when the target project has it, else the project's first.
func (c *Coordinator) targetTracker(req Request, issue *types.Issue) int64 {
	if req.TargetTrackerID != 0 {
		return req.TargetTrackerID
	}
	project, _ := c.engine.Catalog().Project(req.TargetProjectID)
	if project.HasTracker(issue.TrackerID) || len(project.TrackerIDs) == 0 {
		return issue.TrackerID
	}
	return project.TrackerIDs[0]
}

// moveOne reassigns project and tracker through engine.Apply. The engine
// clears values the destination does not have and journals the move.
func (c *Coordinator) moveOne(ctx context.Context, req Request, id int64, overrides types.ChangeSet, res *Result) error {
	issue, err := c.load(ctx, id, req.Actor)
	if err != nil {
		return err
	}
	cs := overrides.Clone()
	cs[types.FieldProject] = strconv.FormatInt(req.TargetProjectID, 10)
	cs[types.FieldTracker] = strconv.FormatInt(c.targetTracker(req, issue), 10)

	lock := issue.LockVersion
	out, err := c.engine.Apply(ctx, id, req.Actor, engine.Update{
		Changes:     cs,
		Notes:       req.Notes,
		LockVersion: &lock,
	})
	if err != nil {
		return err
	}
	res.warn(id, out.Warnings)
	return nil
}

// copyOne creates a copy of issue id under parentID (nil keeps the
// source's parent when it stays in the same project) and, when requested,
// copies its children under the new issue.
func (c *Coordinator) copyOne(ctx context.Context, req Request, id int64, parentID *int64, overrides types.ChangeSet, res *Result) (int64, error) {
	source, err := c.load(ctx, id, req.Actor)
	if err != nil {
		return 0, err
	}

	cs := c.copyChanges(req, source, parentID)
	for k, v := range overrides {
		cs[k] = v
	}
	_, statusOverride := overrides[types.FieldStatus]
	n := engine.NewIssue{
		ProjectID:  req.TargetProjectID,
		Changes:    cs,
		Notes:      req.Notes,
		KeepStatus: !statusOverride,
	}
	if req.Copy.Watchers {
		n.WatcherIDs = append([]int64(nil), source.WatcherIDs...)
	}
	if req.Copy.Attachments {
		attachments, err := c.engine.Store().GetAttachments(ctx, source.ID)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", engine.ErrInfrastructure, err)
		}
		for _, a := range attachments {
			n.Attachments = append(n.Attachments, &types.Attachment{
				Filename:    a.Filename,
				ContentType: a.ContentType,
				Filesize:    a.Filesize,
			})
		}
	}

	out, err := c.engine.Create(ctx, req.Actor, n)
	if err != nil {
		return 0, err
	}
	if res.Copies == nil {
		res.Copies = make(map[int64]int64)
	}
	res.Copies[source.ID] = out.Issue.ID
	res.warn(source.ID, out.Warnings)

	if !req.Copy.Children {
		return out.Issue.ID, nil
	}
	children, err := c.engine.Store().GetChildren(ctx, source.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", engine.ErrInfrastructure, err)
	}
	newParent := out.Issue.ID
	for _, child := range children {
		if _, done := res.Copies[child.ID]; done {
			continue
		}
		// Children take the source's own attributes; overrides apply to
		// the requested issues only.
		if _, err := c.copyOne(ctx, req, child.ID, &newParent, nil, res); err != nil {
			if !engine.IsBusinessError(err) {
				return 0, err
			}
			res.warn(source.ID, []string{fmt.Sprintf("sub-issue #%d not copied: %s", child.ID, engine.Reason(err))})
		}
	}
	return out.Issue.ID, nil
}

// copyChanges renders the copyable attributes of source as a change set
// for engine.Create. Identity, author, timestamps, spent time, closed_on
// and lock_version are not copied. References the target project does not
// have are left out.
func (c *Coordinator) copyChanges(req Request, source *types.Issue, parentID *int64) types.ChangeSet {
	cat := c.engine.Catalog()
	target := req.TargetProjectID
	cs := types.ChangeSet{
		types.FieldTracker:  strconv.FormatInt(c.targetTracker(req, source), 10),
		types.FieldStatus:   strconv.FormatInt(source.StatusID, 10),
		types.FieldPriority: strconv.FormatInt(source.PriorityID, 10),
		types.FieldSubject:  source.Subject,
	}
	set := func(field string) {
		if v := source.FieldValue(field); v != nil {
			cs[field] = *v
		}
	}
	set(types.FieldDescription)
	set(types.FieldStartDate)
	set(types.FieldDueDate)
	set(types.FieldEstimatedHours)
	set(types.FieldBillable)

	var assignees []int64
	for _, uid := range source.AssigneeIDs {
		if cat.Assignable(target, uid) {
			assignees = append(assignees, uid)
		}
	}
	if len(assignees) > 0 {
		cs[types.FieldAssignees] = types.FormatIDs(assignees)
	}
	if source.CategoryID != nil && cat.CategoryInProject(target, *source.CategoryID) {
		set(types.FieldCategory)
	}
	if v := source.FixedVersionID; v != nil && cat.VersionVisible(target, *v) {
		if version, ok := cat.Version(*v); ok && version.IsOpen() {
			set(types.FieldFixedVersion)
		}
	}
	switch {
	case parentID != nil:
		cs[types.FieldParent] = strconv.FormatInt(*parentID, 10)
	case source.ProjectID == target:
		set(types.FieldParent)
	}
	for fieldID, value := range source.CustomValues {
		cs[types.CustomFieldKey(fieldID)] = value
	}
	return cs
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
