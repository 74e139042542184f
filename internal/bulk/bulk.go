// Package bulk applies one shared change set to many issues.
//
// Issues are processed one at a time in input order, each through its own
// engine transaction. A rejected issue is recorded and the run continues;
// only an infrastructure failure stops it.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracklog/tracklog/internal/debug"
	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/telemetry"
	"github.com/tracklog/tracklog/internal/types"
)

// Result aggregates per-issue outcomes of a bulk run.
type Result struct {
	RunID     string             `json:"run_id"`
	Succeeded []int64            `json:"succeeded"`
	Failed    []engine.Failure   `json:"failed,omitempty"`
	Journals  int                `json:"journals"`
	Warnings  map[int64][]string `json:"warnings,omitempty"`
}

// Err returns a *engine.PartialFailureError when any issue failed.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &engine.PartialFailureError{Succeeded: r.Succeeded, Failed: r.Failed}
}

func (r *Result) record(id int64, res *engine.Result) {
	r.Succeeded = append(r.Succeeded, id)
	if res.Journal != nil {
		r.Journals++
	}
	if len(res.Warnings) > 0 {
		if r.Warnings == nil {
			r.Warnings = make(map[int64][]string)
		}
		r.Warnings[id] = res.Warnings
	}
}

// Coordinator runs bulk edits through the engine.
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
		tracer: telemetry.Tracer("github.com/tracklog/tracklog/bulk"),
	}
}

// Shared prepares a bulk change set: blank values mean "leave as is" and
// are removed, "none" is kept and clears the field.
func Shared(cs types.ChangeSet) types.ChangeSet {
	out := make(types.ChangeSet, len(cs))
	for k, v := range cs {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Apply edits every issue in ids with the shared change set and notes.
//
// The returned error is non-nil only when the run was cut short by an
// infrastructure failure or a cancelled context; the Result then holds the
// outcomes up to that point. Per-issue rejections are in Result.Failed.
func (c *Coordinator) Apply(ctx context.Context, ids []int64, actor types.Actor, shared types.ChangeSet, notes string) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	changes := Shared(shared)

	ctx, span := c.tracer.Start(ctx, "bulk.apply", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.Int("issues", len(ids)),
		attribute.String("actor", actor.String()),
	))
	defer span.End()

	log := c.log.With("run", res.RunID, "actor", actor.String())
	log.Debug("bulk edit started", "issues", len(ids), "fields", changes.Fields())

	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("bulk edit interrupted after %d issues: %w", len(res.Succeeded)+len(res.Failed), err)
		}

		out, err := c.engine.Apply(ctx, id, actor, engine.Update{Changes: changes.Clone(), Notes: notes})
		if err != nil {
			if !engine.IsBusinessError(err) {
				log.Error("bulk edit aborted", "issue", id, "err", err)
				return res, fmt.Errorf("bulk edit of #%d: %w", id, err)
			}
			log.Debug("bulk edit skipped issue", "issue", id, "reason", engine.Reason(err))
			res.Failed = append(res.Failed, engine.NewFailure(id, err))
			continue
		}
		res.record(id, out)
	}

	span.SetAttributes(
		attribute.Int("succeeded", len(res.Succeeded)),
		attribute.Int("failed", len(res.Failed)),
	)
	log.Info("bulk edit finished", "succeeded", len(res.Succeeded), "failed", len(res.Failed), "journals", res.Journals)
	return res, nil
}
