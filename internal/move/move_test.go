package move

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/testutil/teststore"
	"github.com/tracklog/tracklog/internal/types"
)

func setup(t *testing.T) (*teststore.Env, *teststore.Fixtures, *Coordinator) {
	t.Helper()
	env := teststore.NewEnv(t)
	e := engine.New(env.Store, env.Catalog, env.Oracle,
		engine.WithClock(func() time.Time { return teststore.Now }))
	return env, env.Seed(), New(e)
}

func count(t *testing.T, env *teststore.Env, projectID int64) int {
	t.Helper()
	var filter types.IssueFilter
	if projectID != 0 {
		filter.ProjectID = types.Int64Ptr(projectID)
	}
	n, err := env.Store.CountIssues(env.Ctx, filter)
	require.NoError(t, err)
	return n
}

func TestMoveClearsWhatTheTargetLacks(t *testing.T) {
	env, fx, c := setup(t)

	res, err := c.Run(env.Ctx, Request{
		IDs:             []int64{fx.PrintBug.ID},
		Actor:           env.Actor("jsmith"),
		TargetProjectID: 2,
		Mode:            ModeMove,
		Notes:           "Belongs to the store",
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, []int64{fx.PrintBug.ID}, res.Succeeded)

	got := env.Reload(fx.PrintBug.ID)
	assert.Equal(t, int64(2), got.ProjectID)
	assert.Equal(t, int64(1), got.TrackerID)
	assert.Nil(t, got.CategoryID, "Printing is an ecookbook category")
	assert.Equal(t, "125", got.CustomValue(2), "for_all fields survive")

	journals := env.Journals(fx.PrintBug.ID)
	require.Len(t, journals, 1)
	var keys []string
	for _, d := range journals[0].Details {
		keys = append(keys, d.PropKey)
	}
	assert.Equal(t, []string{types.FieldProject, types.FieldCategory}, keys)
}

func TestMoveChangesTrackerAndAppliesOverrides(t *testing.T) {
	env, fx, c := setup(t)

	res, err := c.Run(env.Ctx, Request{
		IDs:             []int64{fx.Feature.ID},
		Actor:           env.Actor("jsmith"),
		TargetProjectID: 2,
		TargetTrackerID: 1,
		Overrides:       types.ChangeSet{types.FieldFixedVersion: "4", types.FieldPriority: ""},
		Mode:            ModeMove,
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())

	got := env.Reload(fx.Feature.ID)
	assert.Equal(t, int64(1), got.TrackerID)
	require.NotNil(t, got.FixedVersionID)
	assert.Equal(t, int64(4), *got.FixedVersionID)
	assert.Empty(t, got.AssigneeIDs, "dlopper is not a member of onlinestore")
	assert.Equal(t, fx.Feature.PriorityID, got.PriorityID)
}

func TestMoveRequiresAddIssuesInTarget(t *testing.T) {
	env, fx, c := setup(t)

	res, err := c.Run(env.Ctx, Request{
		IDs:             []int64{fx.PrintBug.ID, fx.Recipe.ID},
		Actor:           env.Actor("dlopper"),
		TargetProjectID: 2,
		Mode:            ModeMove,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "unauthorized", res.Failed[0].Reason)
	assert.True(t, errors.Is(res.Err(), engine.ErrPartialFailure))
	assert.Equal(t, int64(1), env.Reload(fx.PrintBug.ID).ProjectID)
}

func TestMoveRejectsUnknownTarget(t *testing.T) {
	env, fx, c := setup(t)
	_, err := c.Run(env.Ctx, Request{IDs: []int64{fx.PrintBug.ID}, Actor: env.Actor("admin"), TargetProjectID: 42, Mode: ModeMove})
	require.Error(t, err)
}

func TestCopyCreatesOneIssuePerID(t *testing.T) {
	env, fx, c := setup(t)
	total, source := count(t, env, 0), count(t, env, 1)

	res, err := c.Run(env.Ctx, Request{
		IDs:             []int64{fx.PrintBug.ID, fx.Feature.ID},
		Actor:           env.Actor("jsmith"),
		TargetProjectID: 2,
		Overrides:       types.ChangeSet{types.FieldSubject: "Copied"},
		Mode:            ModeCopy,
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Len(t, res.Copies, 2)

	assert.Equal(t, total+2, count(t, env, 0))
	assert.Equal(t, source, count(t, env, 1))

	cp := env.Reload(res.Copies[fx.PrintBug.ID])
	assert.Equal(t, int64(2), cp.ProjectID)
	assert.Equal(t, "Copied", cp.Subject)
	assert.Equal(t, int64(4), cp.PriorityID)
	assert.Equal(t, int64(2), cp.AuthorID, "copies are authored by the actor")
	assert.Nil(t, cp.CategoryID)
	assert.Empty(t, cp.WatcherIDs, "watchers only with the copy option")
	assert.True(t, cp.SpentHours.IsZero())

	src := env.Reload(fx.PrintBug.ID)
	assert.Equal(t, fx.PrintBug.Subject, src.Subject)
	assert.Equal(t, fx.PrintBug.LockVersion, src.LockVersion)
}

func TestCopyWithOptions(t *testing.T) {
	env, fx, c := setup(t)
	require.NoError(t, env.Store.AddAttachment(env.Ctx, &types.Attachment{IssueID: fx.Recipe.ID, Filename: "trace.txt", Filesize: 12, AuthorID: 2}))

	res, err := c.Run(env.Ctx, Request{
		IDs:             []int64{fx.Recipe.ID, fx.ChildA.ID},
		Actor:           env.Actor("jsmith"),
		TargetProjectID: 1,
		Mode:            ModeCopy,
		Copy:            CopyOptions{Attachments: true, Children: true, Watchers: true},
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, []int64{fx.Recipe.ID, fx.ChildA.ID}, res.Succeeded)
	require.Len(t, res.Copies, 3, "parent and both children")

	copyID := res.Copies[fx.Recipe.ID]
	children, err := env.Store.GetChildren(env.Ctx, copyID)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	cp := env.Reload(copyID)
	assert.True(t, cp.EstimatedHours.Equal(decimal.NewFromInt(8)))
	attachments, err := env.Store.GetAttachments(env.Ctx, copyID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "trace.txt", attachments[0].Filename)

	// The source tree is untouched.
	src, err := env.Store.GetChildren(env.Ctx, fx.Recipe.ID)
	require.NoError(t, err)
	assert.Len(t, src, 2)
}

func TestCopyFailsPerIssue(t *testing.T) {
	env, fx, c := setup(t)

	// The support request needs a customer in its new home as well, so an
	// override that clears it fails that issue only.
	res, err := c.Run(env.Ctx, Request{
		IDs:             []int64{fx.Support.ID, fx.PrintBug.ID},
		Actor:           env.Actor("jsmith"),
		TargetProjectID: 2,
		Overrides:       types.ChangeSet{types.CustomFieldKey(6): "none"},
		Mode:            ModeCopy,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{fx.PrintBug.ID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "validation_failed", res.Failed[0].Reason)
}

func TestCopyKeepsSourceStatus(t *testing.T) {
	env, _, c := setup(t)
	closed := env.CreateIssue("Old crash", teststore.WithStatus(5))

	// Developers have no New -> Closed transition, yet the copy keeps the
	// source's status.
	res, err := c.Run(env.Ctx, Request{
		IDs:             []int64{closed.ID},
		Actor:           env.Actor("dlopper"),
		TargetProjectID: 1,
		Mode:            ModeCopy,
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	cp := env.Reload(res.Copies[closed.ID])
	assert.Equal(t, int64(5), cp.StatusID)
	assert.NotNil(t, cp.ClosedOn)

	// A status given as an override is an ordinary status change and
	// falls back to the default when the workflow does not allow it.
	res, err = c.Run(env.Ctx, Request{
		IDs:             []int64{closed.ID},
		Actor:           env.Actor("dlopper"),
		TargetProjectID: 1,
		Overrides:       types.ChangeSet{types.FieldStatus: "6"},
		Mode:            ModeCopy,
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, int64(1), env.Reload(res.Copies[closed.ID]).StatusID)
}
