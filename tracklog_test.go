package tracklog_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklog/tracklog"
)

func TestEngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := tracklog.OpenSQLite(ctx, filepath.Join(t.TempDir(), "tracklog.db"))
	require.NoError(t, err)
	defer store.Close()

	catalog, err := tracklog.DefaultCatalog()
	require.NoError(t, err)
	eng := tracklog.NewEngine(store, catalog)
	jsmith := catalog.Actor("jsmith")

	created, err := eng.Create(ctx, jsmith, tracklog.NewIssue{
		ProjectID: 1,
		Changes: tracklog.ChangeSet{
			"subject":    "Embedded create",
			"tracker_id": "1",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, created.Issue)

	res, err := eng.Apply(ctx, created.Issue.ID, jsmith, tracklog.Update{
		Changes: tracklog.ChangeSet{"status_id": "2"},
		Notes:   "Taking it",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Journal)
	assert.Equal(t, "Taking it", res.Journal.Notes)
	assert.Equal(t, int64(2), res.Issue.StatusID)

	journals, err := store.GetJournals(ctx, created.Issue.ID)
	require.NoError(t, err)
	assert.Len(t, journals, 1)
}

func TestErrorCategories(t *testing.T) {
	ctx := context.Background()
	store, err := tracklog.OpenSQLite(ctx, filepath.Join(t.TempDir(), "tracklog.db"))
	require.NoError(t, err)
	defer store.Close()

	catalog, err := tracklog.DefaultCatalog()
	require.NoError(t, err)
	eng := tracklog.NewEngine(store, catalog)

	_, err = eng.Apply(ctx, 404, catalog.Actor("jsmith"), tracklog.Update{Notes: "hello"})
	assert.True(t, errors.Is(err, tracklog.ErrNotFound), "got %v", err)

	_, err = eng.Create(ctx, catalog.Actor("nobody"), tracklog.NewIssue{
		ProjectID: 1,
		Changes:   tracklog.ChangeSet{"subject": "Anonymous", "tracker_id": "1"},
	})
	assert.True(t, errors.Is(err, tracklog.ErrUnauthorized), "got %v", err)
}
