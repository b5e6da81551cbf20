package job

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/common"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	machine := NewStateMachine(store, nil)
	id, err := machine.CreateJob(ctx, map[string]string{"source_path": "/inbox/a.pdf"})
	require.NoError(t, err)
	_, err = machine.TransitionStage(ctx, id, constants.StageStaging, "")
	require.NoError(t, err)

	j, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.StageStaging, j.Stage)
	assert.Equal(t, "/inbox/a.pdf", j.Metadata["source_path"])

	// upsert keeps a single row per job
	require.NoError(t, store.Put(ctx, j))
	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}
