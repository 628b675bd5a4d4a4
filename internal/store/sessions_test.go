package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRunIdempotency(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ok, err := db.BeginSessionRun(ctx, "s1", "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.BeginSessionRun(ctx, "s1", "sess-1")
	require.NoError(t, err)
	assert.False(t, ok, "in-flight run is not claimed twice")

	ok, err = db.BeginSessionRun(ctx, "s2", "sess-1")
	require.NoError(t, err)
	assert.True(t, ok, "session ids are scoped per subject")

	require.NoError(t, db.FinishSessionRun(ctx, "s1", "sess-1", 3, nil))
	run, err := db.GetSessionRun(ctx, "s1", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 3, run.OpsApplied)
	assert.NotNil(t, run.FinishedAt)

	ok, err = db.BeginSessionRun(ctx, "s1", "sess-1")
	require.NoError(t, err)
	assert.False(t, ok, "completed runs are never reprocessed")
}

func TestFailedSessionRunCanRetry(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.BeginSessionRun(ctx, "s1", "sess-2")
	require.NoError(t, err)
	require.NoError(t, db.FinishSessionRun(ctx, "s1", "sess-2", 0, errors.New("llm down")))

	run, err := db.GetSessionRun(ctx, "s1", "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, "llm down", run.Error)

	ok, err := db.BeginSessionRun(ctx, "s1", "sess-2")
	require.NoError(t, err)
	assert.True(t, ok)

	run, err = db.GetSessionRun(ctx, "s1", "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "processing", run.Status)
	assert.Empty(t, run.Error)

	missing, err := db.GetSessionRun(ctx, "s1", "never")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
