package job

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docpipe/constants"
)

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}

func newTestMachine(t *testing.T) (*StateMachine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewStateMachine(store, nil), store
}

func TestCreateJob(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, map[string]string{"source_path": "/in/a.pdf"})
	require.NoError(t, err)

	j, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.StageReceived, j.Stage)
	assert.Equal(t, constants.JobStatusQueued, j.Status)
	assert.Equal(t, 0, j.Progress)
	require.Len(t, j.Stages, 1)
	assert.Equal(t, constants.StageReceived, j.Stages[0].Stage)
	assert.Equal(t, "/in/a.pdf", j.Metadata["source_path"])
}

func TestHappyPathTransitions(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)

	for _, next := range constants.StageOrder[1:] {
		ok, err := m.TransitionStage(ctx, id, next, "")
		require.NoError(t, err)
		require.Truef(t, ok, "transition to %s rejected", next)

		j, err := m.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, next, j.Stage)
		assert.Equal(t, constants.StageProgress[next], j.Progress)
	}

	j, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress)
	// every non-final record closed
	for _, rec := range j.Stages[:len(j.Stages)-1] {
		assert.NotNilf(t, rec.FinishedAt, "record %s left open", rec.Stage)
	}
}

func TestInvalidTransitionLeavesJobUntouched(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	before, err := m.GetJob(ctx, id)
	require.NoError(t, err)

	// RECEIVED -> VALIDATE skips the whole middle of the graph
	ok, err := m.TransitionStage(ctx, id, constants.StageValidate, "")
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.Stage, after.Stage)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Progress, after.Progress)
	assert.Len(t, after.Stages, len(before.Stages))
}

func TestFailedReachableFromAnyNonTerminalStage(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	_, err = m.TransitionStage(ctx, id, constants.StageStaging, "")
	require.NoError(t, err)

	ok, err := m.TransitionStage(ctx, id, constants.StageFailed, "disk gone")
	require.NoError(t, err)
	require.True(t, ok)

	j, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, j.Status)

	// terminal: nothing moves anymore
	ok, err = m.TransitionStage(ctx, id, constants.StageStaging, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateStageProgressBlendsIntoOverall(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	_, err = m.TransitionStage(ctx, id, constants.StageStaging, "")
	require.NoError(t, err)

	require.NoError(t, m.UpdateStageProgress(ctx, id, 50, "halfway"))

	j, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	// STAGING base is 5; 50% within the stage adds 5
	assert.Equal(t, 10, j.Progress)
	assert.Equal(t, 50, j.CurrentStageRecord().Progress)

	// clamped on both ends
	require.NoError(t, m.UpdateStageProgress(ctx, id, 150, ""))
	j, err = m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 15, j.Progress)
}

func TestMarkFailedRecordsError(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	_, err = m.TransitionStage(ctx, id, constants.StageStaging, "")
	require.NoError(t, err)

	require.NoError(t, m.MarkFailed(ctx, id, "COLLABORATOR_FAILURE", "ocr unreachable", true))

	j, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.StageFailed, j.Stage)
	require.NotNil(t, j.Error)
	assert.Equal(t, "COLLABORATOR_FAILURE", j.Error.Code)
	assert.True(t, j.Error.Retriable)
	// the failing stage's record carries the message
	assert.Equal(t, "ocr unreachable", j.Stages[len(j.Stages)-2].Error)
}

func TestMarkFailedIgnoredOnTerminalJob(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	for _, next := range constants.StageOrder[1:] {
		_, err = m.TransitionStage(ctx, id, next, "")
		require.NoError(t, err)
	}

	// a stale duplicate delivery erroring after completion changes nothing
	require.NoError(t, m.MarkFailed(ctx, id, "COLLABORATOR_FAILURE", "late timeout", true))

	j, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.StageCompleted, j.Stage)
	assert.Equal(t, constants.JobStatusCompleted, j.Status)
	assert.Nil(t, j.Error)

	// an already failed job keeps its first recorded error
	id2, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, m.MarkFailed(ctx, id2, "FATAL", "bad input", false))
	require.NoError(t, m.MarkFailed(ctx, id2, "COLLABORATOR_FAILURE", "later noise", true))

	j2, err := m.GetJob(ctx, id2)
	require.NoError(t, err)
	require.NotNil(t, j2.Error)
	assert.Equal(t, "FATAL", j2.Error.Code)
}

func TestMarkCompletedBindsResult(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	for _, next := range constants.StageOrder[1 : len(constants.StageOrder)-1] {
		_, err = m.TransitionStage(ctx, id, next, "")
		require.NoError(t, err)
	}

	resultID := mustUUID(t)
	ok, err := m.MarkCompleted(ctx, id, resultID)
	require.NoError(t, err)
	require.True(t, ok)

	j, err := m.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, j.ResultID)
	assert.Equal(t, resultID, *j.ResultID)
}

func TestShouldRetryHonorsBudgetAndRetriability(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	_, err = m.TransitionStage(ctx, id, constants.StageStaging, "")
	require.NoError(t, err)

	// non-retriable error: never retried
	require.NoError(t, m.MarkFailed(ctx, id, "FATAL", "bad input", false))
	retry, err := m.ShouldRetry(ctx, id)
	require.NoError(t, err)
	assert.False(t, retry)

	// retriable error under budget: retried
	id2, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	_, err = m.TransitionStage(ctx, id2, constants.StageStaging, "")
	require.NoError(t, err)
	require.NoError(t, m.RecordRetry(ctx, id2))
	require.NoError(t, m.RecordRetry(ctx, id2))
	require.NoError(t, m.MarkFailed(ctx, id2, "COLLABORATOR_FAILURE", "timeout", true))
	retry, err = m.ShouldRetry(ctx, id2)
	require.NoError(t, err)
	assert.True(t, retry)

	// budget exhausted
	id3, err := m.CreateJob(ctx, nil)
	require.NoError(t, err)
	_, err = m.TransitionStage(ctx, id3, constants.StageStaging, "")
	require.NoError(t, err)
	for i := 0; i < constants.MaxStageRetries; i++ {
		require.NoError(t, m.RecordRetry(ctx, id3))
	}
	require.NoError(t, m.MarkFailed(ctx, id3, "COLLABORATOR_FAILURE", "timeout", true))
	retry, err = m.ShouldRetry(ctx, id3)
	require.NoError(t, err)
	assert.False(t, retry)
}

func TestBackoffDelayClampsToTable(t *testing.T) {
	assert.Equal(t, 1*time.Second, BackoffDelay(0))
	assert.Equal(t, 2*time.Second, BackoffDelay(1))
	assert.Equal(t, 5*time.Second, BackoffDelay(2))
	assert.Equal(t, 5*time.Second, BackoffDelay(7))
	assert.Equal(t, 1*time.Second, BackoffDelay(-1))
}

func TestMemoryStoreCopiesJobs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := &Job{ID: mustUUID(t), Stage: constants.StageReceived, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Put(ctx, j))

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	got.Stage = constants.StageCompleted

	again, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageReceived, again.Stage)
}
