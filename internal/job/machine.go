package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
)

// StateMachine drives jobs through the stage graph in constants. It is the
// only writer of Job records; invalid transitions are rejected without
// mutation and reported through the boolean return.
type StateMachine struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time
}

func NewStateMachine(store Store, logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{store: store, logger: logger, clock: time.Now}
}

// CreateJob allocates a job in RECEIVED/QUEUED with progress 0.
func (m *StateMachine) CreateJob(ctx context.Context, metadata map[string]string) (uuid.UUID, error) {
	now := m.clock().UTC()
	j := &Job{
		ID:       uuid.New(),
		Stage:    constants.StageReceived,
		Status:   constants.JobStatusQueued,
		Progress: 0,
		Stages: []StageRecord{{
			Stage:     constants.StageReceived,
			StartedAt: now,
		}},
		Metadata:  metadata,
		Logs:      []string{logLine(now, "job created")},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Put(ctx, j); err != nil {
		return uuid.Nil, err
	}
	m.logger.Info("job created", "job_id", j.ID)
	return j.ID, nil
}

// GetJob returns the current job record.
func (m *StateMachine) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return m.store.Get(ctx, id)
}

// ListJobs returns all jobs known to the store, oldest first.
func (m *StateMachine) ListJobs(ctx context.Context) ([]*Job, error) {
	return m.store.List(ctx)
}

// TransitionStage advances a job to newStage. It returns false, without
// any mutation, when the edge is not in the adjacency table; FAILED is
// always permitted from a non-terminal stage.
func (m *StateMachine) TransitionStage(ctx context.Context, id uuid.UUID, newStage constants.JobStage, message string) (bool, error) {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !constants.CanTransition(j.Stage, newStage) {
		m.logger.Warn("invalid stage transition rejected",
			"job_id", id, "from", j.Stage, "to", newStage)
		return false, nil
	}

	now := m.clock().UTC()
	if cur := j.CurrentStageRecord(); cur != nil && cur.FinishedAt == nil {
		cur.FinishedAt = &now
		cur.Progress = 100
	}
	j.Stages = append(j.Stages, StageRecord{Stage: newStage, StartedAt: now})
	j.Stage = newStage
	j.Progress = constants.StageProgress[newStage]
	switch newStage {
	case constants.StageCompleted:
		j.Status = constants.JobStatusCompleted
	case constants.StageFailed:
		j.Status = constants.JobStatusFailed
	default:
		j.Status = constants.JobStatusProcessing
	}
	line := fmt.Sprintf("stage -> %s", newStage)
	if message != "" {
		line += ": " + message
	}
	j.Logs = append(j.Logs, logLine(now, line))
	j.UpdatedAt = now

	if err := m.store.Put(ctx, j); err != nil {
		return false, err
	}
	m.logger.Info("stage transition", "job_id", id, "stage", newStage, "progress", j.Progress)
	return true, nil
}

// UpdateStageProgress sets sub-progress within the current stage. The
// overall figure blends the stage base percentage with a tenth of the
// intra-stage percent; treat it as an approximate indicator only.
func (m *StateMachine) UpdateStageProgress(ctx context.Context, id uuid.UUID, percent int, message string) error {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	now := m.clock().UTC()
	if cur := j.CurrentStageRecord(); cur != nil {
		cur.Progress = percent
	}
	if !j.Stage.IsTerminal() {
		j.Progress = constants.StageProgress[j.Stage] + percent/10
		if j.Progress > 100 {
			j.Progress = 100
		}
	}
	if message != "" {
		j.Logs = append(j.Logs, logLine(now, message))
	}
	j.UpdatedAt = now
	return m.store.Put(ctx, j)
}

// MarkFailed forces the job into terminal FAILED with a captured error.
// A job already in a terminal stage is left untouched; stale duplicate
// deliveries must not regress a completed job.
func (m *StateMachine) MarkFailed(ctx context.Context, id uuid.UUID, code, message string, retriable bool) error {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Stage.IsTerminal() {
		m.logger.Warn("mark failed ignored, job already terminal",
			"job_id", id, "stage", j.Stage, "code", code)
		return nil
	}
	now := m.clock().UTC()
	if cur := j.CurrentStageRecord(); cur != nil && cur.FinishedAt == nil {
		cur.FinishedAt = &now
		cur.Error = message
	}
	j.Stages = append(j.Stages, StageRecord{Stage: constants.StageFailed, StartedAt: now, FinishedAt: &now})
	j.Stage = constants.StageFailed
	j.Status = constants.JobStatusFailed
	j.Progress = constants.StageProgress[constants.StageFailed]
	j.Error = &JobError{Code: code, Message: message, Retriable: retriable}
	j.Logs = append(j.Logs, logLine(now, fmt.Sprintf("failed: %s: %s", code, message)))
	j.UpdatedAt = now

	if err := m.store.Put(ctx, j); err != nil {
		return err
	}
	m.logger.Warn("job failed", "job_id", id, "code", code, "retriable", retriable)
	return nil
}

// MarkCompleted transitions into COMPLETED and binds the result id.
func (m *StateMachine) MarkCompleted(ctx context.Context, id, resultID uuid.UUID) (bool, error) {
	ok, err := m.TransitionStage(ctx, id, constants.StageCompleted, "result stored")
	if err != nil || !ok {
		return ok, err
	}
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	j.ResultID = &resultID
	j.UpdatedAt = m.clock().UTC()
	return true, m.store.Put(ctx, j)
}

// RecordRetry bumps the retry count on the current stage record.
func (m *StateMachine) RecordRetry(ctx context.Context, id uuid.UUID) error {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	cur := j.CurrentStageRecord()
	if cur == nil {
		return nil
	}
	cur.RetryCount++
	now := m.clock().UTC()
	j.Logs = append(j.Logs, logLine(now, fmt.Sprintf("retry %d for stage %s", cur.RetryCount, cur.Stage)))
	j.UpdatedAt = now
	return m.store.Put(ctx, j)
}

// ShouldRetry reports whether the job's recorded error is retriable and
// the current stage still has retry budget.
func (m *StateMachine) ShouldRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if j.Error == nil || !j.Error.Retriable {
		return false, nil
	}
	cur := j.CurrentStageRecord()
	if cur == nil {
		return false, nil
	}
	// the FAILED record carries no retries; look at the stage that failed
	if cur.Stage == constants.StageFailed && len(j.Stages) >= 2 {
		cur = &j.Stages[len(j.Stages)-2]
	}
	return cur.RetryCount < constants.MaxStageRetries, nil
}

// RetryDelay returns the backoff before the next attempt, indexed by the
// current stage's retry count and clamped to the last table entry.
func (m *StateMachine) RetryDelay(ctx context.Context, id uuid.UUID) (time.Duration, error) {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	retries := 0
	if cur := j.CurrentStageRecord(); cur != nil {
		if cur.Stage == constants.StageFailed && len(j.Stages) >= 2 {
			cur = &j.Stages[len(j.Stages)-2]
		}
		retries = cur.RetryCount
	}
	return BackoffDelay(retries), nil
}

// BackoffDelay indexes the retry backoff table, clamped to its last entry.
func BackoffDelay(retries int) time.Duration {
	table := constants.RetryBackoffSeconds
	if retries < 0 {
		retries = 0
	}
	if retries >= len(table) {
		retries = len(table) - 1
	}
	return time.Duration(table[retries]) * time.Second
}

func logLine(ts time.Time, msg string) string {
	return ts.Format(time.RFC3339) + " " + msg
}
