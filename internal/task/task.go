// Package task provides the at-least-once work queue and the runner
// that executes queued stage work against the job state machine.
package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
)

// Task is one unit of stage work for a job. The same task may be
// delivered more than once; handlers rely on the stage lock and the
// state machine's adjacency checks for idempotency.
type Task struct {
	ID         uuid.UUID          `json:"id"`
	JobID      uuid.UUID          `json:"job_id"`
	Stage      constants.JobStage `json:"stage"`
	Attempt    int                `json:"attempt"`
	Payload    json.RawMessage    `json:"payload,omitempty"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

// NewTask builds a first-attempt task for a job stage.
func NewTask(jobID uuid.UUID, stage constants.JobStage, payload json.RawMessage) Task {
	return Task{
		ID:         uuid.New(),
		JobID:      jobID,
		Stage:      stage,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is an at-least-once task queue. Dequeue blocks until a task is
// available or the context is done. Ack confirms a delivery so the
// backend can drop its in-flight copy.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	Dequeue(ctx context.Context) (Task, error)
	Ack(ctx context.Context, t Task) error
	Shutdown(ctx context.Context)
}
