// Package job implements the job-level lifecycle state machine and its
// pluggable persistence.
package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
)

// StageRecord tracks one stage's execution within a job.
type StageRecord struct {
	Stage      constants.JobStage `json:"stage"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Progress   int                `json:"progress"`
	RetryCount int                `json:"retry_count"`
	Error      string             `json:"error,omitempty"`
}

// JobError is the structured failure recorded on a terminally failed job.
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

// Job is the mutable lifecycle record for one document processing run.
// It is mutated only through the state machine API; a single logical
// writer per job id is the documented contract.
type Job struct {
	ID        uuid.UUID           `json:"id"`
	Stage     constants.JobStage  `json:"stage"`
	Status    constants.JobStatus `json:"status"`
	Progress  int                 `json:"progress"`
	Stages    []StageRecord       `json:"stages"`
	Metadata  map[string]string   `json:"metadata,omitempty"`
	Logs      []string            `json:"logs,omitempty"`
	ResultID  *uuid.UUID          `json:"result_id,omitempty"`
	Error     *JobError           `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// CurrentStageRecord returns the open record for the job's current stage,
// or nil if the job has no stages yet.
func (j *Job) CurrentStageRecord() *StageRecord {
	if len(j.Stages) == 0 {
		return nil
	}
	return &j.Stages[len(j.Stages)-1]
}
