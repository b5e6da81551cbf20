package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
)

// Metric is one append-only observation of a pipeline stage execution.
type Metric struct {
	PipelineID       uuid.UUID               `json:"pipeline_id"`
	DocumentID       uuid.UUID               `json:"document_id"`
	Stage            constants.PipelineStage `json:"stage"`
	ProcessingTimeMS int64                   `json:"processing_time_ms"`
	Success          bool                    `json:"success"`
	ErrorKind        string                  `json:"error_kind,omitempty"`
	ValidationPassed bool                    `json:"validation_passed"`
	FieldCount       int                     `json:"field_count"`
	ConfidenceScore  float32                 `json:"confidence_score"`
	Timestamp        time.Time               `json:"timestamp"`
}
