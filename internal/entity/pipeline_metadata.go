package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
)

// ClassificationFlags are advisory layout flags derived during the
// classification step. They never gate the pipeline.
type ClassificationFlags struct {
	IsScanned      bool                   `json:"is_scanned"`
	HasTextLayer   bool                   `json:"has_text_layer"`
	ContainsTables bool                   `json:"contains_tables"`
	IsMultiPage    bool                   `json:"is_multi_page"`
	DocumentType   constants.DocumentType `json:"document_type"`
}

// PipelineMetadata is the per-run provenance record for one document
// processing attempt. Stage advancement is forward-only.
type PipelineMetadata struct {
	PipelineID       uuid.UUID               `json:"pipeline_id"`
	DocumentID       uuid.UUID               `json:"document_id"`
	Stage            constants.PipelineStage `json:"stage"`
	SourceType       string                  `json:"source_type"`
	SourceID         *uuid.UUID              `json:"source_id,omitempty"`
	Filename         string                  `json:"filename"`
	Checksum         string                  `json:"checksum"`
	Flags            ClassificationFlags     `json:"flags"`
	OCRConfidence    float32                 `json:"ocr_confidence"`
	ValidationPassed *bool                   `json:"validation_passed,omitempty"`
	LoadedTargets    []constants.LoadTarget  `json:"loaded_targets,omitempty"`
	UserID           *uuid.UUID              `json:"user_id,omitempty"`
	Tags             []string                `json:"tags,omitempty"`
	StartedAt        time.Time               `json:"started_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
	ErrorMessage     string                  `json:"error_message,omitempty"`
}

// Advance moves the metadata forward to the given stage. Backwards moves
// are ignored; FAILED is always accepted.
func (m *PipelineMetadata) Advance(stage constants.PipelineStage, now time.Time) bool {
	if stage == constants.PipelineFailed {
		m.Stage = stage
		m.UpdatedAt = now
		return true
	}
	if pipelineRank(stage) <= pipelineRank(m.Stage) {
		return false
	}
	m.Stage = stage
	m.UpdatedAt = now
	return true
}

var pipelineOrder = []constants.PipelineStage{
	constants.PipelineIngested,
	constants.PipelineClassified,
	constants.PipelineExtracted,
	constants.PipelineTransformed,
	constants.PipelineValidated,
	constants.PipelineLoaded,
}

func pipelineRank(s constants.PipelineStage) int {
	for i, st := range pipelineOrder {
		if st == s {
			return i
		}
	}
	return len(pipelineOrder) // FAILED sorts after everything
}
