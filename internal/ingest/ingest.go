package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/internal/entity"
)

// StagingResult is the per-file staging outcome.
type StagingResult struct {
	SourcePath   string    `json:"source_path"`
	DocumentID   uuid.UUID `json:"document_id"`
	Deduplicated bool      `json:"deduplicated"`
	Checksum     string    `json:"checksum"`
	FileExt      string    `json:"file_ext"`
	StagedAt     time.Time `json:"staged_at"`
	Err          string    `json:"err,omitempty"`
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor is the behavior the pipeline entry points depend on.
type Ingestor interface {
	// StageBytes captures raw content as an immutable staged file.
	StageBytes(ctx context.Context, sourceType, filename string, content []byte) (entity.StagedFile, StagingResult, error)
	// StagePath stages a single filesystem path.
	StagePath(ctx context.Context, path string) (entity.StagedFile, StagingResult, error)
	// StageDirectory stages all matching files under root.
	StageDirectory(ctx context.Context, root string, skipHidden bool) ([]StagingResult, DirStats, error)
}
