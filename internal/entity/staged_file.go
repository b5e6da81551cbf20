package entity

import (
	"time"

	"github.com/google/uuid"
)

// StagedFile is the immutable, checksummed unit captured before any
// processing begins. The checksum is computed exactly once at ingest.
type StagedFile struct {
	SourceType string            `json:"source_type"`
	SourceID   *uuid.UUID        `json:"source_id,omitempty"`
	Filename   string            `json:"filename"`
	Content    []byte            `json:"-"`
	Checksum   string            `json:"checksum"`
	IngestedAt time.Time         `json:"ingested_at"`
	UserID     *uuid.UUID        `json:"user_id,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
