package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
	"github.com/ledgerline/docpipe/internal/storage"
)

// Stager captures files into the immutable staging area. Staged bytes are
// written once under staging/{docID}/{filename}; the checksum index under
// checksums/ provides content-hash dedup across ingests.
type Stager struct {
	store       storage.Store
	logger      *slog.Logger
	AllowedExts map[string]struct{} // lowercased sans '.'; nil -> default set
}

// checksumIndex is the dedup record stored under checksums/{sum}. It
// carries the filename the bytes were staged under so a deduplicated
// ingest resolves to the same staging key.
type checksumIndex struct {
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
}

// StagingKey is the storage key for a staged document's bytes.
func StagingKey(docID uuid.UUID, filename string) string {
	return fmt.Sprintf("staging/%s/%s", docID, filepath.Base(filename))
}

func NewStager(store storage.Store, logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{store: store, logger: logger}
}

func (s *Stager) allowed(ext string) bool {
	if s.AllowedExts == nil {
		return AllowedExt(ext)
	}
	_, ok := s.AllowedExts[constants.NormalizeExt(ext)]
	return ok
}

// StageBytes computes the content checksum exactly once, writes the bytes
// to the staging area keyed by a fresh document id, and records the
// checksum in the dedup index.
func (s *Stager) StageBytes(ctx context.Context, sourceType, filename string, content []byte) (entity.StagedFile, StagingResult, error) {
	sum := sha256.Sum256(content)
	hashHex := hex.EncodeToString(sum[:])
	now := time.Now().UTC()

	indexKey := "checksums/" + hashHex
	if prior, err := s.store.GetBytes(ctx, indexKey); err == nil {
		var idx checksumIndex
		if jerr := json.Unmarshal(prior, &idx); jerr == nil && idx.DocumentID != uuid.Nil {
			s.logger.Info("staged file deduplicated", "filename", filename, "checksum", hashHex, "document_id", idx.DocumentID)
			// return the filename the bytes were staged under so the
			// staging key keeps resolving for downstream readers
			sf := entity.StagedFile{
				SourceType: sourceType,
				Filename:   idx.Filename,
				Content:    content,
				Checksum:   hashHex,
				IngestedAt: now,
			}
			return sf, StagingResult{
				DocumentID:   idx.DocumentID,
				Deduplicated: true,
				Checksum:     hashHex,
				FileExt:      constants.NormalizeExt(filepath.Ext(idx.Filename)),
				StagedAt:     now,
			}, nil
		}
	}

	docID := uuid.New()
	name := filepath.Base(filename)
	stageKey := StagingKey(docID, name)
	if err := s.store.PutBytes(ctx, stageKey, content); err != nil {
		return entity.StagedFile{}, StagingResult{}, fmt.Errorf("stage write: %w", err)
	}
	idxBytes, err := json.Marshal(checksumIndex{DocumentID: docID, Filename: name})
	if err == nil {
		err = s.store.PutBytes(ctx, indexKey, idxBytes)
	}
	if err != nil {
		s.logger.Warn("checksum index write failed", "checksum", hashHex, "error", err)
	}

	sf := entity.StagedFile{
		SourceType: sourceType,
		Filename:   name,
		Content:    content,
		Checksum:   hashHex,
		IngestedAt: now,
	}
	res := StagingResult{
		DocumentID: docID,
		Checksum:   hashHex,
		FileExt:    constants.NormalizeExt(filepath.Ext(filename)),
		StagedAt:   now,
	}
	s.logger.Info("file staged", "filename", sf.Filename, "document_id", docID, "checksum", hashHex)
	return sf, res, nil
}

// StagePath stages a single filesystem path.
func (s *Stager) StagePath(ctx context.Context, path string) (entity.StagedFile, StagingResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.StagedFile{}, StagingResult{}, err
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !s.allowed(ext) {
		return entity.StagedFile{}, StagingResult{}, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return entity.StagedFile{}, StagingResult{}, err
	}

	sf, res, err := s.StageBytes(ctx, "filesystem", abs, content)
	res.SourcePath = abs
	return sf, res, err
}

// StageDirectory walks root, skips hidden entries if requested, and calls
// StagePath for each matching file. Returns per-file results + stats.
func (s *Stager) StageDirectory(ctx context.Context, root string, skipHidden bool) ([]StagingResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []StagingResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, StagingResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if !s.allowed(ext) {
			return nil
		}
		stats.Matched++

		_, r, err := s.StagePath(ctx, path)
		if err != nil {
			results = append(results, StagingResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
