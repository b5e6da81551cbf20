package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/collab"
	"github.com/ledgerline/docpipe/internal/common"
	"github.com/ledgerline/docpipe/internal/entity"
	"github.com/ledgerline/docpipe/internal/fincheck"
	"github.com/ledgerline/docpipe/internal/load"
	"github.com/ledgerline/docpipe/internal/lock"
	"github.com/ledgerline/docpipe/internal/metrics"
	"github.com/ledgerline/docpipe/internal/storage"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Success     bool                     `json:"success"`
	Canonical   *entity.CanonicalSchema  `json:"canonical,omitempty"`
	Validation  *entity.ValidationResult `json:"validation,omitempty"`
	LoadResults []load.Result            `json:"load_results,omitempty"`
	Metadata    entity.PipelineMetadata  `json:"metadata"`
	Error       string                   `json:"error,omitempty"`
}

// Config gates the optional pipeline steps.
type Config struct {
	EnableClassification bool
	EnableValidation     bool
	EnableLoading        bool
	LoadTargets          []constants.LoadTarget
	Tolerance            float64
	LockTTL              time.Duration
}

// Pipeline sequences classification, extraction, transformation,
// validation and the multi-target load for one staged document.
type Pipeline struct {
	cfg     Config
	store   storage.Store
	locks   lock.StageLock
	ocr     collab.OCRClient
	vlm     collab.VLMClient // optional
	loaders *load.Factory
	metrics *metrics.Collector
	logger  *slog.Logger
	clock   func() time.Time
}

func NewPipeline(
	cfg Config,
	store storage.Store,
	locks lock.StageLock,
	ocr collab.OCRClient,
	vlm collab.VLMClient,
	loaders *load.Factory,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = fincheck.DefaultTolerance
	}
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		locks:   locks,
		ocr:     ocr,
		vlm:     vlm,
		loaders: loaders,
		metrics: collector,
		logger:  logger,
		clock:   time.Now,
	}
}

func metadataKey(pipelineID uuid.UUID) string {
	return "pipelines/" + pipelineID.String() + ".json"
}

func stagingKey(docID uuid.UUID, filename string) string {
	return fmt.Sprintf("staging/%s/%s", docID, filename)
}

// Execute runs the full pipeline for a staged file. A run that cannot
// acquire its idempotency lock aborts without side effects. Validation
// and per-target load failures are surfaced on the result, never fatal;
// only extraction/transformation errors fail the run.
func (p *Pipeline) Execute(ctx context.Context, sf entity.StagedFile) (Result, error) {
	start := p.clock()
	docID := uuid.New()
	meta := entity.PipelineMetadata{
		PipelineID: uuid.New(),
		DocumentID: docID,
		Stage:      constants.PipelineIngested,
		SourceType: sf.SourceType,
		SourceID:   sf.SourceID,
		Filename:   sf.Filename,
		Checksum:   sf.Checksum,
		UserID:     sf.UserID,
		Tags:       sf.Tags,
		StartedAt:  start.UTC(),
		UpdatedAt:  start.UTC(),
	}

	// keyed by content identity so concurrent runs of the same document
	// contend, not concurrent runs of different documents
	lockID := sf.Checksum
	if lockID == "" {
		lockID = docID.String()
	}
	key := lock.Key(lockID, "pipeline")
	ok, err := p.locks.Acquire(ctx, key, p.cfg.LockTTL)
	if err == nil && !ok {
		return Result{Metadata: meta, Error: common.ErrLockHeld.Error()},
			common.NewAppError(common.CodeLockContention, "pipeline already in progress", common.ErrLockHeld)
	}
	if err != nil {
		p.logger.Warn("lock backend unavailable, proceeding unguarded", "key", key, "error", err)
	} else {
		defer p.locks.Release(ctx, key)
	}

	// 1) write-once staging; replay reads from here.
	if err := p.store.PutBytes(ctx, stagingKey(docID, sf.Filename), sf.Content); err != nil {
		return p.fail(ctx, meta, start, fmt.Errorf("stage bytes: %w", err))
	}
	p.persistMetadata(ctx, meta)

	// 2) classification, advisory only.
	if p.cfg.EnableClassification {
		meta.Flags = Classify(sf)
		meta.Advance(constants.PipelineClassified, p.clock().UTC())
		p.logger.Debug("document classified",
			"document_id", docID,
			"document_type", meta.Flags.DocumentType,
			"has_text_layer", meta.Flags.HasTextLayer,
			"is_scanned", meta.Flags.IsScanned,
		)
		p.persistMetadata(ctx, meta)
	}

	// 3) extraction via the OCR collaborator; fatal on error.
	ocrRes, err := p.ocr.Analyze(ctx, sf.Content)
	if err != nil {
		return p.fail(ctx, meta, start, common.WrapError(err, "ocr extract"))
	}
	meta.OCRConfidence = ocrRes.Confidence
	meta.Advance(constants.PipelineExtracted, p.clock().UTC())
	p.persistArtifact(ctx, docID, "ocr", ocrRes.Raw)
	p.persistMetadata(ctx, meta)

	// optional enrichment; partial results are carried, not fatal.
	var enrich *collab.EnrichmentResult
	if p.vlm != nil {
		res, verr := p.vlm.Enrich(ctx, ocrRes, sf.Content)
		if verr != nil {
			p.logger.Warn("vlm enrichment failed, continuing with ocr only",
				"document_id", docID, "error", verr)
		} else {
			enrich = &res
			p.persistArtifact(ctx, docID, "vlm", res.Raw)
		}
	}

	// 4) transformation to the canonical schema.
	rec := Transform(ocrRes, enrich)
	meta.Advance(constants.PipelineTransformed, p.clock().UTC())
	p.persistMetadata(ctx, meta)

	// 5) validation; recorded, never aborts the run.
	var validation *entity.ValidationResult
	if p.cfg.EnableValidation {
		v := fincheck.Validate(rec, p.cfg.Tolerance)
		if b, err := json.Marshal(rec); err == nil {
			if serr := ValidateJSONAgainstSchema(BuildCanonicalJSONSchema(), b); serr != nil {
				v.Issues = append(v.Issues, entity.ValidationIssue{
					Field:    "canonical",
					Kind:     "SCHEMA_MISMATCH",
					Message:  serr.Error(),
					Severity: entity.SeverityWarning,
				})
			}
		}
		validation = &v
		passed := v.IsValid
		meta.ValidationPassed = &passed
		meta.Advance(constants.PipelineValidated, p.clock().UTC())
		p.persistMetadata(ctx, meta)
	}

	// 6) fan-out load with per-target failure isolation.
	var loadResults []load.Result
	if p.cfg.EnableLoading && p.loaders != nil {
		loadResults = p.loaders.FanOut(ctx, p.cfg.LoadTargets, meta, rec)
		for _, lr := range loadResults {
			if lr.Success {
				meta.LoadedTargets = append(meta.LoadedTargets, lr.Target)
			} else {
				p.logger.Warn("load target failed", "document_id", docID, "target", lr.Target, "error", lr.Error)
			}
		}
		meta.Advance(constants.PipelineLoaded, p.clock().UTC())
		p.persistMetadata(ctx, meta)
	}

	p.record(meta, start, true, "", validation, rec)
	p.logger.Info("pipeline completed",
		"pipeline_id", meta.PipelineID,
		"document_id", docID,
		"stage", meta.Stage,
		"loaded_targets", len(meta.LoadedTargets),
	)
	return Result{
		Success:     true,
		Canonical:   &rec,
		Validation:  validation,
		LoadResults: loadResults,
		Metadata:    meta,
	}, nil
}

// Replay reconstructs the staged file for a previous run from persisted
// metadata plus the immutable staging area, and re-executes the pipeline.
func (p *Pipeline) Replay(ctx context.Context, pipelineID uuid.UUID) (Result, error) {
	raw, err := p.store.GetBytes(ctx, metadataKey(pipelineID))
	if err != nil {
		return Result{}, fmt.Errorf("load pipeline metadata: %w", err)
	}
	var meta entity.PipelineMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Result{}, fmt.Errorf("decode pipeline metadata: %w", err)
	}

	content, err := p.store.GetBytes(ctx, stagingKey(meta.DocumentID, meta.Filename))
	if err != nil {
		return Result{}, fmt.Errorf("staged bytes missing for %s: %w", meta.DocumentID, err)
	}

	sf := entity.StagedFile{
		SourceType: meta.SourceType,
		SourceID:   meta.SourceID,
		Filename:   meta.Filename,
		Content:    content,
		Checksum:   meta.Checksum,
		IngestedAt: meta.StartedAt,
		UserID:     meta.UserID,
		Tags:       meta.Tags,
	}
	p.logger.Info("replaying pipeline", "pipeline_id", pipelineID, "document_id", meta.DocumentID)
	return p.Execute(ctx, sf)
}

// fail terminates the run: FAILED state, failed metric, partial metadata
// persisted for auditability.
func (p *Pipeline) fail(ctx context.Context, meta entity.PipelineMetadata, start time.Time, err error) (Result, error) {
	meta.ErrorMessage = err.Error()
	meta.Advance(constants.PipelineFailed, p.clock().UTC())
	p.persistMetadata(ctx, meta)
	p.record(meta, start, false, common.ErrorCode(err), nil, entity.CanonicalSchema{})
	p.logger.Error("pipeline failed",
		"pipeline_id", meta.PipelineID,
		"document_id", meta.DocumentID,
		"error", err,
	)
	return Result{Metadata: meta, Error: err.Error()}, err
}

func (p *Pipeline) persistMetadata(ctx context.Context, meta entity.PipelineMetadata) {
	b, err := json.Marshal(meta)
	if err != nil {
		p.logger.Error("metadata encode failed", "pipeline_id", meta.PipelineID, "error", err)
		return
	}
	if err := p.store.PutBytes(ctx, metadataKey(meta.PipelineID), b); err != nil {
		p.logger.Warn("metadata persist failed", "pipeline_id", meta.PipelineID, "error", err)
	}
}

func (p *Pipeline) persistArtifact(ctx context.Context, docID uuid.UUID, name string, raw []byte) {
	if len(raw) == 0 {
		return
	}
	key := fmt.Sprintf("artifacts/%s/%s.json", docID, name)
	if err := p.store.PutBytes(ctx, key, raw); err != nil {
		p.logger.Warn("artifact persist failed", "key", key, "error", err)
	}
}

func (p *Pipeline) record(meta entity.PipelineMetadata, start time.Time, success bool, errorKind string, validation *entity.ValidationResult, rec entity.CanonicalSchema) {
	if p.metrics == nil {
		return
	}
	m := entity.Metric{
		PipelineID:       meta.PipelineID,
		DocumentID:       meta.DocumentID,
		Stage:            meta.Stage,
		ProcessingTimeMS: p.clock().Sub(start).Milliseconds(),
		Success:          success,
		ErrorKind:        errorKind,
		ConfidenceScore:  meta.OCRConfidence,
		FieldCount:       FieldCount(rec),
		Timestamp:        p.clock().UTC(),
	}
	if validation != nil {
		m.ValidationPassed = validation.IsValid
	}
	p.metrics.Record(m)
}

// FieldCount counts the populated canonical fields for metrics: one per
// line item plus one per non-empty scalar.
func FieldCount(rec entity.CanonicalSchema) int {
	n := len(rec.LineItems)
	for _, s := range []string{rec.InvoiceNumber, rec.Vendor.Name, rec.Client.Name, rec.IssueDate, rec.DueDate, rec.Summary.Currency} {
		if s != "" {
			n++
		}
	}
	for _, f := range []float64{rec.Summary.Subtotal, rec.Summary.Tax, rec.Summary.Discount, rec.Summary.GrandTotal} {
		if f != 0 {
			n++
		}
	}
	return n
}
