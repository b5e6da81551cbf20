// Package core wires the job state machine to the ETL components: each
// job stage gets a task handler that performs its step, persists the
// working state, advances the machine and enqueues the next stage.
package core

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
	"github.com/ledgerline/docpipe/internal/etl"
	"github.com/ledgerline/docpipe/internal/fincheck"
	"github.com/ledgerline/docpipe/internal/ingest"
	"github.com/ledgerline/docpipe/internal/job"
	"github.com/ledgerline/docpipe/internal/load"
	"github.com/ledgerline/docpipe/internal/metrics"
	"github.com/ledgerline/docpipe/internal/storage"
	"github.com/ledgerline/docpipe/internal/task"
)

// workState is the per-job working state carried between stage handlers,
// persisted as JSON so any worker node can pick up the next stage.
type workState struct {
	DocumentID uuid.UUID                  `json:"document_id"`
	PipelineID uuid.UUID                  `json:"pipeline_id"`
	Filename   string                     `json:"filename"`
	Checksum   string                     `json:"checksum"`
	SourcePath string                     `json:"source_path,omitempty"`
	Flags      entity.ClassificationFlags `json:"flags"`
	OCR        *collab.OCRResult          `json:"ocr,omitempty"`
	RawText    string                     `json:"raw_text,omitempty"`
	Enrichment *collab.EnrichmentResult   `json:"enrichment,omitempty"`
	Canonical  *entity.CanonicalSchema    `json:"canonical,omitempty"`
	Validation *entity.ValidationResult   `json:"validation,omitempty"`
	StartedAt  time.Time                  `json:"started_at"`
}

// stagingPayload is the task payload carried by a STAGING task.
type stagingPayload struct {
	Path string `json:"path"`
}

// Worker owns the stage handlers for the daemon's job flow.
type Worker struct {
	machine *job.StateMachine
	queue   task.Queue
	stager  *ingest.Stager
	store   storage.Store
	ocr     collab.OCRClient
	vlm     collab.VLMClient // optional
	loaders *load.Factory
	metrics *metrics.Collector
	cfg     common.PipelineConfig
	logger  *slog.Logger
}

func NewWorker(
	machine *job.StateMachine,
	queue task.Queue,
	stager *ingest.Stager,
	store storage.Store,
	ocr collab.OCRClient,
	vlm collab.VLMClient,
	loaders *load.Factory,
	collector *metrics.Collector,
	cfg common.PipelineConfig,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		machine: machine,
		queue:   queue,
		stager:  stager,
		store:   store,
		ocr:     ocr,
		vlm:     vlm,
		loaders: loaders,
		metrics: collector,
		cfg:     cfg,
		logger:  logger,
	}
}

// Register binds one handler per pipeline-driving stage. Terminal stages
// and RECEIVED (owned by Submit) have no handlers.
func (w *Worker) Register(r *task.Runner) {
	r.Register(constants.StageStaging, w.handleStaging)
	r.Register(constants.StagePreprocess, w.handlePreprocess)
	r.Register(constants.StageOCRLayout, w.handleOCRLayout)
	r.Register(constants.StageOCRRecognize, w.handleOCRRecognize)
	r.Register(constants.StageSemanticParse, w.handleSemanticParse)
	r.Register(constants.StagePostprocess, w.handlePostprocess)
	r.Register(constants.StageValidate, w.handleValidate)
	r.Register(constants.StageStore, w.handleStore)
}

// Submit creates a job for a filesystem path and queues its first stage.
func (w *Worker) Submit(ctx context.Context, path string) (uuid.UUID, error) {
	jobID, err := w.machine.CreateJob(ctx, map[string]string{"source_path": path})
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := w.machine.TransitionStage(ctx, jobID, constants.StageStaging, path); err != nil {
		return jobID, err
	}
	payload, _ := json.Marshal(stagingPayload{Path: path})
	if err := w.queue.Enqueue(ctx, task.NewTask(jobID, constants.StageStaging, payload)); err != nil {
		return jobID, err
	}
	w.logger.Info("job submitted", "job_id", jobID, "path", path)
	return jobID, nil
}

func stateKey(jobID uuid.UUID) string {
	return "jobs/" + jobID.String() + "/state.json"
}

func (w *Worker) loadState(ctx context.Context, jobID uuid.UUID) (workState, error) {
	raw, err := w.store.GetBytes(ctx, stateKey(jobID))
	if err != nil {
		return workState{}, fmt.Errorf("load work state: %w", err)
	}
	var st workState
	if err := json.Unmarshal(raw, &st); err != nil {
		return workState{}, fmt.Errorf("decode work state: %w", err)
	}
	return st, nil
}

func (w *Worker) saveState(ctx context.Context, jobID uuid.UUID, st workState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return w.store.PutBytes(ctx, stateKey(jobID), raw)
}

func (w *Worker) stagedBytes(ctx context.Context, st workState) ([]byte, error) {
	return w.store.GetBytes(ctx, ingest.StagingKey(st.DocumentID, st.Filename))
}

// advance transitions the job and queues the next stage's task. A
// rejected transition means another delivery already advanced the job;
// the task is simply done.
func (w *Worker) advance(ctx context.Context, jobID uuid.UUID, next constants.JobStage, message string) error {
	ok, err := w.machine.TransitionStage(ctx, jobID, next, message)
	if err != nil {
		return err
	}
	if !ok {
		w.logger.Info("stage already advanced, skipping enqueue", "job_id", jobID, "next", next)
		return nil
	}
	if next.IsTerminal() {
		return nil
	}
	return w.queue.Enqueue(ctx, task.NewTask(jobID, next, nil))
}

func (w *Worker) handleStaging(ctx context.Context, t task.Task) error {
	var p stagingPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil || p.Path == "" {
		return common.NewAppError(common.CodeFatal, "staging task without source path", common.ErrInvalidInput)
	}
	sf, res, err := w.stager.StagePath(ctx, p.Path)
	if err != nil {
		// disk reads and unsupported formats do not heal on retry
		return common.NewAppError(common.CodeFatal, "staging failed", err)
	}
	st := workState{
		DocumentID: res.DocumentID,
		PipelineID: uuid.New(),
		Filename:   sf.Filename,
		Checksum:   sf.Checksum,
		SourcePath: p.Path,
		StartedAt:  time.Now().UTC(),
	}
	if err := w.saveState(ctx, t.JobID, st); err != nil {
		return common.NewRetriable(common.CodeFatal, "persist work state", err)
	}
	return w.advance(ctx, t.JobID, constants.StagePreprocess, sf.Filename)
}

func (w *Worker) handlePreprocess(ctx context.Context, t task.Task) error {
	st, err := w.loadState(ctx, t.JobID)
	if err != nil {
		return common.NewAppError(common.CodeFatal, "work state missing", err)
	}
	if w.cfg.EnableClassification {
		content, err := w.stagedBytes(ctx, st)
		if err != nil {
			return common.NewAppError(common.CodeFatal, "staged bytes missing", err)
		}
		st.Flags = etl.Classify(entity.StagedFile{Filename: st.Filename, Content: content})
		if err := w.saveState(ctx, t.JobID, st); err != nil {
			return common.NewRetriable(common.CodeFatal, "persist work state", err)
		}
	}
	return w.advance(ctx, t.JobID, constants.StageOCRLayout, string(st.Flags.DocumentType))
}

func (w *Worker) handleOCRLayout(ctx context.Context, t task.Task) error {
	st, err := w.loadState(ctx, t.JobID)
	if err != nil {
		return common.NewAppError(common.CodeFatal, "work state missing", err)
	}
	content, err := w.stagedBytes(ctx, st)
	if err != nil {
		return common.NewAppError(common.CodeFatal, "staged bytes missing", err)
	}
	res, err := w.ocr.Analyze(ctx, content)
	if err != nil {
		// the client classified this already; retriable for 5xx/network
		return err
	}
	st.OCR = &res
	if err := w.saveState(ctx, t.JobID, st); err != nil {
		return common.NewRetriable(common.CodeFatal, "persist work state", err)
	}
	msg := fmt.Sprintf("%d regions, %d blocks", len(res.Regions), len(res.TextBlocks))
	return w.advance(ctx, t.JobID, constants.StageOCRRecognize, msg)
}

func (w *Worker) handleOCRRecognize(ctx context.Context, t task.Task) error {
	st, err := w.loadState(ctx, t.JobID)
	if err != nil {
		return common.NewAppError(common.CodeFatal, "work state missing", err)
	}
	if st.OCR == nil {
		return common.NewAppError(common.CodeFatal, "recognize before layout", common.ErrInternal)
	}
	st.RawText = etl.JoinText(*st.OCR)
	if err := w.saveState(ctx, t.JobID, st); err != nil {
		return common.NewRetriable(common.CodeFatal, "persist work state", err)
	}
	msg := fmt.Sprintf("confidence %.2f", st.OCR.Confidence)
	return w.advance(ctx, t.JobID, constants.StageSemanticParse, msg)
}

func (w *Worker) handleSemanticParse(ctx context.Context, t task.Task) error {
	st, err := w.loadState(ctx, t.JobID)
	if err != nil {
		return common.NewAppError(common.CodeFatal, "work state missing", err)
	}
	if w.vlm != nil && st.OCR != nil {
		content, err := w.stagedBytes(ctx, st)
		if err != nil {
			return common.NewAppError(common.CodeFatal, "staged bytes missing", err)
		}
		res, verr := w.vlm.Enrich(ctx, *st.OCR, content)
		if verr != nil {
			if common.IsRetriable(verr) {
				return verr
			}
			// a rejected payload is tolerated; heuristics take over
			w.logger.Warn("enrichment rejected, continuing without it", "job_id", t.JobID, "error", verr)
		} else {
			st.Enrichment = &res
		}
		if err := w.saveState(ctx, t.JobID, st); err != nil {
			return common.NewRetriable(common.CodeFatal, "persist work state", err)
		}
	}
	return w.advance(ctx, t.JobID, constants.StagePostprocess, "")
}

func (w *Worker) handlePostprocess(ctx context.Context, t task.Task) error {
	st, err := w.loadState(ctx, t.JobID)
	if err != nil {
		return common.NewAppError(common.CodeFatal, "work state missing", err)
	}
	if st.OCR == nil {
		return common.NewAppError(common.CodeFatal, "postprocess before extraction", common.ErrInternal)
	}
	rec := etl.Transform(*st.OCR, st.Enrichment)
	st.Canonical = &rec
	if err := w.saveState(ctx, t.JobID, st); err != nil {
		return common.NewRetriable(common.CodeFatal, "persist work state", err)
	}
	return w.advance(ctx, t.JobID, constants.StageValidate, fmt.Sprintf("%d line items", len(rec.LineItems)))
}

func (w *Worker) handleValidate(ctx context.Context, t task.Task) error {
	st, err := w.loadState(ctx, t.JobID)
	if err != nil {
		return common.NewAppError(common.CodeFatal, "work state missing", err)
	}
	msg := "validation disabled"
	if w.cfg.EnableValidation && st.Canonical != nil {
		v := fincheck.Validate(*st.Canonical, w.cfg.Tolerance)
		st.Validation = &v
		if err := w.saveState(ctx, t.JobID, st); err != nil {
			return common.NewRetriable(common.CodeFatal, "persist work state", err)
		}
		msg = fmt.Sprintf("valid=%t issues=%d", v.IsValid, len(v.Issues))
	}
	return w.advance(ctx, t.JobID, constants.StageStore, msg)
}

func (w *Worker) handleStore(ctx context.Context, t task.Task) error {
	st, err := w.loadState(ctx, t.JobID)
	if err != nil {
		return common.NewAppError(common.CodeFatal, "work state missing", err)
	}
	if st.Canonical == nil {
		return common.NewAppError(common.CodeFatal, "store before transform", common.ErrInternal)
	}

	meta := w.buildMetadata(st)
	if w.cfg.EnableLoading && w.loaders != nil {
		results := w.loaders.FanOut(ctx, w.cfg.LoadTargets, meta, *st.Canonical)
		for _, lr := range results {
			if lr.Success {
				meta.LoadedTargets = append(meta.LoadedTargets, lr.Target)
			} else {
				w.logger.Warn("load target failed", "job_id", t.JobID, "target", lr.Target, "error", lr.Error)
			}
		}
	}

	w.recordMetric(st, meta, true, "")
	if _, err := w.machine.MarkCompleted(ctx, t.JobID, st.DocumentID); err != nil {
		return common.NewRetriable(common.CodeFatal, "mark completed", err)
	}
	w.logger.Info("job completed", "job_id", t.JobID, "document_id", st.DocumentID,
		"loaded_targets", len(meta.LoadedTargets))
	return nil
}

func (w *Worker) buildMetadata(st workState) entity.PipelineMetadata {
	meta := entity.PipelineMetadata{
		PipelineID: st.PipelineID,
		DocumentID: st.DocumentID,
		Stage:      constants.PipelineLoaded,
		SourceType: "filesystem",
		Filename:   st.Filename,
		Checksum:   st.Checksum,
		Flags:      st.Flags,
		StartedAt:  st.StartedAt,
		UpdatedAt:  time.Now().UTC(),
	}
	if st.OCR != nil {
		meta.OCRConfidence = st.OCR.Confidence
	}
	if st.Validation != nil {
		passed := st.Validation.IsValid
		meta.ValidationPassed = &passed
	}
	return meta
}

func (w *Worker) recordMetric(st workState, meta entity.PipelineMetadata, success bool, errorKind string) {
	if w.metrics == nil {
		return
	}
	m := entity.Metric{
		PipelineID:       st.PipelineID,
		DocumentID:       st.DocumentID,
		Stage:            meta.Stage,
		ProcessingTimeMS: time.Since(st.StartedAt).Milliseconds(),
		Success:          success,
		ErrorKind:        errorKind,
		ConfidenceScore:  meta.OCRConfidence,
		Timestamp:        time.Now().UTC(),
	}
	if st.Validation != nil {
		m.ValidationPassed = st.Validation.IsValid
	}
	if st.Canonical != nil {
		m.FieldCount = etl.FieldCount(*st.Canonical)
	}
	w.metrics.Record(m)
}
