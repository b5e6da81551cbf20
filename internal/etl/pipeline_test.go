package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/collab"
	"github.com/ledgerline/docpipe/internal/common"
	"github.com/ledgerline/docpipe/internal/entity"
	"github.com/ledgerline/docpipe/internal/load"
	"github.com/ledgerline/docpipe/internal/lock"
	"github.com/ledgerline/docpipe/internal/metrics"
	"github.com/ledgerline/docpipe/internal/storage"
)

// stubLoader lets tests force per-target outcomes.
type stubLoader struct {
	target constants.LoadTarget
	err    error
	calls  int
}

func (s *stubLoader) Target() constants.LoadTarget { return s.target }
func (s *stubLoader) Load(context.Context, entity.PipelineMetadata, entity.CanonicalSchema) error {
	s.calls++
	return s.err
}

const sampleInvoice = `ACME Corp
Invoice No: INV-2026-042
2026-01-15
Subtotal 200.00
Tax 20.00
Total 220.00`

func stagedInvoice() entity.StagedFile {
	return entity.StagedFile{
		SourceType: "filesystem",
		Filename:   "invoice.txt",
		Content:    []byte(sampleInvoice),
		Checksum:   "abc123",
		IngestedAt: time.Now().UTC(),
	}
}

func newTestPipeline(cfg Config, ocr collab.OCRClient, factory *load.Factory) (*Pipeline, *metrics.Collector) {
	collector := metrics.NewCollector()
	p := NewPipeline(cfg, storage.NewMemoryStore(), lock.NewMemoryLock(), ocr, nil, factory, collector, nil)
	return p, collector
}

func TestExecuteHappyPath(t *testing.T) {
	cfg := Config{
		EnableClassification: true,
		EnableValidation:     true,
		EnableLoading:        true,
		LoadTargets:          []constants.LoadTarget{constants.TargetOLTP},
	}
	oltp := &stubLoader{target: constants.TargetOLTP}
	p, collector := newTestPipeline(cfg, &collab.MockOCRClient{}, load.NewFactory(oltp))

	res, err := p.Execute(context.Background(), stagedInvoice())
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.Canonical)
	assert.Equal(t, "ACME Corp", res.Canonical.Vendor.Name)
	assert.InDelta(t, 220, res.Canonical.Summary.GrandTotal, 1e-9)
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.IsValid)
	assert.Equal(t, constants.PipelineLoaded, res.Metadata.Stage)
	assert.Equal(t, 1, oltp.calls)
	require.Len(t, res.LoadResults, 1)
	assert.True(t, res.LoadResults[0].Success)
	assert.Equal(t, 1, collector.Len())
}

func TestExecutePartialLoadFailureIsolated(t *testing.T) {
	cfg := Config{
		EnableLoading: true,
		LoadTargets: []constants.LoadTarget{
			constants.TargetOLTP,
			constants.TargetDataLake,
			constants.TargetFeatureStore,
		},
	}
	oltp := &stubLoader{target: constants.TargetOLTP}
	lake := &stubLoader{target: constants.TargetDataLake, err: errors.New("lake quota exceeded")}
	feats := &stubLoader{target: constants.TargetFeatureStore}
	p, _ := newTestPipeline(cfg, &collab.MockOCRClient{}, load.NewFactory(oltp, lake, feats))

	res, err := p.Execute(context.Background(), stagedInvoice())
	require.NoError(t, err)

	// one target failed, the run still succeeds
	assert.True(t, res.Success)
	require.Len(t, res.LoadResults, 3)
	var failed, succeeded int
	for _, lr := range res.LoadResults {
		if lr.Success {
			succeeded++
		} else {
			failed++
			assert.Equal(t, constants.TargetDataLake, lr.Target)
			assert.Contains(t, lr.Error, "lake quota exceeded")
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, succeeded)
	assert.Len(t, res.Metadata.LoadedTargets, 2)
	// the healthy loaders all ran
	assert.Equal(t, 1, oltp.calls)
	assert.Equal(t, 1, feats.calls)
}

func TestExecuteOCRFailureIsFatal(t *testing.T) {
	boom := common.NewRetriable(common.CodeCollaboratorFailure, "ocr unavailable", errors.New("503"))
	p, collector := newTestPipeline(Config{}, &collab.MockOCRClient{FailWith: boom}, nil)

	res, err := p.Execute(context.Background(), stagedInvoice())
	require.Error(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, constants.PipelineFailed, res.Metadata.Stage)
	assert.NotEmpty(t, res.Error)
	require.Equal(t, 1, collector.Len())
	summary := collector.Summarize(time.Time{}, time.Time{})
	assert.Zero(t, summary.SuccessRate)
}

func TestExecutePartialOCRTolerated(t *testing.T) {
	p, _ := newTestPipeline(Config{}, &collab.MockOCRClient{Partial: true}, nil)

	res, err := p.Execute(context.Background(), stagedInvoice())
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.Canonical)
	// partial payloads fall back to raw text heuristics
	assert.Equal(t, "ACME Corp", res.Canonical.Vendor.Name)
}

func TestExecuteValidationFailureDoesNotAbort(t *testing.T) {
	// totals that cannot reconcile
	bad := entity.StagedFile{
		Filename:   "bad.txt",
		Content:    []byte("ACME Corp\nSubtotal 100.00\nTax 10.00\nTotal 150.00"),
		IngestedAt: time.Now().UTC(),
	}
	p, _ := newTestPipeline(Config{EnableValidation: true}, &collab.MockOCRClient{}, nil)

	res, err := p.Execute(context.Background(), bad)
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.Validation)
	assert.False(t, res.Validation.IsValid)
	assert.True(t, res.Validation.HasIssue(entity.IssueTotalMismatch))
	require.NotNil(t, res.Metadata.ValidationPassed)
	assert.False(t, *res.Metadata.ValidationPassed)
}

func TestReplayReexecutesFromPersistedState(t *testing.T) {
	cfg := Config{EnableValidation: true}
	store := storage.NewMemoryStore()
	collector := metrics.NewCollector()
	p := NewPipeline(cfg, store, lock.NewMemoryLock(), &collab.MockOCRClient{}, nil, nil, collector, nil)

	first, err := p.Execute(context.Background(), stagedInvoice())
	require.NoError(t, err)

	replayed, err := p.Replay(context.Background(), first.Metadata.PipelineID)
	require.NoError(t, err)

	assert.True(t, replayed.Success)
	assert.Equal(t, first.Canonical.Vendor.Name, replayed.Canonical.Vendor.Name)
	assert.Equal(t, first.Metadata.Checksum, replayed.Metadata.Checksum)
	// a replay is a fresh run with its own identifiers
	assert.NotEqual(t, first.Metadata.PipelineID, replayed.Metadata.PipelineID)
}

func TestReplayUnknownPipeline(t *testing.T) {
	p, _ := newTestPipeline(Config{}, &collab.MockOCRClient{}, nil)
	_, err := p.Replay(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestExecuteAbortsOnHeldLock(t *testing.T) {
	locks := lock.NewMemoryLock()
	p := NewPipeline(Config{}, storage.NewMemoryStore(), locks, &collab.MockOCRClient{}, nil, nil, nil, nil)

	sf := stagedInvoice()
	ok, err := locks.Acquire(context.Background(), lock.Key(sf.Checksum, "pipeline"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := p.Execute(context.Background(), sf)
	require.Error(t, err)
	assert.Equal(t, common.CodeLockContention, common.ErrorCode(err))
	assert.False(t, res.Success)
}
