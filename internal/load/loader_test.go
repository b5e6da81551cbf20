package load

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
	"github.com/ledgerline/docpipe/internal/repository"
	"github.com/ledgerline/docpipe/internal/storage"
)

type fakeLoader struct {
	target constants.LoadTarget
	err    error
	calls  int
}

func (f *fakeLoader) Target() constants.LoadTarget { return f.target }

func (f *fakeLoader) Load(context.Context, entity.PipelineMetadata, entity.CanonicalSchema) error {
	f.calls++
	return f.err
}

func sampleMeta() entity.PipelineMetadata {
	return entity.PipelineMetadata{
		PipelineID: uuid.New(),
		DocumentID: uuid.New(),
		Filename:   "invoice.pdf",
		Checksum:   "abc123",
	}
}

func sampleRecord() entity.CanonicalSchema {
	return entity.CanonicalSchema{
		InvoiceNumber: "INV-77",
		Vendor:        entity.Party{Name: "Acme Corp"},
		LineItems:     []entity.LineItem{{Description: "Widget", Quantity: 2, UnitPrice: 50, Total: 100}},
		Summary:       entity.FinancialSummary{Subtotal: 100, Tax: 10, GrandTotal: 110, Currency: "USD"},
		IssueDate:     "2026-03-01",
	}
}

func TestFanOutIsolatesFailures(t *testing.T) {
	oltp := &fakeLoader{target: constants.TargetOLTP}
	lake := &fakeLoader{target: constants.TargetDataLake, err: errors.New("bucket unavailable")}
	feat := &fakeLoader{target: constants.TargetFeatureStore}
	f := NewFactory(oltp, lake, feat)

	results := f.FanOut(context.Background(),
		[]constants.LoadTarget{constants.TargetOLTP, constants.TargetDataLake, constants.TargetFeatureStore},
		sampleMeta(), sampleRecord())

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "bucket unavailable", results[1].Error)
	assert.True(t, results[2].Success)

	// the failing target never blocks the ones after it
	assert.Equal(t, 1, oltp.calls)
	assert.Equal(t, 1, lake.calls)
	assert.Equal(t, 1, feat.calls)
}

func TestFanOutReportsUnwiredTarget(t *testing.T) {
	f := NewFactory(&fakeLoader{target: constants.TargetOLTP})

	results := f.FanOut(context.Background(),
		[]constants.LoadTarget{constants.TargetVectorStore, constants.TargetOLTP},
		sampleMeta(), sampleRecord())

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "no loader configured", results[0].Error)
	assert.True(t, results[1].Success)
}

func TestFanOutPreservesTargetOrder(t *testing.T) {
	f := NewFactory(
		&fakeLoader{target: constants.TargetDataLake},
		&fakeLoader{target: constants.TargetOLTP},
	)
	targets := []constants.LoadTarget{constants.TargetOLTP, constants.TargetDataLake}

	results := f.FanOut(context.Background(), targets, sampleMeta(), sampleRecord())
	require.Len(t, results, 2)
	assert.Equal(t, targets[0], results[0].Target)
	assert.Equal(t, targets[1], results[1].Target)
}

func TestDataLakeLoaderWritesDatePartitionedObject(t *testing.T) {
	store := storage.NewMemoryStore()
	l := NewDataLakeLoader(store, nil)
	l.clock = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }

	meta := sampleMeta()
	require.NoError(t, l.Load(context.Background(), meta, sampleRecord()))

	key := "lake/date=2026-03-15/" + meta.DocumentID.String() + ".json"
	b, err := store.GetBytes(context.Background(), key)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"INV-77"`)
	assert.Contains(t, string(b), meta.PipelineID.String())
}

func TestOLTPLoaderUpsertsRecord(t *testing.T) {
	repo := repository.NewMemoryRecordRepository()
	l := NewOLTPLoader(repo, nil)

	meta := sampleMeta()
	require.NoError(t, l.Load(context.Background(), meta, sampleRecord()))

	row, err := repo.GetByDocumentID(context.Background(), meta.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "INV-77", row.InvoiceNumber)
	assert.Equal(t, meta.PipelineID, row.PipelineID)

	// loading again for the same document updates in place
	rec := sampleRecord()
	rec.Summary.GrandTotal = 220
	require.NoError(t, l.Load(context.Background(), meta, rec))
	again, err := repo.GetByDocumentID(context.Background(), meta.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)
}
