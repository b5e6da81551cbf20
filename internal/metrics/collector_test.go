package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
)

func metric(ms int64, success bool) entity.Metric {
	return entity.Metric{
		Stage:            constants.PipelineLoaded,
		ProcessingTimeMS: ms,
		Success:          success,
		Timestamp:        time.Now().UTC(),
	}
}

func TestPercentileWorkedExample(t *testing.T) {
	c := NewCollector()
	for _, ms := range []int64{10, 20, 30, 40, 50} {
		c.Record(metric(ms, true))
	}

	// n=5: p50 -> idx 2 -> 30; p95 -> idx 4 (clamped) -> 50
	assert.Equal(t, int64(30), c.Percentile(50))
	assert.Equal(t, int64(50), c.Percentile(95))
	assert.Equal(t, int64(10), c.Percentile(0))
	assert.Equal(t, int64(50), c.Percentile(100))

	// out-of-range p clamps to the nearest valid index
	assert.Equal(t, int64(10), c.Percentile(-50))
	assert.Equal(t, int64(50), c.Percentile(250))
}

func TestPercentileEmpty(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, int64(0), c.Percentile(50))
}

func TestPercentileUsesLastThousandSamples(t *testing.T) {
	c := NewCollector()
	// first 500 are slow, then 1000 fast ones push them out of the window
	for i := 0; i < 500; i++ {
		c.Record(metric(9999, true))
	}
	for i := 0; i < 1000; i++ {
		c.Record(metric(10, true))
	}
	assert.Equal(t, int64(10), c.Percentile(99))
}

func TestRecordEvictsOldestBeyondCapacity(t *testing.T) {
	c := NewCollector(WithMaxMetrics(3))
	for i := 1; i <= 5; i++ {
		c.Record(metric(int64(i), true))
	}
	require.Equal(t, 3, c.Len())
	// the survivors are 3,4,5
	assert.Equal(t, int64(3), c.Percentile(0))
	assert.Equal(t, int64(5), c.Percentile(100))
}

func TestSummarize(t *testing.T) {
	c := NewCollector()
	now := time.Now().UTC()

	c.Record(entity.Metric{
		Stage:            constants.PipelineLoaded,
		ProcessingTimeMS: 100,
		Success:          true,
		ValidationPassed: true,
		FieldCount:       8,
		ConfidenceScore:  0.9,
		Timestamp:        now,
	})
	c.Record(entity.Metric{
		Stage:            constants.PipelineFailed,
		ProcessingTimeMS: 300,
		Success:          false,
		ErrorKind:        "COLLABORATOR_FAILURE",
		FieldCount:       0,
		ConfidenceScore:  0.1,
		Timestamp:        now,
	})

	s := c.Summarize(now.Add(-time.Minute), now.Add(time.Minute))
	require.Equal(t, 2, s.Count)
	assert.InDelta(t, 0.5, s.SuccessRate, 1e-9)
	assert.InDelta(t, 200, s.MeanProcessingMS, 1e-9)
	assert.InDelta(t, 0.5, s.ValidationPassRate, 1e-9)
	assert.InDelta(t, 0.5, s.MeanConfidence, 1e-6)
	assert.InDelta(t, 4, s.MeanFieldCount, 1e-9)
	assert.InDelta(t, 100, s.StageMeanMS[constants.PipelineLoaded], 1e-9)
	assert.InDelta(t, 300, s.StageMeanMS[constants.PipelineFailed], 1e-9)
}

func TestSummarizeWindowFiltersByTimestamp(t *testing.T) {
	c := NewCollector()
	old := time.Now().UTC().Add(-2 * time.Hour)

	m := metric(100, true)
	m.Timestamp = old
	c.Record(m)
	c.Record(metric(50, true))

	s := c.Summarize(time.Now().UTC().Add(-time.Hour), time.Time{})
	assert.Equal(t, 1, s.Count)
	assert.InDelta(t, 50, s.MeanProcessingMS, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	c := NewCollector()
	s := c.Summarize(time.Time{}, time.Time{})
	assert.Equal(t, 0, s.Count)
	assert.Zero(t, s.SuccessRate)
}
