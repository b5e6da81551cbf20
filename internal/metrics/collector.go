// Package metrics keeps a bounded in-memory window of per-execution
// pipeline metrics with summary and percentile queries.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
)

const (
	defaultMaxMetrics = 10000
	percentileWindow  = 1000
)

// Collector retains the most recent maxMetrics observations, evicting the
// oldest first. All query methods are read-only.
type Collector struct {
	mu      sync.RWMutex
	metrics []entity.Metric
	max     int
}

type Option func(*Collector)

func WithMaxMetrics(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.max = n
		}
	}
}

func NewCollector(opts ...Option) *Collector {
	c := &Collector{max: defaultMaxMetrics}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Record appends one observation, evicting the oldest beyond capacity.
func (c *Collector) Record(m entity.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, m)
	if len(c.metrics) > c.max {
		c.metrics = c.metrics[len(c.metrics)-c.max:]
	}
}

// Len returns the number of retained observations.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.metrics)
}

// Summary aggregates the retained metrics inside a time window.
type Summary struct {
	Count              int                                 `json:"count"`
	SuccessRate        float64                             `json:"success_rate"`
	MeanProcessingMS   float64                             `json:"mean_processing_ms"`
	StageMeanMS        map[constants.PipelineStage]float64 `json:"stage_mean_ms"`
	ValidationPassRate float64                             `json:"validation_pass_rate"`
	MeanConfidence     float64                             `json:"mean_confidence"`
	MeanFieldCount     float64                             `json:"mean_field_count"`
}

// Summarize computes the summary over metrics recorded in [since, until].
// A zero until means "now".
func (c *Collector) Summarize(since, until time.Time) Summary {
	if until.IsZero() {
		until = time.Now()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := Summary{StageMeanMS: make(map[constants.PipelineStage]float64)}
	stageTotals := make(map[constants.PipelineStage]int64)
	stageCounts := make(map[constants.PipelineStage]int)

	var successes, validated, totalMS int64
	var confSum float64
	var fieldSum int
	for _, m := range c.metrics {
		if m.Timestamp.Before(since) || m.Timestamp.After(until) {
			continue
		}
		out.Count++
		totalMS += m.ProcessingTimeMS
		if m.Success {
			successes++
		}
		if m.ValidationPassed {
			validated++
		}
		confSum += float64(m.ConfidenceScore)
		fieldSum += m.FieldCount
		stageTotals[m.Stage] += m.ProcessingTimeMS
		stageCounts[m.Stage]++
	}
	if out.Count == 0 {
		return out
	}
	n := float64(out.Count)
	out.SuccessRate = float64(successes) / n
	out.MeanProcessingMS = float64(totalMS) / n
	out.ValidationPassRate = float64(validated) / n
	out.MeanConfidence = confSum / n
	out.MeanFieldCount = float64(fieldSum) / n
	for stage, total := range stageTotals {
		out.StageMeanMS[stage] = float64(total) / float64(stageCounts[stage])
	}
	return out
}

// Percentile returns the p-th percentile processing time (ms) over the
// last 1,000 retained samples, indexing the sorted slice at
// floor(n*p/100) clamped to the last valid index. Returns 0 with no data.
func (c *Collector) Percentile(p float64) int64 {
	c.mu.RLock()
	samples := c.metrics
	if len(samples) > percentileWindow {
		samples = samples[len(samples)-percentileWindow:]
	}
	times := make([]int64, len(samples))
	for i, m := range samples {
		times[i] = m.ProcessingTimeMS
	}
	c.mu.RUnlock()

	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(a, b int) bool { return times[a] < times[b] })
	idx := int(float64(len(times)) * p / 100.0)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(times) {
		idx = len(times) - 1
	}
	return times[idx]
}
