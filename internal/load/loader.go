// Package load fans a transformed document out to the configured
// downstream sinks. Each loader's failure is isolated: one failing target
// never prevents the others from running, and no cross-target rollback is
// attempted.
package load

import (
	"context"
	"time"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
)

// Loader writes a canonical record to one downstream sink.
type Loader interface {
	Target() constants.LoadTarget
	Load(ctx context.Context, meta entity.PipelineMetadata, rec entity.CanonicalSchema) error
}

// Result is the per-target outcome of a fan-out load.
type Result struct {
	Target   constants.LoadTarget `json:"target"`
	Success  bool                 `json:"success"`
	Error    string               `json:"error,omitempty"`
	Duration time.Duration        `json:"duration"`
}

// Factory resolves loaders by target.
type Factory struct {
	loaders map[constants.LoadTarget]Loader
}

func NewFactory(loaders ...Loader) *Factory {
	m := make(map[constants.LoadTarget]Loader, len(loaders))
	for _, l := range loaders {
		m[l.Target()] = l
	}
	return &Factory{loaders: m}
}

// ForTarget returns the loader for a target, or nil when none is wired.
func (f *Factory) ForTarget(t constants.LoadTarget) Loader {
	return f.loaders[t]
}

// FanOut runs every requested target, isolating failures per target.
func (f *Factory) FanOut(ctx context.Context, targets []constants.LoadTarget, meta entity.PipelineMetadata, rec entity.CanonicalSchema) []Result {
	results := make([]Result, 0, len(targets))
	for _, t := range targets {
		l := f.ForTarget(t)
		if l == nil {
			results = append(results, Result{Target: t, Error: "no loader configured"})
			continue
		}
		start := time.Now()
		err := l.Load(ctx, meta, rec)
		r := Result{Target: t, Success: err == nil, Duration: time.Since(start)}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}
