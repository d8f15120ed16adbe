package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ows4444/pluginforge/internal/host/resolver"
)

// LoadFunc instantiates a single plugin by name. Implementations are
// expected to transition the plugin's lifecycle state and register its
// tracked resources; Runner only sequences calls to it.
type LoadFunc func(ctx context.Context, name string) error

// Runner drives a Graph through the dependency resolver, invoking Load for
// each plugin once its dependencies are satisfied.
type Runner struct {
	Graph         Graph
	Resolver      *resolver.Resolver
	Load          LoadFunc
	Logger        *slog.Logger
	Metrics       *Metrics
	MaxConcurrent int
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run executes the graph under the requested strategy.
func (r *Runner) Run(ctx context.Context, kind Kind) (*Report, error) {
	switch kind {
	case Serial:
		return r.runSerial(ctx)
	case Parallel:
		return r.runParallel(ctx)
	case Batched:
		return r.runBatched(ctx)
	default:
		return nil, fmt.Errorf("strategy: unknown kind %q", kind)
	}
}

func (r *Runner) runSerial(ctx context.Context) (*Report, error) {
	order, cycleErr := r.Graph.Order()
	report := &Report{Failed: map[string]error{}}

	for _, name := range order {
		r.loadOne(ctx, name, report)
	}

	r.logReport(Serial, report, cycleErr)
	return report, cycleErr
}

func (r *Runner) runParallel(ctx context.Context) (*Report, error) {
	names := make([]string, 0, len(r.Graph.Dependencies))
	for name := range r.Graph.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &Report{Failed: map[string]error{}}
	r.loadConcurrently(ctx, names, report)

	r.logReport(Parallel, report, nil)
	return report, nil
}

func (r *Runner) runBatched(ctx context.Context) (*Report, error) {
	batches, cycleErr := r.Graph.Batches()
	report := &Report{Failed: map[string]error{}, Batches: batches}

	for i, batch := range batches {
		r.logger().Debug("loading batch", "index", i, "size", len(batch))
		r.loadConcurrently(ctx, batch, report)
	}

	r.logReport(Batched, report, cycleErr)
	return report, cycleErr
}

// loadConcurrently fans a name set out over an errgroup, capped at
// MaxConcurrent, and folds per-plugin outcomes into report under a mutex.
// A single plugin's failure never aborts its siblings.
func (r *Runner) loadConcurrently(ctx context.Context, names []string, report *Report) {
	g, gctx := errgroup.WithContext(ctx)
	if r.MaxConcurrent > 0 {
		g.SetLimit(r.MaxConcurrent)
	}

	var mu sync.Mutex
	for _, name := range names {
		name := name
		g.Go(func() error {
			r.loadOneLocked(gctx, name, report, &mu)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) loadOne(ctx context.Context, name string, report *Report) {
	r.loadOneLocked(ctx, name, report, nil)
}

func (r *Runner) loadOneLocked(ctx context.Context, name string, report *Report, mu *sync.Mutex) {
	lock := func() {
		if mu != nil {
			mu.Lock()
		}
	}
	unlock := func() {
		if mu != nil {
			mu.Unlock()
		}
	}

	if _, err := r.Resolver.Resolve(ctx, name, r.Graph.Dependencies[name], resolver.Options{}); err != nil {
		lock()
		report.Failed[name] = err
		unlock()
		if r.Metrics != nil {
			r.Metrics.PluginsFailed.Inc()
		}
		return
	}

	if err := r.Load(ctx, name); err != nil {
		lock()
		report.Failed[name] = err
		unlock()
		if r.Metrics != nil {
			r.Metrics.PluginsFailed.Inc()
		}
		return
	}

	lock()
	report.Succeeded = append(report.Succeeded, name)
	unlock()
	if r.Metrics != nil {
		r.Metrics.PluginsLoaded.Inc()
	}
}

func (r *Runner) logReport(kind Kind, report *Report, cycleErr error) {
	if cycleErr != nil {
		r.logger().Warn("dependency cycle detected, residual batch loaded best-effort",
			"strategy", kind, "error", cycleErr)
		if r.Metrics != nil {
			r.Metrics.CyclesDetected.Inc()
		}
	}
	r.logger().Info("strategy run complete",
		"strategy", kind, "succeeded", len(report.Succeeded), "failed", len(report.Failed))
}
