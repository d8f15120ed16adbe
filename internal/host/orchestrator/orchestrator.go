// Package orchestrator ties the host-side lifecycle state machine,
// dependency resolver, loading strategies, and resource tracker together
// into one entry point: discover plugins on disk, validate them against
// trust policy, load them in dependency order, and register whatever they
// allocate for later cleanup. A failed scan can roll back to the last
// known-good snapshot of which plugin versions were active.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/host/resolver"
	"github.com/ows4444/pluginforge/internal/host/state"
	"github.com/ows4444/pluginforge/internal/host/strategy"
)

// Orchestrator is the host's top-level plugin lifecycle driver. Zero value
// is not usable; use New.
type Orchestrator struct {
	cfg Config

	mu     sync.Mutex
	active Snapshot // plugin name -> version currently loaded
}

// New validates cfg and constructs an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg, active: make(Snapshot)}, nil
}

// Active returns a snapshot of every plugin name and version currently loaded.
func (o *Orchestrator) Active() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(o.active))
	for name, version := range o.active {
		snap[name] = version
	}
	return snap
}

// ScanAndLoadAll discovers every plugin under PluginsDir, resolves a load
// order from their declared dependencies, validates each against trust
// policy, and loads the survivors under the configured strategy. A root
// directory read failure or a dependency cycle aborts before anything is
// loaded. If every discovered plugin fails to load and recovery is
// enabled, the scan rolls back to the snapshot taken before it started.
func (o *Orchestrator) ScanAndLoadAll(ctx context.Context) (*strategy.Report, error) {
	o.mu.Lock()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	discovered, discoveryErrs := Discover(o.cfg.PluginsDir)
	for _, de := range discoveryErrs {
		o.cfg.Logger.Warn("plugin discovery error", "plugin", de.Plugin, "kind", de.Kind, "error", de.Err)
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.DiscoveryErrors.WithLabelValues(string(de.Kind)).Inc()
		}
	}

	if len(discovered) == 0 && len(discoveryErrs) > 0 {
		return nil, &ErrScanAborted{Reason: discoveryErrs[0]}
	}

	byName := make(map[string]*Discovered, len(discovered))
	graph := strategy.Graph{Dependencies: make(map[string][]string, len(discovered))}
	for _, d := range discovered {
		byName[d.Name] = d
		graph.Dependencies[d.Name] = d.Manifest.Dependencies
	}

	if _, err := graph.Batches(); err != nil {
		var cycleErr *strategy.ErrCycleDetected
		if errors.As(err, &cycleErr) {
			return nil, &ErrScanAborted{Reason: err}
		}
	}

	for _, d := range discovered {
		if err := o.validateTrust(d); err != nil {
			o.cfg.Logger.Warn("plugin denied at pre-load security validation", "plugin", d.Name, "error", err)
			_ = o.cfg.States.Transition(d.Name, state.Failed, "trust-validation", err)
			delete(byName, d.Name)
			delete(graph.Dependencies, d.Name)
		}
	}

	load := func(ctx context.Context, name string) error {
		d, ok := byName[name]
		if !ok {
			return fmt.Errorf("orchestrator: %s denied by pre-load validation", name)
		}
		return o.loadPlugin(ctx, d)
	}

	runner := &strategy.Runner{
		Graph:         graph,
		Resolver:      o.cfg.Resolver,
		Load:          load,
		Logger:        o.cfg.Logger,
		Metrics:       o.cfg.StrategyMetrics,
		MaxConcurrent: o.cfg.MaxConcurrent,
	}
	report, _ := runner.Run(ctx, o.cfg.StrategyKind)

	allFailed := len(discovered) > 0 && len(report.Succeeded) == 0 && len(report.Failed) == len(byName)
	if o.cfg.AttemptRecoveryOnFatalFailure && allFailed {
		o.rollbackTo(ctx, snap)
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.Rollbacks.Inc()
		}
		return report, &ErrScanAborted{Reason: fmt.Errorf("all %d plugins failed to load", len(byName))}
	}

	return report, nil
}

// LoadOne loads a single named plugin, failing if it is already active or
// was not discovered under PluginsDir.
func (o *Orchestrator) LoadOne(ctx context.Context, name string) error {
	o.mu.Lock()
	_, exists := o.active[name]
	o.mu.Unlock()
	if exists {
		return &ErrAlreadyLoaded{Name: name}
	}

	discovered, discoveryErrs := Discover(o.cfg.PluginsDir)
	var target *Discovered
	for _, d := range discovered {
		if d.Name == name {
			target = d
			break
		}
	}
	if target == nil {
		for _, de := range discoveryErrs {
			if de.Plugin == name {
				return de
			}
		}
		return &ErrPluginNotFound{Name: name}
	}

	if err := o.validateTrust(target); err != nil {
		_ = o.cfg.States.Transition(name, state.Failed, "trust-validation", err)
		return err
	}

	if _, err := o.cfg.Resolver.Resolve(ctx, name, target.Manifest.Dependencies, resolver.Options{}); err != nil {
		_ = o.cfg.States.Transition(name, state.Failed, "resolve", err)
		return err
	}

	return o.loadPlugin(ctx, target)
}

// Reload unloads every active plugin and rescans, restoring the prior
// snapshot if either phase fails.
func (o *Orchestrator) Reload(ctx context.Context) (*strategy.Report, error) {
	o.mu.Lock()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.unloadAll(ctx)

	report, err := o.ScanAndLoadAll(ctx)
	if err != nil {
		o.rollbackTo(ctx, snap)
		return report, err
	}
	return report, nil
}

func (o *Orchestrator) validateTrust(d *Discovered) error {
	result, err := o.cfg.Trust.ValidateAgainstPolicy(d.Name, d.Manifest, d.Manifest.Version)
	if err != nil {
		return err
	}
	if !result.IsValid {
		return &ErrTrustDenied{Name: d.Name, Violations: result.Violations}
	}
	return nil
}

func (o *Orchestrator) loadPlugin(ctx context.Context, d *Discovered) error {
	_ = o.cfg.States.Transition(d.Name, state.Discovered, "discover", nil)
	_ = o.cfg.States.Transition(d.Name, state.Loading, "load", nil)

	loadCtx, cancel := context.WithTimeout(ctx, o.cfg.LoadTimeout)
	defer cancel()

	module, err := o.cfg.Host.Instantiate(loadCtx, d.Manifest, d.Path)
	if err != nil {
		_ = o.cfg.States.Transition(d.Name, state.Failed, "instantiate", err)
		o.emit(events.TypePluginLoadFailed, d.Name, err)
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.LoadsFailed.Inc()
		}
		return err
	}

	o.cfg.Tracker.Register(d.Name, module)

	if err := o.cfg.States.Transition(d.Name, state.Loaded, "instantiate", nil); err != nil {
		_ = o.cfg.Host.Dispose(ctx, module)
		o.cfg.Tracker.Cleanup(d.Name)
		return err
	}

	o.mu.Lock()
	o.active[d.Name] = d.Manifest.Version
	activeCount := len(o.active)
	o.mu.Unlock()

	o.emit(events.TypePluginLoaded, d.Name, nil)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.LoadsSucceeded.Inc()
		o.cfg.Metrics.ActivePlugins.Set(float64(activeCount))
	}
	return nil
}

func (o *Orchestrator) unloadAll(ctx context.Context) {
	o.mu.Lock()
	names := make([]string, 0, len(o.active))
	for name := range o.active {
		names = append(names, name)
	}
	o.mu.Unlock()

	for _, name := range names {
		if err := o.unloadOne(ctx, name); err != nil {
			o.cfg.Logger.Error("failed to unload plugin", "plugin", name, "error", err)
		}
	}
}

func (o *Orchestrator) unloadOne(ctx context.Context, name string) error {
	if err := o.cfg.States.Transition(name, state.Unloading, "unload", nil); err != nil {
		return err
	}

	if instance, ok := o.cfg.Tracker.Instance(name); ok {
		if err := o.cfg.Host.Dispose(ctx, instance); err != nil {
			o.cfg.Logger.Warn("module dispose failed during unload", "plugin", name, "error", err)
		}
	}
	o.cfg.Tracker.Cleanup(name)

	if err := o.cfg.States.Transition(name, state.Unloaded, "unload", nil); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.active, name)
	activeCount := len(o.active)
	o.mu.Unlock()

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ActivePlugins.Set(float64(activeCount))
	}
	return nil
}

// rollbackTo disposes every plugin loaded since snap was taken and
// restores the orchestrator's active set to it.
func (o *Orchestrator) rollbackTo(ctx context.Context, snap Snapshot) {
	o.mu.Lock()
	current := o.snapshotLocked()
	o.mu.Unlock()

	for name := range current {
		if _, ok := snap[name]; !ok {
			_ = o.unloadOne(ctx, name)
		}
	}

	o.mu.Lock()
	o.active = snap
	o.mu.Unlock()
	o.cfg.Logger.Warn("rolled back to last known-good snapshot", "active_plugins", len(snap))
}

func (o *Orchestrator) emit(t events.Type, name string, err error) {
	if o.cfg.Bus == nil {
		return
	}
	payload := map[string]any{}
	if err != nil {
		payload["error"] = err.Error()
	}
	_ = o.cfg.Bus.Publish(events.Event{Type: t, PluginName: name, Payload: payload})
}
