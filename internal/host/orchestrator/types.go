package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/host/resolver"
	"github.com/ows4444/pluginforge/internal/host/state"
	"github.com/ows4444/pluginforge/internal/host/strategy"
	"github.com/ows4444/pluginforge/internal/host/tracker"
	"github.com/ows4444/pluginforge/internal/manifest"
	"github.com/ows4444/pluginforge/internal/trust"
)

// Host is the external dynamic-module-instantiation collaborator: the
// thing that actually loads a plugin's entry point into a runnable module
// and tears it back down. The orchestrator only sequences calls to it and
// never inspects the returned module beyond handing it to the tracker.
type Host interface {
	Instantiate(ctx context.Context, m *manifest.Manifest, pluginDir string) (any, error)
	Dispose(ctx context.Context, module any) error
}

// Config wires an Orchestrator to its collaborators. PluginsDir, Host,
// States, Resolver, Trust and Tracker are required; the other fields are
// optional.
type Config struct {
	PluginsDir    string
	StrategyKind  strategy.Kind
	MaxConcurrent int
	LoadTimeout   time.Duration

	// AttemptRecoveryOnFatalFailure enables rollback-to-snapshot when a
	// scan's load phase fails in its entirety (every discovered plugin
	// failed to load). Individual plugin failures are never rolled back;
	// they're contained to that plugin per the host's failure-isolation
	// policy.
	AttemptRecoveryOnFatalFailure bool

	Host     Host
	States   *state.Machine
	Resolver *resolver.Resolver
	Trust    *trust.Engine
	Tracker  *tracker.Tracker
	Bus      *events.Bus

	Logger          *slog.Logger
	Metrics         *Metrics
	StrategyMetrics *strategy.Metrics
}

func (c *Config) setDefaults() {
	if c.StrategyKind == "" {
		c.StrategyKind = strategy.Batched
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.PluginsDir == "" {
		return fmt.Errorf("orchestrator: PluginsDir is required")
	}
	if c.Host == nil {
		return fmt.Errorf("orchestrator: Host is required")
	}
	if c.States == nil {
		return fmt.Errorf("orchestrator: States is required")
	}
	if c.Resolver == nil {
		return fmt.Errorf("orchestrator: Resolver is required")
	}
	if c.Trust == nil {
		return fmt.Errorf("orchestrator: Trust is required")
	}
	if c.Tracker == nil {
		return fmt.Errorf("orchestrator: Tracker is required")
	}
	return nil
}

// Snapshot records which version of each plugin was active at a point in
// time, for rollback after a fatal scan failure.
type Snapshot map[string]string

// ErrAlreadyLoaded is returned by LoadOne when the named plugin is already active.
type ErrAlreadyLoaded struct{ Name string }

func (e *ErrAlreadyLoaded) Error() string {
	return fmt.Sprintf("orchestrator: %s is already loaded", e.Name)
}

// ErrPluginNotFound is returned by LoadOne when no matching manifest was discovered.
type ErrPluginNotFound struct{ Name string }

func (e *ErrPluginNotFound) Error() string {
	return fmt.Sprintf("orchestrator: plugin %s not found among discovered manifests", e.Name)
}

// ErrTrustDenied is returned when pre-load security validation rejects a plugin.
type ErrTrustDenied struct {
	Name       string
	Violations []string
}

func (e *ErrTrustDenied) Error() string {
	return fmt.Sprintf("orchestrator: %s denied by trust policy: %v", e.Name, e.Violations)
}

// ErrScanAborted is returned when a scan cannot proceed to the load phase at all.
type ErrScanAborted struct {
	Reason error
}

func (e *ErrScanAborted) Error() string {
	return fmt.Sprintf("orchestrator: scan aborted: %v", e.Reason)
}

func (e *ErrScanAborted) Unwrap() error { return e.Reason }
