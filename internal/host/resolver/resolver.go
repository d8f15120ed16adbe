package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/host/state"
)

// Config wires a Resolver to the state machine it reads from and the event
// bus it listens on.
type Config struct {
	States *state.Machine
	Bus    *events.Bus
	Logger *slog.Logger
	Metrics *Metrics

	DefaultMaxWait         time.Duration
	GracefulTimeoutEnabled bool
	DefaultRetryBudget     int
	CleanupDelay           time.Duration

	HealthProbe            HealthProbe
	HealthCheckInterval    time.Duration
	HealthCheckMaxFailures int
}

func (c *Config) setDefaults() {
	if c.DefaultMaxWait <= 0 {
		c.DefaultMaxWait = 30 * time.Second
	}
	if c.CleanupDelay <= 0 {
		c.CleanupDelay = time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 5 * time.Second
	}
	if c.HealthCheckMaxFailures <= 0 {
		c.HealthCheckMaxFailures = 3
	}
}

type waiterOutcome struct {
	result *Result
	err    error
}

type waiter struct {
	name            string
	pending         map[string]bool
	resolved        map[string]bool
	partial         *PartialPolicy
	retriesLeft     int
	timeout         time.Duration
	startTime       time.Time
	cleanupHandlers []func()
	outcome         chan waiterOutcome
}

func (w *waiter) reducedTimeout() time.Duration {
	w.timeout /= 2
	if w.timeout < time.Second {
		w.timeout = time.Second
	}
	return w.timeout
}

// Resolver waits for plugin dependency sets to reach LOADED, driven by
// events rather than polling. Zero value is not usable; use New.
type Resolver struct {
	cfg Config

	mu      sync.Mutex
	waiters map[string]*waiter
	depRefs map[string]int

	healthMu   sync.Mutex
	health     map[string]*healthState
	healthStop map[string]chan struct{}

	sub    *events.Subscription
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Resolver and starts its event-dispatch goroutine.
func New(cfg Config) (*Resolver, error) {
	if cfg.States == nil {
		return nil, fmt.Errorf("resolver: States is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("resolver: Bus is required")
	}
	cfg.setDefaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "dependency_resolver")

	r := &Resolver{
		cfg:        cfg,
		waiters:    make(map[string]*waiter),
		depRefs:    make(map[string]int),
		health:     make(map[string]*healthState),
		healthStop: make(map[string]chan struct{}),
		stopCh:     make(chan struct{}),
	}
	r.sub = cfg.Bus.Subscribe(events.TypePluginStateChanged, events.TypePluginLoaded, events.TypePluginLoadFailed)

	r.wg.Add(1)
	go r.eventLoop()

	return r, nil
}

// Stop unsubscribes from the bus and waits for every background goroutine
// (dispatch loop and any running health probes) to exit.
func (r *Resolver) Stop() {
	close(r.stopCh)
	if r.sub != nil {
		r.sub.Close()
	}
	r.wg.Wait()
}

// Resolve waits until name's dependencies are LOADED, or until failure,
// timeout, or cancellation. deps that are already LOADED or FAILED are
// decided immediately without registering a waiter.
func (r *Resolver) Resolve(ctx context.Context, name string, deps []string, opts Options) (*Result, error) {
	if len(deps) == 0 {
		return &Result{Name: name}, nil
	}

	allLoaded := true
	for _, dep := range deps {
		switch r.cfg.States.Current(dep) {
		case state.Loaded:
			// still need to check the rest
		case state.Failed:
			return nil, &ErrDependencyFailed{Name: name, Dependency: dep}
		default:
			allLoaded = false
		}
	}
	if allLoaded {
		return &Result{Name: name, Resolved: append([]string(nil), deps...)}, nil
	}

	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = r.cfg.DefaultMaxWait
	}
	retryBudget := opts.RetryBudget
	if retryBudget <= 0 {
		retryBudget = r.cfg.DefaultRetryBudget
	}

	r.mu.Lock()
	if _, exists := r.waiters[name]; exists {
		r.mu.Unlock()
		return nil, &ErrAlreadyWaiting{Name: name}
	}

	pending := make(map[string]bool, len(deps))
	resolved := make(map[string]bool, len(deps))
	for _, dep := range deps {
		if r.cfg.States.Current(dep) == state.Loaded {
			resolved[dep] = true
			continue
		}
		pending[dep] = true
	}

	w := &waiter{
		name:            name,
		pending:         pending,
		resolved:        resolved,
		partial:         opts.Partial,
		retriesLeft:     retryBudget,
		timeout:         maxWait,
		startTime:       time.Now(),
		cleanupHandlers: opts.CleanupHandlers,
		outcome:         make(chan waiterOutcome, 1),
	}

	if len(pending) == 0 {
		r.mu.Unlock()
		r.runCleanup(w)
		return &Result{Name: name, Resolved: keys(resolved)}, nil
	}

	r.waiters[name] = w
	for dep := range pending {
		r.trackDependencyLocked(dep)
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.WaitersActive.Set(float64(len(r.waiters)))
	}
	r.mu.Unlock()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case out := <-w.outcome:
			return out.result, out.err
		case <-timer.C:
			out, keepWaiting, next := r.handleTimeout(w)
			if !keepWaiting {
				return out.result, out.err
			}
			timer.Reset(next)
		case <-ctx.Done():
			r.abortWaiter(w, &ErrCancelled{Name: name})
			return nil, &ErrCancelled{Name: name}
		}
	}
}

func (r *Resolver) handleTimeout(w *waiter) (outcome waiterOutcome, keepWaiting bool, nextWait time.Duration) {
	r.mu.Lock()
	if w.partial.satisfiedBy(w.resolved) {
		result := &Result{
			Name: w.name, Resolved: keys(w.resolved), Pending: keys(w.pending),
			Partial: true, Warning: "resolved with partial dependency set at timeout",
		}
		out := waiterOutcome{result: result}
		r.finishLocked(w, out)
		r.mu.Unlock()
		return out, false, 0
	}

	if r.cfg.GracefulTimeoutEnabled && w.retriesLeft > 0 {
		w.retriesLeft--
		pending := keys(w.pending)
		next := w.reducedTimeout()
		r.mu.Unlock()
		r.cfg.Logger.Warn("dependency wait timed out, retrying with reduced timeout",
			"plugin", w.name, "pending", pending, "retriesLeft", w.retriesLeft, "nextTimeout", next)
		time.Sleep(r.cfg.CleanupDelay)
		return waiterOutcome{}, true, next
	}

	err := &ErrTimeout{Name: w.name, Pending: keys(w.pending)}
	out := waiterOutcome{err: err}
	r.finishLocked(w, out)
	r.mu.Unlock()
	return out, false, 0
}

func (r *Resolver) abortWaiter(w *waiter, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.waiters[w.name]; !ok {
		return
	}
	r.finishLocked(w, waiterOutcome{err: err})
}

// finishLocked removes w from every internal map, runs its cleanup
// handlers, and delivers the outcome. Must be called with r.mu held.
func (r *Resolver) finishLocked(w *waiter, outcome waiterOutcome) {
	delete(r.waiters, w.name)
	for dep := range w.pending {
		r.untrackDependencyLocked(dep)
	}
	for dep := range w.resolved {
		r.untrackDependencyLocked(dep)
	}

	select {
	case w.outcome <- outcome:
	default:
	}

	if r.cfg.Metrics != nil {
		if outcome.err != nil {
			r.cfg.Metrics.Failed.Inc()
		} else {
			r.cfg.Metrics.Resolved.Inc()
		}
		r.cfg.Metrics.WaitersActive.Set(float64(len(r.waiters)))
	}

	for _, cleanup := range w.cleanupHandlers {
		cleanup()
	}
}

func (r *Resolver) runCleanup(w *waiter) {
	for _, cleanup := range w.cleanupHandlers {
		cleanup()
	}
}

func (r *Resolver) eventLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case ev, ok := <-r.sub.C:
			if !ok {
				return
			}
			r.handleEvent(ev)
		}
	}
}

func (r *Resolver) handleEvent(ev events.Event) {
	dep := ev.PluginName
	if dep == "" {
		return
	}
	switch ev.Type {
	case events.TypePluginLoaded:
		r.markResolved(dep)
	case events.TypePluginLoadFailed:
		r.markFailed(dep)
	case events.TypePluginStateChanged:
		switch r.cfg.States.Current(dep) {
		case state.Loaded:
			r.markResolved(dep)
		case state.Failed:
			r.markFailed(dep)
		}
	}
}

func (r *Resolver) waitersWatchingLocked(dep string) []*waiter {
	var out []*waiter
	for _, w := range r.waiters {
		if w.pending[dep] {
			out = append(out, w)
		}
	}
	return out
}

func (r *Resolver) markResolved(dep string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.waitersWatchingLocked(dep) {
		delete(w.pending, dep)
		w.resolved[dep] = true

		if len(w.pending) == 0 {
			r.finishLocked(w, waiterOutcome{result: &Result{Name: w.name, Resolved: keys(w.resolved)}})
			continue
		}
		if w.partial.satisfiedBy(w.resolved) {
			r.finishLocked(w, waiterOutcome{result: &Result{
				Name: w.name, Resolved: keys(w.resolved), Pending: keys(w.pending),
				Partial: true, Warning: "resolved early under partial dependency policy",
			}})
		}
	}
}

func (r *Resolver) markFailed(dep string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.waitersWatchingLocked(dep) {
		r.finishLocked(w, waiterOutcome{err: &ErrDependencyFailed{Name: w.name, Dependency: dep}})
	}
}

func keys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
