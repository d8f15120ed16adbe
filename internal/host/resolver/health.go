package resolver

import (
	"time"

	"github.com/ows4444/pluginforge/internal/events"
)

// healthState tracks consecutive probe failures for one dependency.
type healthState struct {
	consecutiveFailures int
	unhealthy           bool
}

// trackDependencyLocked increments dep's waiter refcount, starting a probe
// goroutine the first time it becomes watched. Must be called with r.mu held.
func (r *Resolver) trackDependencyLocked(dep string) {
	r.depRefs[dep]++
	if r.depRefs[dep] == 1 && r.cfg.HealthProbe != nil {
		r.startHealthProbe(dep)
	}
}

// untrackDependencyLocked decrements dep's refcount, stopping its probe
// goroutine once no waiter is watching it anymore. Must be called with r.mu held.
func (r *Resolver) untrackDependencyLocked(dep string) {
	r.depRefs[dep]--
	if r.depRefs[dep] <= 0 {
		delete(r.depRefs, dep)
		r.stopHealthProbe(dep)
	}
}

func (r *Resolver) startHealthProbe(dep string) {
	stop := make(chan struct{})

	r.healthMu.Lock()
	r.healthStop[dep] = stop
	r.health[dep] = &healthState{}
	r.healthMu.Unlock()

	r.wg.Add(1)
	go r.healthLoop(dep, stop)
}

func (r *Resolver) stopHealthProbe(dep string) {
	r.healthMu.Lock()
	stop, ok := r.healthStop[dep]
	if ok {
		delete(r.healthStop, dep)
		delete(r.health, dep)
	}
	r.healthMu.Unlock()
	if ok {
		close(stop)
	}
}

func (r *Resolver) healthLoop(dep string, stop chan struct{}) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-stop:
			return
		case <-ticker.C:
			r.probe(dep)
		}
	}
}

func (r *Resolver) probe(dep string) {
	err := r.cfg.HealthProbe(dep)

	r.healthMu.Lock()
	st, ok := r.health[dep]
	if !ok {
		r.healthMu.Unlock()
		return
	}
	wasUnhealthy := st.unhealthy
	if err != nil {
		st.consecutiveFailures++
		if st.consecutiveFailures >= r.cfg.HealthCheckMaxFailures {
			st.unhealthy = true
		}
	} else {
		st.consecutiveFailures = 0
		st.unhealthy = false
	}
	becameUnhealthy := !wasUnhealthy && st.unhealthy
	recovered := wasUnhealthy && !st.unhealthy
	r.healthMu.Unlock()

	switch {
	case becameUnhealthy:
		r.cfg.Logger.Warn("dependency crossed unhealthy threshold", "dependency", dep)
		r.emitDependencyEvent(events.TypePluginDependencyUnhealthy, dep)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.DependencyUnhealthy.Inc()
		}
	case recovered:
		r.cfg.Logger.Info("dependency recovered", "dependency", dep)
		r.emitDependencyEvent(events.TypePluginDependencyRecovered, dep)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.DependencyRecovered.Inc()
		}
	}
}

func (r *Resolver) emitDependencyEvent(t events.Type, dep string) {
	if r.cfg.Bus == nil {
		return
	}
	_ = r.cfg.Bus.Publish(events.Event{Type: t, PluginName: dep})
}
