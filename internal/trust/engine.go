package trust

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/manifest"
)

func assignmentKey(name, version string) string {
	return name + "@" + version
}

// Engine is the trust policy table, capability catalog, active
// assignments, and the violation ledger. All mutation happens through the
// Engine, which serializes writes (a single writer per assignment key).
type Engine struct {
	mu          sync.RWMutex
	policies    map[Level]*Policy
	assignments map[string][]*Assignment // key: name@version, version "" allowed
	violations  []Violation
	changes     []ChangeRequest

	bus     *events.Bus
	logger  *slog.Logger
	metrics *Metrics
}

// New constructs an Engine with the built-in policy table.
func New(bus *events.Bus, logger *slog.Logger, metrics *Metrics) *Engine {
	return &Engine{
		policies:    DefaultPolicies(),
		assignments: make(map[string][]*Assignment),
		bus:         bus,
		logger:      logger.With("component", "trust_engine"),
		metrics:     metrics,
	}
}

// Policy returns the policy for a level.
func (e *Engine) Policy(level Level) (*Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[level]
	return p, ok
}

// GetTrustLevel resolves the active assignment, falling back across
// (name, version) → (name, "") → Untrusted.
func (e *Engine) GetTrustLevel(name, version string) Level {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if a := e.activeLocked(name, version); a != nil {
		return a.TrustLevel
	}
	if version != "" {
		if a := e.activeLocked(name, ""); a != nil {
			return a.TrustLevel
		}
	}
	return Untrusted
}

func (e *Engine) activeLocked(name, version string) *Assignment {
	for _, a := range e.assignments[assignmentKey(name, version)] {
		if a.IsActive {
			return a
		}
	}
	return nil
}

// CanPerformCapability reports whether name (at version) may use cap.
func (e *Engine) CanPerformCapability(name, capability, version string) bool {
	level := e.GetTrustLevel(name, version)
	policy, ok := e.Policy(level)
	if !ok {
		return false
	}
	if policy.DeniedCapabilities[capability] {
		return false
	}
	return policy.AllowedCapabilities[capability]
}

// AssignTrustLevel deactivates prior active rows for (name, version) and
// inserts a new active one, emitting a trust.assigned event.
func (e *Engine) AssignTrustLevel(a *Assignment) error {
	if a.PluginName == "" {
		return fmt.Errorf("trust: assignment requires a plugin name")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	a.IsActive = true

	e.mu.Lock()
	key := assignmentKey(a.PluginName, a.Version)
	for _, existing := range e.assignments[key] {
		existing.IsActive = false
	}
	e.assignments[key] = append(e.assignments[key], a)
	e.mu.Unlock()

	e.logger.Info("trust level assigned",
		"plugin", a.PluginName, "version", a.Version, "level", a.TrustLevel.String(), "assigned_by", a.AssignedBy)

	if e.metrics != nil {
		e.metrics.AssignmentsTotal.WithLabelValues(a.TrustLevel.String()).Inc()
	}
	if e.bus != nil {
		_ = e.bus.Publish(events.Event{Type: events.TypeTrustAssigned, PluginName: a.PluginName, Payload: a})
	}
	return nil
}

// ValidateAgainstPolicy checks every capability the manifest's permissions
// imply against the effective policy for (name, version).
func (e *Engine) ValidateAgainstPolicy(name string, m *manifest.Manifest, version string) (*ValidationResult, error) {
	level := e.GetTrustLevel(name, version)
	policy, ok := e.Policy(level)
	if !ok {
		return nil, fmt.Errorf("trust: no policy for level %s", level)
	}

	result := &ValidationResult{IsValid: true}
	required := requiredCapabilities(m)

	for _, cap := range required {
		if policy.DeniedCapabilities[cap] || !policy.AllowedCapabilities[cap] {
			result.IsValid = false
			result.Violations = append(result.Violations, fmt.Sprintf("capability %q denied at trust level %s", cap, level))
			result.RequiredActions = append(result.RequiredActions, ActionRestrict)
		}
	}
	return result, nil
}

// requiredCapabilities derives the capability names a manifest's
// permissions/routes imply. Unrecognized service/module names are passed
// through verbatim so the policy lookup itself decides (missing from
// AllowedCapabilities denies by default).
func requiredCapabilities(m *manifest.Manifest) []string {
	var caps []string
	if m.Permissions != nil {
		caps = append(caps, m.Permissions.Services...)
		caps = append(caps, m.Permissions.Modules...)
	}
	if len(m.Routes) > 0 {
		caps = append(caps, "api.route")
	}
	return caps
}

// RecordViolation appends an entry to the violation ledger and emits a
// trust.violation event.
func (e *Engine) RecordViolation(v Violation) Violation {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = time.Now().UTC()
	}

	e.mu.Lock()
	e.violations = append(e.violations, v)
	e.mu.Unlock()

	e.logger.Warn("trust violation recorded",
		"plugin", v.PluginName, "version", v.Version, "severity", v.Severity, "action", v.Action, "message", v.Message)

	if e.metrics != nil {
		e.metrics.ViolationsTotal.WithLabelValues(string(v.Severity)).Inc()
	}
	if e.bus != nil {
		_ = e.bus.Publish(events.Event{Type: events.TypeTrustViolation, PluginName: v.PluginName, Payload: v})
	}
	return v
}

// Violations returns a snapshot of the violation ledger for a plugin, or
// all violations if name is empty.
func (e *Engine) Violations(name string) []Violation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if name == "" {
		out := make([]Violation, len(e.violations))
		copy(out, e.violations)
		return out
	}
	var out []Violation
	for _, v := range e.violations {
		if v.PluginName == name {
			out = append(out, v)
		}
	}
	return out
}

// RequestChange enqueues a review request rather than auto-applying a change.
func (e *Engine) RequestChange(req ChangeRequest) ChangeRequest {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	e.mu.Lock()
	e.changes = append(e.changes, req)
	e.mu.Unlock()
	e.logger.Info("trust change requested", "plugin", req.PluginName, "requested_by", req.RequestedBy)
	return req
}
