// Package state implements the per-plugin lifecycle state machine: legal
// transitions, a bounded transition history ring, and idempotent re-entry.
package state

import (
	"fmt"
	"sync"
	"time"
)

// State is one lifecycle stage a plugin instance can occupy.
type State int

const (
	Unloaded State = iota
	Discovered
	Loading
	Loaded
	Unloading
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "UNLOADED"
	case Discovered:
		return "DISCOVERED"
	case Loading:
		return "LOADING"
	case Loaded:
		return "LOADED"
	case Unloading:
		return "UNLOADING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions maps a state to the set of states it may move to.
// Every state may also move to Failed (a fatal error), handled separately
// in CanTransition rather than duplicated in every entry.
var legalTransitions = map[State]map[State]bool{
	Unloaded:   {Discovered: true},
	Discovered: {Loading: true},
	Loading:    {Loaded: true, Failed: true},
	Loaded:     {Unloading: true},
	Unloading:  {Unloaded: true},
	Failed:     {Discovered: true}, // a retry re-enters discovery
}

// CanTransition reports whether from -> to is legal. Re-entering the
// current state is always legal (idempotent no-op) and any state may
// transition to Failed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	if to == Failed {
		return true
	}
	return legalTransitions[from][to]
}

// Transition is one stamped entry in a plugin's history ring.
type Transition struct {
	From      State
	To        State
	Event     string
	Error     string
	Timestamp time.Time
}

// ErrIllegalTransition is returned when a transition violates the state graph.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("state: illegal transition %s -> %s", e.From, e.To)
}

const defaultHistorySize = 50

// pluginState holds one plugin's current state and bounded history ring.
type pluginState struct {
	current State
	history []Transition
}

// Machine tracks every plugin's current state and transition history.
type Machine struct {
	mu          sync.RWMutex
	plugins     map[string]*pluginState
	historySize int
	metrics     *Metrics
}

// New constructs a Machine. historySize<=0 uses the default of 50.
func New(historySize int, metrics *Metrics) *Machine {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Machine{
		plugins:     make(map[string]*pluginState),
		historySize: historySize,
		metrics:     metrics,
	}
}

// Current returns name's current state, defaulting to Unloaded if untracked.
func (m *Machine) Current(name string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.plugins[name]; ok {
		return p.current
	}
	return Unloaded
}

// Transition moves name from its current state to to, stamping the
// transition into its history ring. Re-requesting the current state is a
// no-op that still records a transition entry (for audit visibility).
func (m *Machine) Transition(name string, to State, event string, transitionErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plugins[name]
	if !ok {
		p = &pluginState{current: Unloaded}
		m.plugins[name] = p
	}

	from := p.current
	if !CanTransition(from, to) {
		return &ErrIllegalTransition{From: from, To: to}
	}

	entry := Transition{From: from, To: to, Event: event, Timestamp: time.Now().UTC()}
	if transitionErr != nil {
		entry.Error = transitionErr.Error()
	}

	p.current = to
	p.history = append(p.history, entry)
	if len(p.history) > m.historySize {
		p.history = p.history[len(p.history)-m.historySize:]
	}

	if m.metrics != nil {
		m.metrics.Transitions.WithLabelValues(from.String(), to.String()).Inc()
		m.metrics.CurrentState.WithLabelValues(name).Set(float64(to))
	}
	return nil
}

// History returns a copy of name's transition ring, oldest first.
func (m *Machine) History(name string) []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	if !ok {
		return nil
	}
	out := make([]Transition, len(p.history))
	copy(out, p.history)
	return out
}

// All returns a snapshot of every tracked plugin's current state.
func (m *Machine) All() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.plugins))
	for name, p := range m.plugins {
		out[name] = p.current
	}
	return out
}

// Remove drops a plugin's tracked state entirely.
func (m *Machine) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plugins, name)
}
