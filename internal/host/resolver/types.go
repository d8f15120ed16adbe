// Package resolver waits for a plugin's dependencies to reach the LOADED
// state, driven entirely by state-change events rather than polling. It
// supports partial resolution, graceful timeout retry, and continuous
// health probing of tracked dependencies.
package resolver

import (
	"fmt"
	"strings"
	"time"
)

// PartialPolicy lets a waiter resolve before every dependency is LOADED,
// provided enough of them are and a required subset is fully satisfied.
type PartialPolicy struct {
	Enabled              bool
	MinRequired          int
	RequiredDependencies []string
}

func (p *PartialPolicy) satisfiedBy(resolved map[string]bool) bool {
	if p == nil || !p.Enabled {
		return false
	}
	if len(resolved) < p.MinRequired {
		return false
	}
	for _, dep := range p.RequiredDependencies {
		if !resolved[dep] {
			return false
		}
	}
	return true
}

// Options configures one call to Resolve.
type Options struct {
	MaxWait         time.Duration
	Partial         *PartialPolicy
	RetryBudget     int
	CleanupHandlers []func()
}

// Result is returned when a waiter resolves, either fully or partially.
type Result struct {
	Name     string
	Resolved []string
	Pending  []string
	Partial  bool
	Warning  string
}

// ErrDependencyFailed is returned when a watched dependency transitions to FAILED.
type ErrDependencyFailed struct {
	Name       string
	Dependency string
}

func (e *ErrDependencyFailed) Error() string {
	return fmt.Sprintf("resolver: %s cannot resolve, dependency %s failed", e.Name, e.Dependency)
}

// ErrTimeout is returned when maxWaitTime elapses with no graceful retry left.
type ErrTimeout struct {
	Name    string
	Pending []string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("resolver: %s timed out waiting on [%s]", e.Name, strings.Join(e.Pending, ", "))
}

// ErrCancelled is returned when the caller's context is cancelled mid-wait.
type ErrCancelled struct {
	Name string
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("resolver: wait for %s cancelled", e.Name)
}

// ErrAlreadyWaiting is returned when Resolve is called for a name that
// already has a waiter registered.
type ErrAlreadyWaiting struct {
	Name string
}

func (e *ErrAlreadyWaiting) Error() string {
	return fmt.Sprintf("resolver: a waiter for %s is already registered", e.Name)
}

// HealthProbe checks whether dependency is still reachable/healthy. A
// non-nil error counts as one consecutive failure.
type HealthProbe func(dependency string) error
