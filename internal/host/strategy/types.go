// Package strategy computes plugin load order over a dependency graph and
// drives a dependency resolver (see internal/host/resolver) to load plugins
// serially, fully in parallel, or in dependency-ordered batches.
package strategy

import (
	"fmt"
	"sort"
)

// Kind names one of the three loading strategies.
type Kind string

const (
	Serial  Kind = "serial"
	Parallel Kind = "parallel"
	Batched  Kind = "batched"
)

// Graph is a plugin dependency graph: Dependencies[name] lists the plugin
// names that name depends on.
type Graph struct {
	Dependencies map[string][]string
}

// ErrCycleDetected is returned when the graph cannot be fully ordered
// because a subset of plugins depend on each other in a cycle. Batches
// still contains the residual set as its final entry so a caller may
// choose to proceed with a warning instead of aborting.
type ErrCycleDetected struct {
	Residual []string
}

func (e *ErrCycleDetected) Error() string {
	return fmt.Sprintf("strategy: dependency cycle detected among %v", e.Residual)
}

// Batches partitions every plugin name in the graph into dependency-ordered
// batches: batch N contains every plugin whose dependencies all appear in
// batches before N. Computed via iterative frontier expansion. If expansion
// stalls with plugins remaining, the stalled set is appended as a final
// batch and ErrCycleDetected is returned alongside it.
func (g Graph) Batches() ([][]string, error) {
	remaining := make(map[string][]string, len(g.Dependencies))
	for name, deps := range g.Dependencies {
		remaining[name] = append([]string(nil), deps...)
	}

	resolved := make(map[string]bool, len(remaining))
	var batches [][]string

	for len(remaining) > 0 {
		var frontier []string
		for name, deps := range remaining {
			ready := true
			for _, dep := range deps {
				if !resolved[dep] {
					ready = false
					break
				}
			}
			if ready {
				frontier = append(frontier, name)
			}
		}

		if len(frontier) == 0 {
			residual := make([]string, 0, len(remaining))
			for name := range remaining {
				residual = append(residual, name)
			}
			sort.Strings(residual)
			batches = append(batches, residual)
			return batches, &ErrCycleDetected{Residual: residual}
		}

		sort.Strings(frontier)
		batches = append(batches, frontier)
		for _, name := range frontier {
			resolved[name] = true
			delete(remaining, name)
		}
	}

	return batches, nil
}

// Order flattens Batches into a single topologically-sorted slice, for use
// by the serial strategy.
func (g Graph) Order() ([]string, error) {
	batches, err := g.Batches()
	var order []string
	for _, batch := range batches {
		order = append(order, batch...)
	}
	return order, err
}

// Report is the outcome of running one strategy over a Graph.
type Report struct {
	Succeeded []string
	Failed    map[string]error
	Batches   [][]string
}
