package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/host/resolver"
	"github.com/ows4444/pluginforge/internal/host/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestGraph_BatchesOrdersByDependency(t *testing.T) {
	g := Graph{Dependencies: map[string][]string{
		"db":     {},
		"cache":  {},
		"api":    {"db", "cache"},
		"portal": {"api"},
	}}

	batches, err := g.Batches()
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.ElementsMatch(t, []string{"cache", "db"}, batches[0])
	assert.Equal(t, []string{"api"}, batches[1])
	assert.Equal(t, []string{"portal"}, batches[2])
}

func TestGraph_BatchesDetectsCycle(t *testing.T) {
	g := Graph{Dependencies: map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}}

	batches, err := g.Batches()
	var cycleErr *ErrCycleDetected
	require.ErrorAs(t, err, &cycleErr)
	require.Len(t, batches, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, batches[0])
}

func newRunner(t *testing.T, graph Graph, maxConcurrent int) (*Runner, *state.Machine, *[]string) {
	t.Helper()
	machine := state.New(0, nil)
	bus := events.New(testLogger(), events.NewMetrics(nil))
	bus.Start(context.Background())
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	res, err := resolver.New(resolver.Config{States: machine, Bus: bus, Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(res.Stop)

	var loaded []string
	load := func(ctx context.Context, name string) error {
		_ = machine.Transition(name, state.Discovered, "discover", nil)
		_ = machine.Transition(name, state.Loading, "load", nil)
		if err := machine.Transition(name, state.Loaded, "instantiate", nil); err != nil {
			return err
		}
		loaded = append(loaded, name)
		return nil
	}

	runner := &Runner{
		Graph:         graph,
		Resolver:      res,
		Load:          load,
		Logger:        testLogger(),
		Metrics:       NewMetrics(nil),
		MaxConcurrent: maxConcurrent,
	}
	return runner, machine, &loaded
}

func TestRunner_SerialRespectsOrder(t *testing.T) {
	graph := Graph{Dependencies: map[string][]string{
		"db":  {},
		"api": {"db"},
	}}
	runner, _, loaded := newRunner(t, graph, 0)

	report, err := runner.Run(context.Background(), Serial)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []string{"db", "api"}, *loaded)
}

func TestRunner_ParallelLoadsIndependentPlugins(t *testing.T) {
	graph := Graph{Dependencies: map[string][]string{
		"alpha": {},
		"beta":  {},
	}}
	runner, _, loaded := newRunner(t, graph, 0)

	report, err := runner.Run(context.Background(), Parallel)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, *loaded)
}

func TestRunner_BatchedLoadsInDependencyOrder(t *testing.T) {
	graph := Graph{Dependencies: map[string][]string{
		"db":     {},
		"cache":  {},
		"api":    {"db", "cache"},
		"portal": {"api"},
	}}
	runner, machine, loaded := newRunner(t, graph, 2)

	report, err := runner.Run(context.Background(), Batched)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Len(t, *loaded, 4)
	assert.Equal(t, state.Loaded, machine.Current("portal"))
}

func TestRunner_UnknownKindErrors(t *testing.T) {
	runner, _, _ := newRunner(t, Graph{}, 0)
	_, err := runner.Run(context.Background(), Kind("bogus"))
	require.Error(t, err)
}
