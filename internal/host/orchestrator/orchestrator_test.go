package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/host/resolver"
	"github.com/ows4444/pluginforge/internal/host/state"
	"github.com/ows4444/pluginforge/internal/host/strategy"
	"github.com/ows4444/pluginforge/internal/host/tracker"
	"github.com/ows4444/pluginforge/internal/manifest"
	"github.com/ows4444/pluginforge/internal/trust"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func writeManifest(t *testing.T, root, name string, deps []string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	m := manifest.Manifest{
		Name:       name,
		Version:    "1.0.0",
		EntryPoint: "Plugin",
		Dependencies: deps,
	}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.manifest.json"), raw, 0o644))
}

// fakeHost instantiates a plain marker value per plugin and records calls.
type fakeHost struct {
	failNames map[string]bool
	disposed  []string
}

func (h *fakeHost) Instantiate(_ context.Context, m *manifest.Manifest, _ string) (any, error) {
	if h.failNames[m.Name] {
		return nil, assertErr(m.Name)
	}
	return &struct{ name string }{name: m.Name}, nil
}

func (h *fakeHost) Dispose(_ context.Context, module any) error {
	h.disposed = append(h.disposed, module.(*struct{ name string }).name)
	return nil
}

type instantiateError struct{ name string }

func (e *instantiateError) Error() string { return "instantiate failed: " + e.name }

func assertErr(name string) error { return &instantiateError{name: name} }

func newOrchestrator(t *testing.T, pluginsDir string, host *fakeHost, recover bool) *Orchestrator {
	t.Helper()
	machine := state.New(0, nil)
	bus := events.New(testLogger(), events.NewMetrics(nil))
	bus.Start(context.Background())
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	res, err := resolver.New(resolver.Config{States: machine, Bus: bus, Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(res.Stop)

	tr := tracker.New(tracker.Config{Logger: testLogger()})
	trustEngine := trust.New(bus, testLogger(), trust.NewMetrics(nil))

	orch, err := New(Config{
		PluginsDir:   pluginsDir,
		StrategyKind: strategy.Batched,
		Host:         host,
		States:       machine,
		Resolver:     res,
		Trust:        trustEngine,
		Tracker:      tr,
		Bus:          bus,
		Logger:       testLogger(),
		Metrics:      NewMetrics(nil),
		StrategyMetrics: strategy.NewMetrics(nil),
		AttemptRecoveryOnFatalFailure: recover,
	})
	require.NoError(t, err)
	return orch
}

func TestScanAndLoadAll_LoadsInDependencyOrder(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "db", nil)
	writeManifest(t, dir, "api", []string{"db"})

	host := &fakeHost{failNames: map[string]bool{}}
	orch := newOrchestrator(t, dir, host, false)

	report, err := orch.ScanAndLoadAll(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"db", "api"}, report.Succeeded)
	assert.Empty(t, report.Failed)
	assert.Len(t, orch.Active(), 2)
}

func TestScanAndLoadAll_AbortsOnUnreadableDirectory(t *testing.T) {
	host := &fakeHost{}
	orch := newOrchestrator(t, filepath.Join(t.TempDir(), "missing"), host, false)

	_, err := orch.ScanAndLoadAll(context.Background())
	require.Error(t, err)
	var aborted *ErrScanAborted
	require.ErrorAs(t, err, &aborted)
}

func TestScanAndLoadAll_ContainsSinglePluginFailure(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "db", nil)
	writeManifest(t, dir, "cache", nil)

	host := &fakeHost{failNames: map[string]bool{"cache": true}}
	orch := newOrchestrator(t, dir, host, false)

	report, err := orch.ScanAndLoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, report.Succeeded)
	require.Contains(t, report.Failed, "cache")
}

func TestScanAndLoadAll_RollsBackWhenEverythingFails(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "db", nil)
	writeManifest(t, dir, "cache", nil)

	host := &fakeHost{failNames: map[string]bool{"db": true, "cache": true}}
	orch := newOrchestrator(t, dir, host, true)

	_, err := orch.ScanAndLoadAll(context.Background())
	require.Error(t, err)
	var aborted *ErrScanAborted
	require.ErrorAs(t, err, &aborted)
	assert.Empty(t, orch.Active())
}

func TestLoadOne_RejectsAlreadyLoaded(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "db", nil)

	host := &fakeHost{failNames: map[string]bool{}}
	orch := newOrchestrator(t, dir, host, false)

	require.NoError(t, orch.LoadOne(context.Background(), "db"))
	err := orch.LoadOne(context.Background(), "db")
	var already *ErrAlreadyLoaded
	require.ErrorAs(t, err, &already)
}

func TestLoadOne_NotFound(t *testing.T) {
	dir := t.TempDir()
	host := &fakeHost{}
	orch := newOrchestrator(t, dir, host, false)

	err := orch.LoadOne(context.Background(), "ghost")
	var notFound *ErrPluginNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestReload_UnloadsThenRescans(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "db", nil)

	host := &fakeHost{failNames: map[string]bool{}}
	orch := newOrchestrator(t, dir, host, false)

	_, err := orch.ScanAndLoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, orch.Active(), 1)

	report, err := orch.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, report.Succeeded)
	assert.Contains(t, host.disposed, "db")
}

func TestDiscover_ClassifiesDiscoveryErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty", "plugin.manifest.json"), []byte("{not json"), 0o644))
	writeManifest(t, dir, "db", nil)

	found, errs := Discover(dir)
	require.Len(t, found, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, ManifestParseError, errs[0].Kind)
}
