package version

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/registry"
	"github.com/ows4444/pluginforge/internal/registry/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestEngine(t *testing.T) (*Engine, registry.Repository) {
	t.Helper()
	repo := memory.New(testLogger())
	return New(repo, events.New(testLogger(), events.NewMetrics(nil)), testLogger(), NewMetrics(nil)), repo
}

func manifestFor(name, version, compat string, deps, exports []string) string {
	return `{"name":"` + name + `","version":"` + version + `","compatibilityVersion":"` + compat + `",` +
		`"dependencies":["` + join(deps) + `"],"module":{"exports":["` + join(exports) + `"]}}`
}

func join(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += `","`
		}
		out += it
	}
	return out
}

func TestEngine_AddVersionWithMakeActive(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)

	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.0.0", Manifest: `{"name":"greeter"}`}, AddOptions{MakeActive: true}))

	active, ok := e.GetActive("greeter")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", active.Version)
	assert.Equal(t, registry.StatusActive, active.Status)

	primary, err := repo.GetByName(ctx, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", primary.Version)
}

func TestEngine_PromoteDeactivatesPrior(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.0.0", Manifest: `{}`}, AddOptions{MakeActive: true}))
	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.1.0", Manifest: `{}`}, AddOptions{MakeActive: true}))

	rows := e.ListVersions("greeter")
	require.Len(t, rows, 2)
	for _, r := range rows {
		if r.Version == "1.0.0" {
			assert.False(t, r.IsActive)
		}
		if r.Version == "1.1.0" {
			assert.True(t, r.IsActive)
		}
	}
}

func TestEngine_ListVersionsSortedDescendingBySemver(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.0.0", Manifest: `{}`}, AddOptions{}))
	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "2.0.0", Manifest: `{}`}, AddOptions{}))
	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.5.0", Manifest: `{}`}, AddOptions{}))

	rows := e.ListVersions("greeter")
	require.Len(t, rows, 3)
	assert.Equal(t, "2.0.0", rows[0].Version)
	assert.Equal(t, "1.5.0", rows[1].Version)
	assert.Equal(t, "1.0.0", rows[2].Version)
}

func TestEngine_RollbackPreservesCurrentAsRollbackTarget(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.0.0", Manifest: `{}`}, AddOptions{MakeActive: true}))
	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.1.0", Manifest: `{}`}, AddOptions{MakeActive: true}))

	require.NoError(t, e.Rollback(ctx, "greeter", "1.0.0", RollbackOptions{PreserveCurrentVersion: true, Reason: "regression"}))

	active, ok := e.GetActive("greeter")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", active.Version)

	rows := e.ListVersions("greeter")
	for _, r := range rows {
		if r.Version == "1.1.0" {
			assert.Equal(t, registry.StatusRollbackTarg, r.Status)
		}
	}
}

func TestEngine_ArchiveKeepsNewestN(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, v := range []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0"} {
		require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: v, Manifest: `{}`}, AddOptions{}))
	}
	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.4.0", Manifest: `{}`}, AddOptions{MakeActive: true}))

	require.NoError(t, e.Archive("greeter", 1))

	rows := e.ListVersions("greeter")
	archived := 0
	for _, r := range rows {
		if r.Status == registry.StatusArchived {
			archived++
		}
	}
	assert.Equal(t, 3, archived)
}

func TestEngine_DeleteVersion_RefusesActiveWithoutForce(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.AddVersion(ctx, &Record{PluginName: "greeter", Version: "1.0.0", Manifest: `{}`}, AddOptions{MakeActive: true}))

	err := e.DeleteVersion("greeter", "1.0.0", false)
	assert.ErrorIs(t, err, ErrActiveVersionProtected)

	require.NoError(t, e.DeleteVersion("greeter", "1.0.0", true))
	assert.Empty(t, e.ListVersions("greeter"))
}

func TestEngine_CheckCompatibility_FlagsRemovedExportsAndMajorBump(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.AddVersion(ctx, &Record{
		PluginName: "greeter", Version: "1.0.0",
		Manifest: manifestFor("greeter", "1.0.0", "1.0.0", []string{"logger"}, []string{"Greeter", "Farewell"}),
	}, AddOptions{}))
	require.NoError(t, e.AddVersion(ctx, &Record{
		PluginName: "greeter", Version: "2.0.0",
		Manifest: manifestFor("greeter", "2.0.0", "2.0.0", []string{"logger", "cache"}, []string{"Greeter"}),
	}, AddOptions{}))

	report, err := e.CheckCompatibility("greeter", "1.0.0", "2.0.0")
	require.NoError(t, err)
	assert.False(t, report.Compatible)
	assert.True(t, report.MajorVersionDiff)
	assert.Contains(t, report.RemovedExports, "Farewell")
	assert.Contains(t, report.AddedDependencies, "cache")
	assert.True(t, report.MigrationRequired)
	assert.NotEmpty(t, report.BreakingChanges)
}

func TestEngine_CheckCompatibility_AddedDependencyRequiresMigrationButStaysCompatible(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.AddVersion(ctx, &Record{
		PluginName: "greeter", Version: "1.0.0",
		Manifest: manifestFor("greeter", "1.0.0", "1.0.0", []string{"logger"}, []string{"Greeter"}),
	}, AddOptions{}))
	require.NoError(t, e.AddVersion(ctx, &Record{
		PluginName: "greeter", Version: "1.1.0",
		Manifest: manifestFor("greeter", "1.1.0", "1.0.0", []string{"logger", "cache"}, []string{"Greeter"}),
	}, AddOptions{}))

	report, err := e.CheckCompatibility("greeter", "1.0.0", "1.1.0")
	require.NoError(t, err)
	assert.True(t, report.Compatible)
	assert.True(t, report.MigrationRequired)
	assert.Contains(t, report.AddedDependencies, "cache")
	assert.Empty(t, report.RemovedDependencies)
	assert.Empty(t, report.BreakingChanges)
	assert.NotEmpty(t, report.Issues)
}

func TestEngine_CheckCompatibility_RemovedDependencyIsBreaking(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.AddVersion(ctx, &Record{
		PluginName: "greeter", Version: "1.0.0",
		Manifest: manifestFor("greeter", "1.0.0", "1.0.0", []string{"logger", "cache"}, []string{"Greeter"}),
	}, AddOptions{}))
	require.NoError(t, e.AddVersion(ctx, &Record{
		PluginName: "greeter", Version: "1.1.0",
		Manifest: manifestFor("greeter", "1.1.0", "1.0.0", []string{"logger"}, []string{"Greeter"}),
	}, AddOptions{}))

	report, err := e.CheckCompatibility("greeter", "1.0.0", "1.1.0")
	require.NoError(t, err)
	assert.False(t, report.Compatible)
	assert.False(t, report.MigrationRequired)
	assert.Contains(t, report.RemovedDependencies, "cache")
	assert.NotEmpty(t, report.BreakingChanges)
}
