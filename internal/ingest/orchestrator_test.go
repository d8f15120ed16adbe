package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ows4444/pluginforge/internal/cache"
	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/optimize"
	"github.com/ows4444/pluginforge/internal/registry"
	"github.com/ows4444/pluginforge/internal/registry/blob"
	"github.com/ows4444/pluginforge/internal/registry/memory"
	"github.com/ows4444/pluginforge/internal/signature"
	"github.com/ows4444/pluginforge/internal/trust"
	"github.com/ows4444/pluginforge/internal/validate"
	"github.com/ows4444/pluginforge/internal/version"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func buildBundle(t *testing.T, manifestJSON string, extraFiles map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	w, err := zw.Create("plugin.manifest.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(manifestJSON))
	require.NoError(t, err)

	for name, content := range extraFiles {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type harness struct {
	orch *Orchestrator
	repo registry.Repository
}

func newHarness(t *testing.T, maxFileSize int64, optimizationEnabled bool) *harness {
	t.Helper()
	logger := testLogger()

	c, err := cache.New(cache.DefaultConfig(), logger, cache.NewMetrics(nil))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	v := validate.New(c, validate.DefaultOptions(), logger)
	verifier := signature.New(&signature.Registry{}, signature.Policy{})
	trustEngine := trust.New(nil, logger, trust.NewMetrics(nil))

	repo := memory.New(logger)
	blobDir := t.TempDir()
	blobs, err := blob.New(blobDir, logger)
	require.NoError(t, err)

	bus := events.New(logger, events.NewMetrics(nil))
	bus.Start(context.Background())
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	versions := version.New(repo, bus, logger, version.NewMetrics(nil))

	orch, err := New(Config{
		Validator:           v,
		Verifier:            verifier,
		Trust:               trustEngine,
		Versions:            versions,
		Repository:          repo,
		Blobs:               blobs,
		Bus:                 bus,
		Logger:              logger,
		Metrics:             NewMetrics(nil),
		MaxFileSize:         maxFileSize,
		OptimizationEnabled: optimizationEnabled,
		OptimizeOptions:     optimize.DefaultOptions(),
	})
	require.NoError(t, err)

	return &harness{orch: orch, repo: repo}
}

const minimalManifest = `{"name":"greeter","version":"1.0.0","description":"d","author":"a","license":"MIT","entryPoint":"Main","compatibilityVersion":"1.0.0"}`

func TestIngest_AcceptsUnsignedMinimalBundle(t *testing.T) {
	h := newHarness(t, 1<<20, false)
	data := buildBundle(t, minimalManifest, map[string]string{"index.js": "module.exports = {}"})

	result, err := h.orch.Ingest(context.Background(), Request{Data: data})
	require.NoError(t, err)
	assert.Equal(t, "greeter", result.Name)
	assert.Equal(t, "1.0.0", result.Version)
	assert.Equal(t, "UNTRUSTED", result.TrustLevel)

	rec, err := h.repo.GetByName(context.Background(), "greeter")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusActive, rec.Status)
}

func TestIngest_RejectsOversizedBundle(t *testing.T) {
	h := newHarness(t, 10, false)
	data := buildBundle(t, minimalManifest, nil)

	_, err := h.orch.Ingest(context.Background(), Request{Data: data})
	require.Error(t, err)
}

func TestIngest_RejectsMissingManifest(t *testing.T) {
	h := newHarness(t, 1<<20, false)

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	w, err := zw.Create("index.js")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = h.orch.Ingest(context.Background(), Request{Data: buf.Bytes()})
	require.Error(t, err)
}

func TestIngest_RejectsDuplicateVersion(t *testing.T) {
	h := newHarness(t, 1<<20, false)
	data := buildBundle(t, minimalManifest, nil)

	_, err := h.orch.Ingest(context.Background(), Request{Data: data})
	require.NoError(t, err)

	_, err = h.orch.Ingest(context.Background(), Request{Data: data})
	require.Error(t, err)
}

func TestIngest_RejectsUnsafeImport(t *testing.T) {
	h := newHarness(t, 1<<20, false)
	data := buildBundle(t, minimalManifest, map[string]string{"index.js": "const fs = require('fs');"})

	_, err := h.orch.Ingest(context.Background(), Request{Data: data})
	require.Error(t, err)
}

func TestIngest_RejectsCapabilityDeniedByPolicy(t *testing.T) {
	h := newHarness(t, 1<<20, false)
	withRoute := `{"name":"router","version":"1.0.0","description":"d","author":"a","license":"MIT","entryPoint":"Main","compatibilityVersion":"1.0.0","routes":["/hook"]}`
	data := buildBundle(t, withRoute, nil)

	// Untrusted (unsigned) may not use api.route.
	_, err := h.orch.Ingest(context.Background(), Request{Data: data})
	require.Error(t, err)
}
