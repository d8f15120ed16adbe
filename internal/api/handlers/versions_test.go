package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ows4444/pluginforge/internal/version"
)

func newTestVersionHandlers(t *testing.T) (*VersionHandlers, *fakeRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	repo := newFakeRepository()
	engine := version.New(repo, nil, logger, version.NewMetrics(reg))
	return &VersionHandlers{Versions: engine}, repo
}

func TestVersions_PromoteThenList(t *testing.T) {
	h, _ := newTestVersionHandlers(t)
	ctx := context.Background()

	require.NoError(t, h.Versions.AddVersion(ctx, &version.Record{PluginName: "greeter", Version: "1.0.0", Manifest: "{}"}, version.AddOptions{MakeActive: true}))
	require.NoError(t, h.Versions.AddVersion(ctx, &version.Record{PluginName: "greeter", Version: "1.1.0", Manifest: "{}"}, version.AddOptions{}))

	req := withVars(httptest.NewRequest(http.MethodPost, "/plugins/greeter/versions/1.1.0/promote", nil), map[string]string{"name": "greeter", "version": "1.1.0"})
	rec := httptest.NewRecorder()
	h.Promote(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	listReq := withVars(httptest.NewRequest(http.MethodGet, "/plugins/greeter/versions", nil), map[string]string{"name": "greeter"})
	listRec := httptest.NewRecorder()
	h.List(listRec, listReq)

	assert.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), "1.1.0")
}

func TestVersions_RollbackToUnknownVersionReturns404(t *testing.T) {
	h, _ := newTestVersionHandlers(t)
	req := withVars(httptest.NewRequest(http.MethodPost, "/plugins/greeter/versions/9.9.9/rollback", nil), map[string]string{"name": "greeter", "version": "9.9.9"})
	rec := httptest.NewRecorder()
	h.Rollback(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
