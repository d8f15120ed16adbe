package api

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

	"github.com/ows4444/pluginforge/internal/api/handlers"
	"github.com/ows4444/pluginforge/internal/api/middleware"
	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/registry"
	"github.com/ows4444/pluginforge/internal/trust"
	"github.com/ows4444/pluginforge/internal/version"
)

type memRepository struct {
	records map[string]*registry.Record
}

func newMemRepository() *memRepository { return &memRepository{records: map[string]*registry.Record{}} }

func (m *memRepository) Save(ctx context.Context, rec *registry.Record) error {
	m.records[rec.Name] = rec
	return nil
}
func (m *memRepository) GetByName(ctx context.Context, name string) (*registry.Record, error) {
	if r, ok := m.records[name]; ok {
		return r, nil
	}
	return nil, registry.ErrNotFound
}
func (m *memRepository) GetByChecksum(ctx context.Context, checksum string) (*registry.Record, error) {
	return nil, registry.ErrNotFound
}
func (m *memRepository) List(ctx context.Context, opts registry.ListOptions) ([]*registry.Record, error) {
	out := make([]*registry.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}
func (m *memRepository) Search(ctx context.Context, q registry.SearchQuery) ([]*registry.Record, error) {
	return m.List(ctx, registry.ListOptions{})
}
func (m *memRepository) RecordDownload(ctx context.Context, name, userAgent, ipAddress string) error {
	return nil
}
func (m *memRepository) Delete(ctx context.Context, name string) error {
	delete(m.records, name)
	return nil
}
func (m *memRepository) UpdateStatus(ctx context.Context, name string, status registry.Status) error {
	return nil
}
func (m *memRepository) Stats(ctx context.Context) (registry.Stats, error) {
	return registry.Stats{TotalPlugins: int64(len(m.records))}, nil
}
func (m *memRepository) HealthCheck(ctx context.Context) registry.HealthStatus {
	return registry.HealthStatus{Healthy: true}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	bus := events.New(logger, events.NewMetrics(reg))
	repo := newMemRepository()

	pluginHandlers := &handlers.PluginHandlers{
		Repository:    repo,
		Logger:        logger,
		MaxUploadSize: 1 << 20,
	}
	trustHandlers := &handlers.TrustHandlers{Trust: trust.New(bus, logger, trust.NewMetrics(reg))}
	versionHandlers := &handlers.VersionHandlers{Versions: version.New(repo, bus, logger, version.NewMetrics(reg))}

	return NewRouter(RouterConfig{
		Plugins:     pluginHandlers,
		Trust:       trustHandlers,
		Versions:    versionHandlers,
		Logger:      logger,
		HTTPMetrics: middleware.NewMetrics(reg),
		EnableCORS:  true,
	})
}

func TestRouter_HealthIsPublic(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_DeleteRequiresAuthWhenEnabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	bus := events.New(logger, events.NewMetrics(reg))
	repo := newMemRepository()

	router := NewRouter(RouterConfig{
		Plugins:    &handlers.PluginHandlers{Repository: repo, Logger: logger, MaxUploadSize: 1 << 20},
		Trust:      &handlers.TrustHandlers{Trust: trust.New(bus, logger, trust.NewMetrics(reg))},
		Versions:   &handlers.VersionHandlers{Versions: version.New(repo, bus, logger, version.NewMetrics(reg))},
		Logger:     logger,
		EnableAuth: true,
		AuthConfig: middleware.AuthConfig{Enabled: true, APIKeys: map[string]*middleware.User{}},
	})

	req := httptest.NewRequest(http.MethodDelete, "/plugins/greeter", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_UploadRouteExistsWithoutAuth(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/plugins", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}
