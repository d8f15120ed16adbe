package handlers

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/trust"
)

func newTestTrustHandlers(t *testing.T) *TrustHandlers {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	bus := events.New(logger, events.NewMetrics(reg))
	engine := trust.New(bus, logger, trust.NewMetrics(reg))
	return &TrustHandlers{Trust: engine}
}

func TestLevels_ListsAllFiveTiers(t *testing.T) {
	h := newTestTrustHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/plugins/trust/levels", nil)
	rec := httptest.NewRecorder()
	h.Levels(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "QUARANTINED")
	assert.Contains(t, rec.Body.String(), "INTERNAL")
}

func TestPolicy_UnknownLevelReturns404(t *testing.T) {
	h := newTestTrustHandlers(t)
	req := withVars(httptest.NewRequest(http.MethodGet, "/plugins/trust/policies/bogus", nil), map[string]string{"level": "bogus"})
	rec := httptest.NewRecorder()
	h.Policy(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicy_KnownLevelReturnsPolicy(t *testing.T) {
	h := newTestTrustHandlers(t)
	req := withVars(httptest.NewRequest(http.MethodGet, "/plugins/trust/policies/VERIFIED", nil), map[string]string{"level": "VERIFIED"})
	rec := httptest.NewRecorder()
	h.Policy(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resourceLimits")
}

func TestSetTrustLevel_AssignsAndPersists(t *testing.T) {
	h := newTestTrustHandlers(t)
	body := bytes.NewBufferString(`{"version":"1.0.0","trustLevel":"VERIFIED","assignedBy":"admin","reason":"manual review"}`)
	req := withVars(httptest.NewRequest(http.MethodPut, "/plugins/greeter/trust-level", body), map[string]string{"name": "greeter"})
	rec := httptest.NewRecorder()
	h.SetTrustLevel(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	getReq := withVars(httptest.NewRequest(http.MethodGet, "/plugins/greeter/trust-level", nil), map[string]string{"name": "greeter"})
	getRec := httptest.NewRecorder()
	h.GetTrustLevel(getRec, getReq)
	assert.Contains(t, getRec.Body.String(), "VERIFIED")
}

func TestCapabilityCheck_DeniedForUnassignedPlugin(t *testing.T) {
	h := newTestTrustHandlers(t)
	body := bytes.NewBufferString(`{"capability":"process.spawn"}`)
	req := withVars(httptest.NewRequest(http.MethodPost, "/plugins/greeter/capability-check", body), map[string]string{"name": "greeter"})
	rec := httptest.NewRecorder()
	h.CapabilityCheck(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"allowed":false`)
}
