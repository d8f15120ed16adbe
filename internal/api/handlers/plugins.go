// Package handlers implements the registry HTTP surface: every handler
// is a thin adapter translating an *http.Request into a call against the
// ingestion pipeline, repository, blob store, version engine, or trust
// engine, and the result back into the standard JSON envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	apierrors "github.com/ows4444/pluginforge/internal/api/errors"
	"github.com/ows4444/pluginforge/internal/api/middleware"
	"github.com/ows4444/pluginforge/internal/ingest"
	"github.com/ows4444/pluginforge/internal/registry"
	"github.com/ows4444/pluginforge/internal/registry/blob"
	"github.com/ows4444/pluginforge/internal/trust"
	"github.com/ows4444/pluginforge/internal/version"
)

// PluginHandlers bundles the collaborators every registry route needs.
type PluginHandlers struct {
	Ingest     *ingest.Orchestrator
	Repository registry.Repository
	Blobs      *blob.Store
	Versions   *version.Engine
	Trust      *trust.Engine
	Logger     *slog.Logger

	MaxUploadSize int64
}

const maxUploadFormMemory = 32 << 20 // buffered in memory before spilling to temp files

// List handles GET /plugins.
func (h *PluginHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := registry.ListOptions{
		Status:   registry.Status(r.URL.Query().Get("status")),
		SortBy:   r.URL.Query().Get("sortBy"),
		SortDesc: r.URL.Query().Get("sortDesc") == "true",
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = n
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		opts.Offset = n
	}

	records, err := h.Repository.List(r.Context(), opts)
	if err != nil {
		h.writeErr(w, r, apierrors.DatabaseOperationFailed(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Upload handles POST /plugins: a ZIP multipart body under field "file".
func (h *PluginHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadFormMemory); err != nil {
		h.writeErr(w, r, apierrors.PluginUploadFailed("malformed multipart body: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeErr(w, r, apierrors.PluginUploadFailed("missing multipart field \"file\": "+err.Error()))
		return
	}
	defer file.Close()

	if h.MaxUploadSize > 0 && header.Size > h.MaxUploadSize {
		h.writeErr(w, r, apierrors.PluginUploadFailed("upload exceeds the configured size limit"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.MaxUploadSize+1))
	if err != nil {
		h.writeErr(w, r, apierrors.PluginUploadFailed("read upload: "+err.Error()))
		return
	}

	result, err := h.Ingest.Ingest(r.Context(), ingest.Request{
		Data:      data,
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	})
	if err != nil {
		var apiErr *apierrors.APIError
		if errors.As(err, &apiErr) {
			h.writeErr(w, r, apiErr)
			return
		}
		h.writeErr(w, r, apierrors.InternalServerError(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Get handles GET /plugins/{name}.
func (h *PluginHandlers) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	rec, err := h.Repository.GetByName(r.Context(), name)
	if err != nil {
		h.writeNotFoundOr500(w, r, name, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Download handles GET /plugins/{name}/download, streaming the active
// version's archive bytes and recording a download event.
func (h *PluginHandlers) Download(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	rec, err := h.Repository.GetByName(r.Context(), name)
	if err != nil {
		h.writeNotFoundOr500(w, r, name, err)
		return
	}

	data, err := h.Blobs.Read(r.Context(), rec.Name, rec.Version)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			h.writeErr(w, r, apierrors.ResourceNotFound("plugin archive"))
			return
		}
		h.writeErr(w, r, apierrors.StorageOperationFailed(err.Error()))
		return
	}

	if err := h.Repository.RecordDownload(r.Context(), rec.Name, r.UserAgent(), clientIP(r)); err != nil {
		h.Logger.Warn("failed to record download", "name", rec.Name, "error", err)
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+rec.Name+"-"+rec.Version+".zip\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Delete handles DELETE /plugins/{name}.
func (h *PluginHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.Repository.GetByName(r.Context(), name); err != nil {
		h.writeNotFoundOr500(w, r, name, err)
		return
	}
	if err := h.Repository.Delete(r.Context(), name); err != nil {
		h.writeErr(w, r, apierrors.DatabaseOperationFailed(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /plugins/search?q=.
func (h *PluginHandlers) Search(w http.ResponseWriter, r *http.Request) {
	records, err := h.Repository.Search(r.Context(), registry.SearchQuery{Q: r.URL.Query().Get("q")})
	if err != nil {
		h.writeErr(w, r, apierrors.DatabaseOperationFailed(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Health handles GET /health.
func (h *PluginHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status := h.Repository.HealthCheck(r.Context())
	body := map[string]any{
		"status":    boolToStatus(status.Healthy),
		"detail":    status.Detail,
		"timestamp": jsonNow(),
	}
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

// Stats handles GET /stats.
func (h *PluginHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Repository.Stats(r.Context())
	if err != nil {
		h.writeErr(w, r, apierrors.DatabaseOperationFailed(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *PluginHandlers) writeNotFoundOr500(w http.ResponseWriter, r *http.Request, name string, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		h.writeErr(w, r, apierrors.PluginNotFound(name))
		return
	}
	h.writeErr(w, r, apierrors.DatabaseOperationFailed(err.Error()))
}

func (h *PluginHandlers) writeErr(w http.ResponseWriter, r *http.Request, err *apierrors.APIError) {
	apierrors.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return r.RemoteAddr
}

func boolToStatus(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

func jsonNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
