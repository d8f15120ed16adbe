package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	apierrors "github.com/ows4444/pluginforge/internal/api/errors"
	"github.com/ows4444/pluginforge/internal/api/middleware"
	"github.com/ows4444/pluginforge/internal/version"
)

// VersionHandlers exposes the version lifecycle engine for operators:
// listing a plugin's version table, driving promote/rollback, and checking
// compatibility between two versions, outside of the automatic promotion that ingestion performs.
type VersionHandlers struct {
	Versions *version.Engine
}

// List handles GET /plugins/{name}/versions.
func (h *VersionHandlers) List(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	writeJSON(w, http.StatusOK, h.Versions.ListVersions(name))
}

// Promote handles POST /plugins/{name}/versions/{version}/promote.
func (h *VersionHandlers) Promote(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Versions.Promote(r.Context(), vars["name"], vars["version"]); err != nil {
		h.writeVersionErr(w, r, err)
		return
	}
	rec, _ := h.Versions.GetActive(vars["name"])
	writeJSON(w, http.StatusOK, rec)
}

type rollbackRequest struct {
	PreserveCurrentVersion bool   `json:"preserveCurrentVersion"`
	Reason                 string `json:"reason"`
}

// Rollback handles POST /plugins/{name}/versions/{version}/rollback.
func (h *VersionHandlers) Rollback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req rollbackRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeErr(w, r, apierrors.ValidationFailed("invalid body: "+err.Error()))
			return
		}
	}
	err := h.Versions.Rollback(r.Context(), vars["name"], vars["version"], version.RollbackOptions{
		PreserveCurrentVersion: req.PreserveCurrentVersion,
		Reason:                 req.Reason,
	})
	if err != nil {
		h.writeVersionErr(w, r, err)
		return
	}
	rec, _ := h.Versions.GetActive(vars["name"])
	writeJSON(w, http.StatusOK, rec)
}

// Compatibility handles GET /plugins/{name}/versions/compatibility?from=&to=.
func (h *VersionHandlers) Compatibility(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		h.writeErr(w, r, apierrors.ValidationFailed("both from and to query parameters are required"))
		return
	}
	report, err := h.Versions.CheckCompatibility(name, from, to)
	if err != nil {
		h.writeVersionErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *VersionHandlers) writeVersionErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, version.ErrVersionNotFound) {
		h.writeErr(w, r, apierrors.ResourceNotFound("plugin version"))
		return
	}
	if errors.Is(err, version.ErrActiveVersionProtected) {
		h.writeErr(w, r, apierrors.ResourceConflict(err.Error()))
		return
	}
	h.writeErr(w, r, apierrors.InternalServerError(err.Error()))
}

func (h *VersionHandlers) writeErr(w http.ResponseWriter, r *http.Request, err *apierrors.APIError) {
	apierrors.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
}
