package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	apierrors "github.com/ows4444/pluginforge/internal/api/errors"
	"github.com/ows4444/pluginforge/internal/api/middleware"
	"github.com/ows4444/pluginforge/internal/trust"
)

// TrustHandlers covers the /plugins/.../trust-* and capability routes.
type TrustHandlers struct {
	Trust *trust.Engine
}

// Levels handles GET /plugins/trust/levels.
func (h *TrustHandlers) Levels(w http.ResponseWriter, r *http.Request) {
	levels := trust.AllLevels()
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// Policy handles GET /plugins/trust/policies/{level}.
func (h *TrustHandlers) Policy(w http.ResponseWriter, r *http.Request) {
	levelName := mux.Vars(r)["level"]
	level, ok := trust.ParseLevel(levelName)
	if !ok {
		h.writeErr(w, r, apierrors.ResourceNotFound("trust level "+levelName))
		return
	}
	policy, ok := h.Trust.Policy(level)
	if !ok {
		h.writeErr(w, r, apierrors.ResourceNotFound("trust policy for "+levelName))
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// GetTrustLevel handles GET /plugins/{name}/trust-level.
func (h *TrustHandlers) GetTrustLevel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	version := r.URL.Query().Get("version")
	level := h.Trust.GetTrustLevel(name, version)
	writeJSON(w, http.StatusOK, map[string]string{"pluginName": name, "trustLevel": level.String()})
}

// trustLevelRequest is PUT /plugins/{name}/trust-level's body.
type trustLevelRequest struct {
	Version    string          `json:"version"`
	TrustLevel string          `json:"trustLevel"`
	AssignedBy string          `json:"assignedBy"`
	Reason     string          `json:"reason"`
	Evidence   []trust.Evidence `json:"evidence"`
}

// SetTrustLevel handles PUT /plugins/{name}/trust-level.
func (h *TrustHandlers) SetTrustLevel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req trustLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, apierrors.ValidationFailed("invalid body: "+err.Error()))
		return
	}
	level, ok := trust.ParseLevel(req.TrustLevel)
	if !ok {
		h.writeErr(w, r, apierrors.ValidationFailed("unknown trustLevel "+req.TrustLevel))
		return
	}
	assignment := &trust.Assignment{
		PluginName: name,
		Version:    req.Version,
		TrustLevel: level,
		AssignedBy: req.AssignedBy,
		Reason:     req.Reason,
		Evidence:   req.Evidence,
	}
	if err := h.Trust.AssignTrustLevel(assignment); err != nil {
		h.writeErr(w, r, apierrors.InsufficientPermissions(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

// capabilityCheckRequest is POST /plugins/{name}/capability-check's body.
type capabilityCheckRequest struct {
	Capability string `json:"capability"`
	Version    string `json:"version"`
}

// CapabilityCheck handles POST /plugins/{name}/capability-check.
func (h *TrustHandlers) CapabilityCheck(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req capabilityCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, apierrors.ValidationFailed("invalid body: "+err.Error()))
		return
	}
	allowed := h.Trust.CanPerformCapability(name, req.Capability, req.Version)
	reason := "capability permitted by the plugin's trust policy"
	if !allowed {
		reason = "capability denied by the plugin's trust policy"
	}
	writeJSON(w, http.StatusOK, trust.CapabilityCheckResult{Allowed: allowed, Reason: reason})
}

// trustViolationRequest is POST /plugins/{name}/trust-violation's body.
type trustViolationRequest struct {
	Version    string         `json:"version"`
	Capability string         `json:"capability"`
	Severity   trust.Severity `json:"severity"`
	Action     trust.Action   `json:"action"`
	Message    string         `json:"message"`
}

// RecordViolation handles POST /plugins/{name}/trust-violation.
func (h *TrustHandlers) RecordViolation(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req trustViolationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, apierrors.ValidationFailed("invalid body: "+err.Error()))
		return
	}
	recorded := h.Trust.RecordViolation(trust.Violation{
		PluginName: name,
		Version:    req.Version,
		Capability: req.Capability,
		Severity:   req.Severity,
		Action:     req.Action,
		Message:    req.Message,
	})
	writeJSON(w, http.StatusOK, recorded)
}

func (h *TrustHandlers) writeErr(w http.ResponseWriter, r *http.Request, err *apierrors.APIError) {
	apierrors.WriteError(w, r, middleware.GetRequestID(r.Context()), err)
}
