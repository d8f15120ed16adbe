// Package api assembles the registry's HTTP surface: middleware chain,
// route table, and the handlers that adapt requests onto the ingestion
// pipeline, repository, version engine, and trust engine.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ows4444/pluginforge/internal/api/handlers"
	"github.com/ows4444/pluginforge/internal/api/middleware"
)

// RouterConfig wires every collaborator the route table needs, plus the
// middleware toggles and tuning knobs operators set via Config.
type RouterConfig struct {
	Plugins *handlers.PluginHandlers
	Trust   *handlers.TrustHandlers
	Versions *handlers.VersionHandlers

	Logger         *slog.Logger
	HTTPMetrics    *middleware.Metrics
	EnableAuth     bool
	EnableRateLimit bool
	EnableCompression bool
	EnableCORS     bool

	AuthConfig         middleware.AuthConfig
	CORSConfig         middleware.CORSConfig
	RateLimitPerMinute int
	RateLimitBurst     int
}

// NewRouter builds the registry's mux.Router. Middleware is applied in
// order: request ID and logging always, then metrics (when HTTPMetrics is
// set), CORS (when EnableCORS) and compression (when EnableCompression),
// then route-group-specific rate-limit/auth/RBAC when enabled.
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(cfg.Logger))
	if cfg.HTTPMetrics != nil {
		router.Use(middleware.MetricsMiddleware(cfg.HTTPMetrics))
	}
	if cfg.EnableCORS {
		router.Use(middleware.CORSMiddleware(cfg.CORSConfig))
	}
	if cfg.EnableCompression {
		router.Use(middleware.CompressionMiddleware)
	}

	router.HandleFunc("/health", cfg.Plugins.Health).Methods(http.MethodGet)
	router.HandleFunc("/stats", cfg.Plugins.Stats).Methods(http.MethodGet)

	plugins := router.PathPrefix("/plugins").Subrouter()
	plugins.HandleFunc("", cfg.Plugins.List).Methods(http.MethodGet)
	plugins.HandleFunc("/search", cfg.Plugins.Search).Methods(http.MethodGet)
	plugins.HandleFunc("/trust/levels", cfg.Trust.Levels).Methods(http.MethodGet)
	plugins.HandleFunc("/trust/policies/{level}", cfg.Trust.Policy).Methods(http.MethodGet)
	plugins.HandleFunc("/{name}", cfg.Plugins.Get).Methods(http.MethodGet)
	plugins.HandleFunc("/{name}/download", cfg.Plugins.Download).Methods(http.MethodGet)
	plugins.HandleFunc("/{name}/trust-level", cfg.Trust.GetTrustLevel).Methods(http.MethodGet)
	plugins.HandleFunc("/{name}/versions", cfg.Versions.List).Methods(http.MethodGet)
	plugins.HandleFunc("/{name}/versions/compatibility", cfg.Versions.Compatibility).Methods(http.MethodGet)

	// Upload is rate-limited per uploader; everything else mutating is
	// additionally gated behind auth + RBAC.
	uploads := plugins.NewRoute().Subrouter()
	if cfg.EnableRateLimit {
		uploads.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, cfg.RateLimitBurst))
	}
	uploads.HandleFunc("", cfg.Plugins.Upload).Methods(http.MethodPost)

	protected := plugins.NewRoute().Subrouter()
	if cfg.EnableAuth {
		protected.Use(middleware.AuthMiddleware(cfg.AuthConfig))
	}

	admin := protected.NewRoute().Subrouter()
	if cfg.EnableAuth {
		admin.Use(middleware.AdminMiddleware)
	}
	admin.HandleFunc("/{name}", cfg.Plugins.Delete).Methods(http.MethodDelete)
	admin.HandleFunc("/{name}/trust-level", cfg.Trust.SetTrustLevel).Methods(http.MethodPut)

	operator := protected.NewRoute().Subrouter()
	if cfg.EnableAuth {
		operator.Use(middleware.OperatorMiddleware)
	}
	operator.HandleFunc("/{name}/capability-check", cfg.Trust.CapabilityCheck).Methods(http.MethodPost)
	operator.HandleFunc("/{name}/trust-violation", cfg.Trust.RecordViolation).Methods(http.MethodPost)
	operator.HandleFunc("/{name}/versions/{version}/promote", cfg.Versions.Promote).Methods(http.MethodPost)
	operator.HandleFunc("/{name}/versions/{version}/rollback", cfg.Versions.Rollback).Methods(http.MethodPost)

	return router
}
