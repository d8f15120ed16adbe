// Command registryd runs the plugin registry HTTP service: bundle
// ingestion, trust and version management, and the public query surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	apihttp "github.com/ows4444/pluginforge/internal/api"
	"github.com/ows4444/pluginforge/internal/api/handlers"
	"github.com/ows4444/pluginforge/internal/api/middleware"
	"github.com/ows4444/pluginforge/internal/cache"
	"github.com/ows4444/pluginforge/internal/config"
	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/ingest"
	"github.com/ows4444/pluginforge/internal/optimize"
	"github.com/ows4444/pluginforge/internal/registry"
	"github.com/ows4444/pluginforge/internal/registry/blob"
	"github.com/ows4444/pluginforge/internal/registry/memory"
	"github.com/ows4444/pluginforge/internal/registry/postgres"
	"github.com/ows4444/pluginforge/internal/signature"
	"github.com/ows4444/pluginforge/internal/trust"
	"github.com/ows4444/pluginforge/internal/validate"
	"github.com/ows4444/pluginforge/internal/version"
	"github.com/ows4444/pluginforge/pkg/logger"
)

const serviceName = "registryd"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Plugin registry ingestion and query service",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML/JSON config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("registryd: %w", err)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	log.Info("starting registry service", "environment", cfg.Environment)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	bus := events.New(log, events.NewMetrics(reg))
	bus.Start(cmd.Context())

	repository, closeRepo, err := buildRepository(cmd.Context(), cfg, log, reg)
	if err != nil {
		return fmt.Errorf("registryd: %w", err)
	}
	defer closeRepo()

	blobStore, err := blob.New(cfg.Storage.Path, log)
	if err != nil {
		return fmt.Errorf("registryd: blob store: %w", err)
	}

	validationCache, err := cache.New(cache.Config{
		TTL:         cfg.Validation.CacheTTL,
		MaxSize:     cfg.Validation.CacheSize,
		SweepPeriod: cache.DefaultConfig().SweepPeriod,
	}, log, cache.NewMetrics(reg))
	if err != nil {
		return fmt.Errorf("registryd: validation cache: %w", err)
	}

	validator := validate.New(validationCache, validate.Options{
		RegexTimeout:   time.Duration(cfg.Validation.RegexTimeoutMs) * time.Millisecond,
		MaxContentSize: cfg.Validation.MaxContentSize,
		MaxIterations:  cfg.Validation.MaxIterations,
	}, log)

	keyRegistry, err := signature.NewRegistry(cfg.Signature.TrustedKeysJSON)
	if err != nil {
		return fmt.Errorf("registryd: trusted key registry: %w", err)
	}
	verifier := signature.New(keyRegistry, signature.Policy{
		RequireSignatures: cfg.Signature.RequireSignatures,
		AllowUnsigned:     cfg.Signature.AllowUnsigned,
	})

	trustEngine := trust.New(bus, log, trust.NewMetrics(reg))
	versionEngine := version.New(repository, bus, log, version.NewMetrics(reg))

	orchestrator, err := ingest.New(ingest.Config{
		Validator:           validator,
		Verifier:            verifier,
		Trust:               trustEngine,
		Versions:            versionEngine,
		Repository:          repository,
		Blobs:               blobStore,
		Bus:                 bus,
		Logger:              log,
		Metrics:             ingest.NewMetrics(reg),
		MaxFileSize:         cfg.Validation.MaxPluginSize,
		OptimizationEnabled: cfg.Optimization.Enabled,
		OptimizeOptions: optimize.Options{
			CompressionLevel: cfg.Optimization.Compression,
			Algorithm:        cfg.Optimization.Algorithm,
		},
		AssignedBy: serviceName,
	})
	if err != nil {
		return fmt.Errorf("registryd: ingest orchestrator: %w", err)
	}

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Plugins: &handlers.PluginHandlers{
			Ingest:        orchestrator,
			Repository:    repository,
			Blobs:         blobStore,
			Versions:      versionEngine,
			Trust:         trustEngine,
			Logger:        log,
			MaxUploadSize: cfg.Validation.MaxPluginSize,
		},
		Trust:             &handlers.TrustHandlers{Trust: trustEngine},
		Versions:          &handlers.VersionHandlers{Versions: versionEngine},
		Logger:             log,
		HTTPMetrics:        middleware.NewMetrics(reg),
		EnableCORS:         true,
		EnableCompression:  true,
		EnableRateLimit:    cfg.RateLimit.Enabled,
		RateLimitPerMinute: cfg.RateLimit.RequestsPerMinute,
		RateLimitBurst:     cfg.RateLimit.Burst,
		EnableAuth:         false,
	})

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down registry service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		return err
	}
	log.Info("registry service exited")
	return nil
}

// buildRepository selects the memory or postgres repository backend per
// cfg.Storage.RepoBackend. The returned close func is always safe to call.
func buildRepository(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (registry.Repository, func(), error) {
	switch cfg.Storage.RepoBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("postgres pool: %w", err)
		}
		store := postgres.New(pool, log, reg)
		if err := store.Migrate(ctx); err != nil {
			log.Warn("postgres migration failed, continuing without it", "error", err)
		}
		return store, pool.Close, nil
	default:
		return memory.New(log), func() {}, nil
	}
}
