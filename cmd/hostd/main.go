// Command hostd runs the plugin host: dependency-ordered discovery and
// loading of plugins from disk, driven by the registry's trust policy.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ows4444/pluginforge/internal/config"
	"github.com/ows4444/pluginforge/internal/events"
	"github.com/ows4444/pluginforge/internal/host/orchestrator"
	"github.com/ows4444/pluginforge/internal/host/process"
	"github.com/ows4444/pluginforge/internal/host/resolver"
	"github.com/ows4444/pluginforge/internal/host/state"
	"github.com/ows4444/pluginforge/internal/host/strategy"
	"github.com/ows4444/pluginforge/internal/host/tracker"
	"github.com/ows4444/pluginforge/internal/trust"
	"github.com/ows4444/pluginforge/pkg/logger"
)

const serviceName = "hostd"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Plugin host daemon: dependency-ordered discovery and loading",
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
		return fmt.Errorf("hostd: %w", err)
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
	log.Info("starting plugin host", "environment", cfg.Environment, "plugins_dir", cfg.Host.PluginsDir)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	bus := events.New(log, events.NewMetrics(reg))
	bus.Start(cmd.Context())
	trustEngine := trust.New(bus, log, trust.NewMetrics(reg))

	states := state.New(0, state.NewMetrics(reg))

	resolve, err := resolver.New(resolver.Config{
		States:  states,
		Bus:     bus,
		Logger:  log,
		Metrics: resolver.NewMetrics(reg),

		DefaultMaxWait:         cfg.Host.DependencyWaitTimeout,
		GracefulTimeoutEnabled: true,
	})
	if err != nil {
		return fmt.Errorf("hostd: resolver: %w", err)
	}

	track := tracker.New(tracker.Config{
		Logger:                  log,
		Metrics:                 tracker.NewMetrics(reg),
		MemoryPressureThreshold: cfg.Host.MemoryPressureThreshold,
	})
	track.Start(cmd.Context())
	defer track.Stop()

	host := &process.Host{Logger: log}

	orch, err := orchestrator.New(orchestrator.Config{
		PluginsDir:                    cfg.Host.PluginsDir,
		StrategyKind:                  strategy.Kind(cfg.Host.Strategy),
		MaxConcurrent:                 cfg.Host.BatchSize,
		LoadTimeout:                   cfg.Host.LoadTimeout,
		AttemptRecoveryOnFatalFailure: true,

		Host:     host,
		States:   states,
		Resolver: resolve,
		Trust:    trustEngine,
		Tracker:  track,
		Bus:      bus,

		Logger:          log,
		Metrics:         orchestrator.NewMetrics(reg),
		StrategyMetrics: strategy.NewMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("hostd: orchestrator: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	report, err := orch.ScanAndLoadAll(ctx)
	if err != nil {
		log.Error("initial scan failed", "error", err)
	} else {
		log.Info("initial scan complete", "loaded", len(report.Succeeded), "failed", len(report.Failed))
	}

	var server *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok","loaded":` + fmt.Sprint(len(orch.Active())) + `}`))
		})
		server = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: mux,
		}
		go func() {
			log.Info("host metrics server listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("host metrics server failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down plugin host")

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("host metrics server forced to shutdown", "error", err)
		}
	}

	log.Info("plugin host exited")
	return nil
}
