package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/prism/pkg/cli"
	"github.com/platinummonkey/prism/pkg/config"
	"github.com/platinummonkey/prism/pkg/janitor"
	"github.com/platinummonkey/prism/pkg/observability"
)

var runOnce = flag.Bool("run-once", false, "Prune once and exit")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "prism-janitor")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Janitor failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	rt, err := cli.NewRuntime(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	j := janitor.New(rt.Orchestrator, logger, cfg.Janitor.PruneMaxIdle)
	if *runOnce {
		defer rt.Close()
		defer providers.Shutdown(ctx)
		_, err := j.RunOnce(ctx)
		return err
	}
	if err := j.Schedule(cfg.Janitor.PruneSchedule); err != nil {
		return err
	}

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion)
	rt.RegisterHealthChecks(health)

	mux := http.NewServeMux()
	observability.RegisterMetricsEndpoint(mux, registry)
	mux.HandleFunc("/health/live", health.Liveness)
	mux.HandleFunc("/health/ready", health.Readiness)
	server := &http.Server{
		Addr:    cfg.Janitor.MetricsAddr,
		Handler: observability.HTTPMetricsMiddleware(metrics)(mux),
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Janitor.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error { return rt.Close() })
	shutdown.RegisterShutdownFunc(providers.Shutdown)
	shutdown.RegisterShutdownFunc(j.Stop)

	go func() {
		logger.WithField("addr", server.Addr).Info("Serving metrics and health")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
		}
	}()

	j.Start()
	logger.WithFields(map[string]interface{}{
		"schedule": cfg.Janitor.PruneSchedule,
		"max_idle": cfg.Janitor.PruneMaxIdle.String(),
	}).Info("Prism janitor started")

	return shutdown.WaitForShutdown(ctx)
}
