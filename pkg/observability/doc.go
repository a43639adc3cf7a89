// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry setup.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stderr)
//	logger.WithField("group", "best").Info("artifact compiled")
//
// Every line is a JSON object written by log/slog. Components that emit
// diagnostic events attach an "event" field so tests can decode and assert
// on them.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveResolve("cached")
//
// A nil *Metrics is valid and records nothing.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:  true,
//		Endpoint: "otel-collector:4317",
//		Insecure: true,
//	}, logger)
//	defer providers.Shutdown(ctx)
package observability
