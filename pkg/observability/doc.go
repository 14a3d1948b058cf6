// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// tracing, health checks and graceful shutdown for rolesync processes.
//
// # Structured Logging
//
// Logger wraps log/slog with a JSON handler:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stderr)
//	logger.Component("engine").WithField("role_id", 7).Warn("operation failed")
//
// Libraries accept a nil *Logger; OrNop turns it into a discard logger.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	http.Handle("/metrics", metrics.Handler())
//
// All recording methods are safe on a nil *Metrics. WithOTel mirrors every observation
// into OpenTelemetry instruments.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "rolesync",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Health Checks and Shutdown
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("redis", false, observability.RedisCheck(client))
//	observability.RegisterHealthRoutes(mux, checker)
//
//	ctx, stop := observability.SignalContext(context.Background())
//	defer stop()
//	sm := observability.NewShutdownManager(logger, server, 10*time.Second)
//	sm.Register("refresher", ...)
//	err := sm.Wait(ctx)
package observability
