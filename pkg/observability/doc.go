// Package observability bundles the operational surface of the service:
// JSON logging, Prometheus metrics, health probes, OpenTelemetry tracing,
// and coordinated shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Info("Server started")
//	logger.WithField("request_id", reqID).Error("Request failed")
//
// Request identity flows through context. FromContext returns a logger
// already carrying the request id, principal id, and store id once the
// middleware has stored them.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/customers", "200").Inc()
//	metrics.ScopeResolutionsTotal.WithLabelValues("store").Inc()
//
// Business metrics:
//
//	metrics.StoresTotal.Set(float64(count))
//	metrics.EscalationsOpen.Set(float64(open))
//
// # Health Probes
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
//
// Postgres failures mark the service unhealthy; Redis failures only
// degrade it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		ServiceName:    "karat-api",
//		ServiceVersion: "v1.0.0",
//		Endpoint:       "otel-collector:4317",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Tracing is off unless OTelConfig.Enabled is set; every constructor in
// this package works without it.
package observability
