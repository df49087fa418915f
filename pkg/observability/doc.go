// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup, health checks and graceful shutdown.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).WithError(err).Error("Failed to resolve permissions")
//
// FromContext adds the request ID, user ID and, when a span is active, the
// trace and span IDs.
//
// # Metrics
//
// Metrics owns its registry. It implements rbac.DecisionRecorder and
// storage.OperationRecorder, so it is passed straight to those packages.
//
//	metrics := observability.NewMetrics()
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", metrics.Handler())
//
// # Health
//
//	checker := observability.NewHealthChecker(sqlDB, redisClient, version)
//	checker.AddCheck("storage_s3", false, s3Backend.HealthCheck)
//	checker.RegisterRoutes(router)
package observability
