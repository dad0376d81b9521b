// Package httpserver runs an http.Server with graceful shutdown.
//
// Server.Run blocks until its context is cancelled or the process receives
// SIGINT or SIGTERM, drains in-flight requests within the shutdown timeout
// and then runs the callbacks registered with WithOnShutdown, which is
// where background workers such as scheduled sweeps are stopped.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithOnShutdown(tracker.Shutdown),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// HealthCheckHandler serves liveness and readiness probes.
package httpserver
