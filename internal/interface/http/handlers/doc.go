// Package handlers contains HTTP building blocks shared by the API server:
// health checking and reusable middleware.
//
// # Health Checks
//
// Checks run in parallel, each under its own timeout. Critical checks gate
// readiness; optional ones only mark the service as degraded:
//
//	checker := handlers.NewCompositeHealthChecker("0.1.0")
//	checker.AddCheck("database", handlers.NewPingCheck(store))
//	checker.AddOptionalCheck("cache", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
// Middlewares compose with Chain, outermost first:
//
//	h := handlers.Chain(
//	    handlers.SecurityHeaders,
//	    handlers.RequestSizeLimit(64<<10),
//	    handlers.RequestTimeout(10*time.Second),
//	)(mux)
package handlers
