// Package handlers contains reusable HTTP building blocks for the donor hub API.
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.PingCheck(pool.Ping))
//	checker.AddCheck("redis", handlers.PingCheck(cache.Ping))
//
//	status := checker.Check(ctx)
//
// # API Keys
//
// APIKeyAuth accepts keys in the X-API-Key header or as a Bearer token and
// compares them against bcrypt hashes, so plain keys never sit in config:
//
//	hash, _ := handlers.HashAPIKey("s3cret", 0)
//	auth := handlers.NewAPIKeyAuth("X-API-Key", []string{hash})
//	mux.Handle("/api/", auth.Middleware(api))
//
// # Middleware
//
// Middleware are composed with Chain, outermost first:
//
//	h := handlers.Chain(
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	)(router)
package handlers
