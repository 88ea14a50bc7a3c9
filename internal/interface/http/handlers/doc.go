// Package handlers contains the reusable HTTP building blocks of the API:
// the composite health checker and the staff API key middleware, plus a few
// header and body-size middlewares.
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("postgres", handlers.PingCheck(conn))
//	checker.AddReadinessCheck("redis", handlers.PingCheck(cache))
//
//	auth := handlers.NewAPIKeyAuth("X-API-Key", bcryptHash, nil)
//	api := handlers.ChainHandler(mux, auth.Middleware, handlers.NoCacheMiddleware)
package handlers
