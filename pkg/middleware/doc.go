// Package middleware provides the authentication, authorization, rate
// limiting and subscription gating middleware of the billing API.
//
// Authenticator resolves "Authorization: Bearer <token>" to a caller and
// role; RequireRole restricts a route to super_admin or service callers:
//
//	auth := middleware.NewAuthenticator(tokens)
//	admin := router.PathPrefix("/admin").Subrouter()
//	admin.Use(auth.Handler, middleware.RequireRole(middleware.RoleSuperAdmin))
//
// SubscriptionGate answers 402 (or 303 to the blocked page for browsers)
// when a tenant's subscription does not grant access, and is bypassed for
// impersonated sessions marked with X-Impersonating: true.
//
// RateLimit throttles callers with either the in-process token bucket
// RateLimiter or the Redis-backed RedisRateLimiter shared by all replicas.
package middleware
