// Package httputil provides the JSON response and request helpers and the
// generic HTTP middleware shared by the billing API. It has no dependency on
// the billing packages; callers map their own errors to an APIError and
// write it with WriteAPIError.
//
// Middleware:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
