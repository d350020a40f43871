// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that
// middleware and handlers agree on names and value types.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// CallerKey contains *Caller
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: middleware.RequireRole, command audit logging
	CallerKey Key = "caller"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logging, error responses
	RequestIDKey Key = "request_id"

	// ImpersonatingKey contains a bool, true when a super admin is viewing
	// a tenant's dashboard through the session layer
	// Set by: middleware.SubscriptionGate
	// Used by: access checks that must not block impersonated sessions
	ImpersonatingKey Key = "impersonating"
)

// Caller identifies the authenticated principal of a request
type Caller struct {
	Name string
	Role string
}

// WithCaller adds the authenticated caller to the context
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// GetCaller retrieves the authenticated caller, or nil
func GetCaller(ctx context.Context) *Caller {
	if caller, ok := ctx.Value(CallerKey).(*Caller); ok {
		return caller
	}
	return nil
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithImpersonating marks the request as an impersonated session
func WithImpersonating(ctx context.Context, impersonating bool) context.Context {
	return context.WithValue(ctx, ImpersonatingKey, impersonating)
}

// IsImpersonating reports whether the request is an impersonated session
func IsImpersonating(ctx context.Context) bool {
	v, _ := ctx.Value(ImpersonatingKey).(bool)
	return v
}
