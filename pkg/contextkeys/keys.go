// Package contextkeys provides centralized context key definitions
//
// All context keys used across rolesync are defined here so that packages agree on them
// without importing each other.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/rolesync/pkg/contextkeys"
//	ctx = contextkeys.WithRequestID(ctx, id)
//	id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string
	// Set by: httputil.RequestIDMiddleware, or callers of observability.WithRequestID
	// Used by: Logger, authority client (forwarded as X-Request-ID)
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware, async.SafeGo callers
	// Used by: Handlers and goroutines that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

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

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// Logger returns the value stored under LoggerKey, or nil.
func Logger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}
