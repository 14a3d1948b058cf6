// Package httputil provides the JSON responses, query parsing and middleware shared by
// the HTTP endpoints of long-running rolesync processes.
//
// # Overview
//
// The watch command serves /metrics, /health and /effective. Its handlers share the
// helpers of this package so every error body has the same shape.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "unknown system role")
//	httputil.WriteBadGateway(w, rbac.UserMessage(err))
//
// Error bodies look like {"detail": "..."}.
//
// # Query Parameters
//
//	id, ok := httputil.ParseQueryInt64OrError(w, r, "user_id", 0)
//	if !ok {
//		return // 400 already written
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(mux)
package httputil
