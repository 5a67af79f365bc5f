// Package shield provides the HTTP middleware applied in front of the
// MCP endpoint when the server runs over HTTP: security headers, body
// limits and request tracing.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxBody(4 * 1024 * 1024))
//	r.Use(shield.Trace)
//
// Or apply the default stack in one call:
//
//	for _, mw := range shield.Stack(4 * 1024 * 1024) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Stack returns the standard middleware stack for the HTTP transport,
// ordered SecurityHeaders, MaxBody, Trace.
func Stack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		Trace,
	}
}
