package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/souffleur/idgen"
	"github.com/hazyhaar/souffleur/kit"
)

var newRequestID = idgen.Prefixed("req_", idgen.NanoID(12))

// Trace stamps each request with an ID and the transport identity the
// endpoint middlewares read back out of the context: request ID, transport
// "http", remote address and the MCP session when the client sent one.
// The ID is echoed on the X-Request-ID response header; an inbound
// X-Request-ID is honoured so callers can correlate across services.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = newRequestID()
		}

		ctx := kit.WithRequestID(r.Context(), requestID)
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		if sid := r.Header.Get("Mcp-Session-Id"); sid != "" {
			ctx = kit.WithSessionID(ctx, sid)
		}
		w.Header().Set("X-Request-ID", requestID)

		logger := slog.Default().With(
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Info("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
