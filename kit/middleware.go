package kit

import (
	"context"
	"log/slog"
	"time"
)

// RequestID ensures every request carries an ID, generating one with gen
// when the transport did not set one.
func RequestID(gen func() string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if GetRequestID(ctx) == "" {
				ctx = WithRequestID(ctx, gen())
			}
			return next(ctx, req)
		}
	}
}

// Logging emits one log line per request: tool, transport, request ID,
// duration and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"tool", GetTool(ctx),
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Error("tool call failed", append(attrs, "error", err)...)
			} else {
				logger.Info("tool call", attrs...)
			}
			return resp, err
		}
	}
}
