// Package kit wires tool endpoints to transports. An Endpoint is the
// transport-neutral unit of work; middlewares wrap endpoints with request
// identity, logging and rate limiting, and transport adapters decode
// protocol requests into plain values.
package kit

import "context"

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares into one. The first middleware is the
// outermost: Chain(a, b, c)(e) runs a before b before c before e.
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}
