package kit

import (
	"context"
	"sync"
	"time"
)

// Stats aggregates per-tool call counters.
type Stats struct {
	mu    sync.Mutex
	tools map[string]*ToolStats
}

// ToolStats is one tool's cumulative counters.
type ToolStats struct {
	Calls   int64 `json:"calls"`
	Errors  int64 `json:"errors"`
	TotalMs int64 `json:"total_ms"`
}

func NewStats() *Stats {
	return &Stats{tools: make(map[string]*ToolStats)}
}

func (st *Stats) record(tool string, d time.Duration, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ts, ok := st.tools[tool]
	if !ok {
		ts = &ToolStats{}
		st.tools[tool] = ts
	}
	ts.Calls++
	if err != nil {
		ts.Errors++
	}
	ts.TotalMs += d.Milliseconds()
}

// Snapshot copies the per-tool counters.
func (st *Stats) Snapshot() map[string]ToolStats {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[string]ToolStats, len(st.tools))
	for name, ts := range st.tools {
		out[name] = *ts
	}
	return out
}

// Instrument records call count, error count and total latency per tool.
func Instrument(st *Stats) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			st.record(GetTool(ctx), time.Since(start), err)
			return resp, err
		}
	}
}
