// Package audit persists one journal row per tool invocation to SQLite.
// Entries are queued on a buffered channel and flushed in batches; when the
// buffer is full the logger falls back to a synchronous insert so no entry
// is dropped. Wire it into the endpoint chain with Middleware.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/souffleur/dbopen"
	"github.com/hazyhaar/souffleur/idgen"
	"github.com/hazyhaar/souffleur/kit"
)

const (
	batchSize       = 32
	flushInterval   = 2 * time.Second
	maxCaptureBytes = 4096
)

// Entry is a single tool invocation record.
type Entry struct {
	EntryID   string
	Timestamp int64 // unix seconds
	Tool      string

	RequestID string
	SessionID string
	Transport string // "stdio", "http"

	Parameters   string // JSON, truncated to maxCaptureBytes
	Result       string // JSON, truncated to maxCaptureBytes
	ErrorKind    string
	ErrorMessage string
	DurationMs   int64

	Status string // "success", "error"
}

// Filter controls Query results.
type Filter struct {
	StartTime *time.Time
	EndTime   *time.Time
	Tool      *string
	Status    *string
	Limit     int    // default 100
	Offset    int
	OrderBy   string // "timestamp", "duration_ms", "tool", "status"
	OrderDir  string // "ASC" or "DESC"
}

// SQLiteLogger persists audit entries asynchronously to an SQLite table.
type SQLiteLogger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Entry
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator sets a custom generator for entry IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// WithBufferSize sets the async queue depth. Default: 256.
func WithBufferSize(n int) Option {
	return func(l *SQLiteLogger) { l.ch = make(chan *Entry, n) }
}

// NewSQLiteLogger creates an async audit logger on db and starts its flush
// goroutine. Call Init once to create the table, Close to drain and stop.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *Entry, 256),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Init creates the audit_log table and its indexes if they do not exist.
func (l *SQLiteLogger) Init() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			entry_id      TEXT PRIMARY KEY,
			timestamp     INTEGER NOT NULL,
			tool          TEXT NOT NULL,
			request_id    TEXT,
			session_id    TEXT,
			transport     TEXT,
			parameters    TEXT,
			result        TEXT,
			error_kind    TEXT,
			error_message TEXT,
			duration_ms   INTEGER,
			status        TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_log(tool);
	`)
	if err != nil {
		return fmt.Errorf("audit: init schema: %w", err)
	}
	return nil
}

// Log inserts an entry synchronously.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	return l.insert(ctx, e)
}

// LogAsync queues an entry for batched persistence.
// Falls back to a synchronous insert when the buffer is full.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	select {
	case l.ch <- e:
	default:
		slog.Warn("audit buffer full, sync fallback", "tool", e.Tool)
		if err := l.insert(context.Background(), e); err != nil {
			slog.Error("audit: sync fallback insert", "error", err)
		}
	}
}

// Query retrieves entries matching the filter, newest first by default.
func (l *SQLiteLogger) Query(ctx context.Context, f *Filter) ([]*Entry, error) {
	q := `SELECT entry_id, timestamp, tool, request_id, session_id, transport,
		parameters, result, error_kind, error_message, duration_ms, status
		FROM audit_log WHERE 1=1`
	var args []any

	if f.StartTime != nil {
		q += " AND timestamp >= ?"
		args = append(args, f.StartTime.Unix())
	}
	if f.EndTime != nil {
		q += " AND timestamp <= ?"
		args = append(args, f.EndTime.Unix())
	}
	if f.Tool != nil {
		q += " AND tool = ?"
		args = append(args, *f.Tool)
	}
	if f.Status != nil {
		q += " AND status = ?"
		args = append(args, *f.Status)
	}

	orderBy := "timestamp"
	if f.OrderBy != "" {
		switch f.OrderBy {
		case "timestamp", "duration_ms", "tool", "status":
			orderBy = f.OrderBy
		default:
			return nil, fmt.Errorf("audit: invalid order_by column: %q", f.OrderBy)
		}
	}
	orderDir := "DESC"
	if f.OrderDir != "" {
		switch strings.ToUpper(f.OrderDir) {
		case "ASC", "DESC":
			orderDir = strings.ToUpper(f.OrderDir)
		default:
			return nil, fmt.Errorf("audit: invalid order_dir: %q", f.OrderDir)
		}
	}
	q += fmt.Sprintf(" ORDER BY %s %s", orderBy, orderDir)

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " LIMIT ?"
	args = append(args, limit)
	if f.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var requestID, sessionID, transport sql.NullString
		var params, result, errKind, errMsg sql.NullString
		var durationMs sql.NullInt64

		if err := rows.Scan(
			&e.EntryID, &e.Timestamp, &e.Tool,
			&requestID, &sessionID, &transport,
			&params, &result, &errKind, &errMsg,
			&durationMs, &e.Status,
		); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}

		e.RequestID = requestID.String
		e.SessionID = sessionID.String
		e.Transport = transport.String
		e.Parameters = params.String
		e.Result = result.String
		e.ErrorKind = errKind.String
		e.ErrorMessage = errMsg.String
		e.DurationMs = durationMs.Int64
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than retentionDays and reports how many.
func (l *SQLiteLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := dbopen.Exec(ctx, l.db, "DELETE FROM audit_log WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine.
func (l *SQLiteLogger) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	if e.Transport == "" {
		e.Transport = "stdio"
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

func (l *SQLiteLogger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]*Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, insertSQL)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, e := range batch {
				if _, err := stmt.ExecContext(ctx, insertArgs(e)...); err != nil {
					return fmt.Errorf("entry %s: %w", e.EntryID, err)
				}
			}
			return nil
		})
		if err != nil {
			slog.Error("audit: batch flush", "error", err, "entries", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			// drain channel
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

const insertSQL = `INSERT INTO audit_log
	(entry_id, timestamp, tool, request_id, session_id, transport,
	 parameters, result, error_kind, error_message, duration_ms, status)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`

func insertArgs(e *Entry) []any {
	return []any{
		e.EntryID, e.Timestamp, e.Tool, e.RequestID, e.SessionID, e.Transport,
		e.Parameters, e.Result, e.ErrorKind, e.ErrorMessage, e.DurationMs, e.Status,
	}
}

func (l *SQLiteLogger) insert(ctx context.Context, e *Entry) error {
	_, err := l.db.ExecContext(ctx, insertSQL, insertArgs(e)...)
	return err
}

// Middleware records one audit entry per endpoint call, async. The tool
// name, request ID, session and transport come from the request context;
// kindOf classifies errors into wire kinds and may be nil.
func Middleware(l *SQLiteLogger, kindOf func(error) string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			e := &Entry{
				Tool:       kit.GetTool(ctx),
				RequestID:  kit.GetRequestID(ctx),
				SessionID:  kit.GetSessionID(ctx),
				Transport:  kit.GetTransport(ctx),
				Parameters: capture(req),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				e.Status = "error"
				e.ErrorMessage = err.Error()
				if kindOf != nil {
					e.ErrorKind = kindOf(err)
				}
			} else {
				e.Status = "success"
				e.Result = capture(resp)
			}
			l.LogAsync(e)

			return resp, err
		}
	}
}

// capture marshals v to JSON, truncated to maxCaptureBytes.
func capture(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	if len(b) > maxCaptureBytes {
		b = b[:maxCaptureBytes]
	}
	return string(b)
}
