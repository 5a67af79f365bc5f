package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/souffleur/audit"
	"github.com/hazyhaar/souffleur/dbopen"
	"github.com/hazyhaar/souffleur/deckcache"
	"github.com/hazyhaar/souffleur/editor"
	"github.com/hazyhaar/souffleur/idgen"
	"github.com/hazyhaar/souffleur/kit"
	"github.com/hazyhaar/souffleur/shield"
)

const version = "1.0.0"

// fileConfig is the optional souffleur.yaml. Environment variables
// override the file for transport, port, log level, audit DB and
// workspace roots.
type fileConfig struct {
	Transport          string   `yaml:"transport"` // "stdio" or "http"
	Port               string   `yaml:"port"`
	LogLevel           string   `yaml:"log_level"`
	AuditDB            string   `yaml:"audit_db"`
	AuditRetentionDays int      `yaml:"audit_retention_days"`
	WorkspaceRoots     []string `yaml:"workspace_roots"`
	AllowedExtensions  []string `yaml:"allowed_extensions"`
	MaxFileSize        int64    `yaml:"max_file_size"`
	MaxTextLen         int      `yaml:"max_text_len"`
	CacheEntries       int      `yaml:"cache_entries"`
	CacheTTL           string   `yaml:"cache_ttl"`
	RateLimit          int      `yaml:"rate_limit"` // calls per tool per window, 0 disables
	RateWindow         string   `yaml:"rate_window"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig(env("SOUFFLEUR_CONFIG", "souffleur.yaml"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	transport := env("MCP_TRANSPORT", pick(cfg.Transport, "stdio"))
	port := env("PORT", pick(cfg.Port, "8090"))
	logLevel := env("LOG_LEVEL", pick(cfg.LogLevel, "info"))
	auditPath := env("AUDIT_DB", cfg.AuditDB)

	roots := cfg.WorkspaceRoots
	if v := os.Getenv("WORKSPACE_ROOTS"); v != "" {
		roots = strings.Split(v, string(os.PathListSeparator))
	}

	// Logging. Stderr always: on the stdio transport stdout carries JSON-RPC.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Audit journal (optional).
	var auditLogger *audit.SQLiteLogger
	if auditPath != "" {
		auditDB, err := dbopen.Open(auditPath, dbopen.WithMkdirAll())
		if err != nil {
			slog.Error("audit db", "error", err)
			os.Exit(1)
		}
		defer auditDB.Close()

		auditLogger = audit.NewSQLiteLogger(auditDB)
		if err := auditLogger.Init(); err != nil {
			slog.Error("audit init", "error", err)
			os.Exit(1)
		}
		defer auditLogger.Close()

		if cfg.AuditRetentionDays > 0 {
			if n, err := auditLogger.Cleanup(ctx, cfg.AuditRetentionDays); err != nil {
				slog.Warn("audit cleanup", "error", err)
			} else if n > 0 {
				slog.Info("audit cleanup", "deleted", n, "retention_days", cfg.AuditRetentionDays)
			}
		}
	}

	// Deck cache + editor service.
	cache := deckcache.New(deckcache.Config{
		MaxEntries: cfg.CacheEntries,
		TTL:        duration(cfg.CacheTTL, 0),
		Logger:     logger,
	})

	var svcOpts []editor.ServiceOption
	if auditLogger != nil {
		svcOpts = append(svcOpts, editor.WithAuditEnabled())
	}
	svc, err := editor.New(cache, &editor.Config{
		MaxFileSize:       cfg.MaxFileSize,
		MaxTextLen:        cfg.MaxTextLen,
		AllowedExtensions: cfg.AllowedExtensions,
		WorkspaceRoots:    roots,
	}, logger, svcOpts...)
	if err != nil {
		slog.Error("editor service", "error", err)
		os.Exit(1)
	}

	// Endpoint middlewares, first one outermost. Audit sits outside the
	// rate limiter so rejected calls are journaled too.
	stats := kit.NewStats()
	mws := []kit.Middleware{
		kit.RequestID(idgen.Prefixed("req_", idgen.Default)),
		kit.Logging(logger),
	}
	if auditLogger != nil {
		mws = append(mws, audit.Middleware(auditLogger, kindOf))
	}
	if cfg.RateLimit > 0 {
		rl := kit.NewRateLimiter(cfg.RateLimit, duration(cfg.RateWindow, time.Minute))
		mws = append(mws, rl.Middleware())
	}
	mws = append(mws, kit.Instrument(stats))

	// MCP server.
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "souffleur",
		Version: version,
	}, nil)
	svc.RegisterMCP(srv, mws...)

	switch transport {
	case "stdio":
		slog.Info("souffleur starting", "transport", "stdio", "version", version)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("stdio transport", "error", err)
			os.Exit(1)
		}

	case "http":
		maxBody := cfg.MaxBodyBytes
		if maxBody <= 0 {
			maxBody = 8 << 20
		}

		r := chi.NewRouter()
		for _, mw := range shield.Stack(maxBody) {
			r.Use(mw)
		}
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, svc.Health())
		})
		r.Get("/statsz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, map[string]any{
				"operations": svc.Stats(),
				"tools":      stats.Snapshot(),
			})
		})
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return srv
		}, nil))

		// No WriteTimeout: streamable MCP responses stay open.
		httpSrv := &http.Server{
			Addr:              ":" + port,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		go func() {
			slog.Info("souffleur starting", "transport", "http", "port", port, "version", version)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("server error", "error", err)
				os.Exit(1)
			}
		}()

		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}

	default:
		slog.Error("unknown transport", "transport", transport)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// kindOf classifies endpoint errors into the wire kinds the audit
// journal records.
func kindOf(err error) string {
	if errors.Is(err, kit.ErrRateLimited) {
		return editor.KindRateLimited
	}
	return editor.Kind(err)
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func pick(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("invalid duration, using default", "value", s, "default", def)
		return def
	}
	return d
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
