// Package logging owns the process-wide slog logger and the trace ID that
// follows a generate call from the HTTP edge down to provider attempts.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// RequestIDHeader carries the trace ID in and out of the HTTP server.
const RequestIDHeader = "X-Request-ID"

// maxTraceIDLen bounds client-supplied IDs before they reach log lines.
const maxTraceIDLen = 64

type ctxKey struct{}

// Logger is the default logger used when none is injected.
var Logger *slog.Logger

func init() {
	Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Setup replaces Logger with a stdout handler. See SetupWriter.
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter replaces Logger (and the slog default) with a handler writing
// to w. format "text" selects the text handler; anything else is JSON.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	Logger = slog.New(h)
	slog.SetDefault(Logger)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewTraceID returns 32 random hex characters.
func NewTraceID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// WithTraceID returns a copy of ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// TraceIDFromContext returns "" when ctx carries no trace ID.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext is With(ctx, Logger).
func FromContext(ctx context.Context) *slog.Logger {
	return With(ctx, Logger)
}

// With annotates logger with the trace_id from ctx. A nil logger falls back
// to Logger.
func With(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = Logger
	}
	if id := TraceIDFromContext(ctx); id != "" {
		return logger.With("trace_id", id)
	}
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Middleware attaches a trace ID to the request context and echoes it in
// the response. A well-formed incoming X-Request-ID is reused.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validTraceID(id) {
			id = NewTraceID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithTraceID(r.Context(), id)))
	})
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
