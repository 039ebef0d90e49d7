package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/docmerge/idgen"
	"github.com/hazyhaar/docmerge/kit"
)

var newTraceID = idgen.NanoID(12)

// TraceID gives every request a trace id, stored under kit.TraceIDKey and
// echoed in X-Trace-ID, and a per-request logger derived from base,
// stored under LoggerKey. A nil base uses slog.Default(). A client
// X-Request-ID is kept under kit.RequestIDKey.
func TraceID(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := newTraceID()
			ctx := kit.WithTraceID(r.Context(), traceID)
			ctx = kit.WithTransport(ctx, "http")
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
			if id := r.Header.Get("X-Request-ID"); id != "" {
				ctx = kit.WithRequestID(ctx, id)
			}
			w.Header().Set("X-Trace-ID", traceID)

			l := base
			if l == nil {
				l = slog.Default()
			}
			logger := l.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = context.WithValue(ctx, LoggerKey, logger)
			logger.Debug("request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
