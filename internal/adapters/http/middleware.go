package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type requestContextKey struct{}

// requestInfo travels with the request so handlers can add attributes to
// its access log line.
type requestInfo struct {
	id    string
	attrs []any
}

func infoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestContextKey{}).(*requestInfo)
	return info
}

func requestIDFromContext(ctx context.Context) string {
	if info := infoFromContext(ctx); info != nil {
		return info.id
	}
	return ""
}

// annotate adds key/value attributes to the access log line of r.
func annotate(r *http.Request, attrs ...any) {
	if info := infoFromContext(r.Context()); info != nil {
		info.attrs = append(info.attrs, attrs...)
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		info := &requestInfo{id: id}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestContextKey{}, info)))
	})
}

// accessLogMiddleware writes one line per request. Successful probes of
// /healthz and /metrics log at debug so scrapers do not flood the log.
func accessLogMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		attrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if info := infoFromContext(r.Context()); info != nil {
			attrs = append(attrs, info.attrs...)
		}
		logger.Log(r.Context(), accessLogLevel(r.URL.Path, recorder.statusCode), "http_request", attrs...)
	})
}

func accessLogLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case path == "/healthz" || path == "/metrics":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
