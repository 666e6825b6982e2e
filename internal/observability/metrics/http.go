package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// Middleware counts ops HTTP requests. Unknown paths collapse into one label.
func (m *PipelineMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch path {
	case "/healthz", "/metrics", "/v1/runs", "/v1/runs/last", "/v1/store/stats":
		return path
	default:
		return "other"
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
