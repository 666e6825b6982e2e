package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/ports"
)

const healthTimeout = 3 * time.Second

// RunStarter admits manual runs without waiting for them and returns the
// run ID assigned to the accepted trigger.
type RunStarter interface {
	Start(source domain.TriggerSource) (string, error)
	LastRun() (*domain.PipelineRun, bool)
	Running() bool
}

type Options struct {
	Metrics           http.Handler
	MetricsMiddleware func(http.Handler) http.Handler
	Logger            *slog.Logger
}

// Router serves the operator surface of the scheduler daemon.
type Router struct {
	runs      RunStarter
	inspector ports.StoreInspector
	opts      Options
	logger    *slog.Logger
}

func NewRouter(runs RunStarter, inspector ports.StoreInspector, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{runs: runs, inspector: inspector, opts: opts, logger: logger}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/runs", rt.triggerRun)
	mux.HandleFunc("/v1/runs/last", rt.lastRun)
	mux.HandleFunc("/v1/store/stats", rt.storeStats)
	if rt.opts.Metrics != nil {
		mux.Handle("/metrics", rt.opts.Metrics)
	}

	var handler http.Handler = mux
	if rt.opts.MetricsMiddleware != nil {
		handler = rt.opts.MetricsMiddleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := rt.inspector.Ping(ctx); err != nil {
		rt.logger.Warn("health_check_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "run_in_progress": rt.runs.Running()})
}

func (rt *Router) triggerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	annotate(r, "trigger", domain.TriggerManual)
	runID, err := rt.runs.Start(domain.TriggerManual)
	if err != nil {
		annotate(r, "error", err.Error())
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	annotate(r, "run_id", runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "run_id": runID})
}

func (rt *Router) lastRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	run, ok := rt.runs.LastRun()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run has finished yet"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) storeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	stats, err := rt.inspector.Stats(r.Context())
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
