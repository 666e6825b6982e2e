package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

// PipelineMetrics records run, stage, row and trigger counters for one
// service. It satisfies the runner's recorder and the gate's trigger
// recorder.
type PipelineMetrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	stageTotal     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageInFlight  prometheus.Gauge
	rowsWritten    *prometheus.CounterVec
	recordsSkipped *prometheus.CounterVec
	triggersTotal  *prometheus.CounterVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "etl",
			Name:        "pipeline_runs_total",
			Help:        "Total finished pipeline runs by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "etl",
			Name:        "stage_runs_total",
			Help:        "Total stage outcomes by stage and status.",
			ConstLabels: constLabels,
		},
		[]string{"stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "etl",
			Name:        "stage_duration_seconds",
			Help:        "Stage execution duration in seconds.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			ConstLabels: constLabels,
		},
		[]string{"stage", "status"},
	)
	stageInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "etl",
			Name:        "stage_in_flight",
			Help:        "Number of stages currently running.",
			ConstLabels: constLabels,
		},
	)
	rowsWritten := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "etl",
			Name:        "rows_written_total",
			Help:        "Rows inserted into the store by table.",
			ConstLabels: constLabels,
		},
		[]string{"table"},
	)
	recordsSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "etl",
			Name:        "records_skipped_total",
			Help:        "Input records skipped by stage and reason.",
			ConstLabels: constLabels,
		},
		[]string{"stage", "reason"},
	)
	triggersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "etl",
			Name:        "triggers_total",
			Help:        "Pipeline triggers by source and result.",
			ConstLabels: constLabels,
		},
		[]string{"source", "result"},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "etl",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total ops HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "etl",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Ops HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		runsTotal,
		stageTotal,
		stageDuration,
		stageInFlight,
		rowsWritten,
		recordsSkipped,
		triggersTotal,
		requestTotal,
		requestDuration,
	)

	return &PipelineMetrics{
		registry:        registry,
		runsTotal:       runsTotal,
		stageTotal:      stageTotal,
		stageDuration:   stageDuration,
		stageInFlight:   stageInFlight,
		rowsWritten:     rowsWritten,
		recordsSkipped:  recordsSkipped,
		triggersTotal:   triggersTotal,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StageStarted(string) {
	m.stageInFlight.Inc()
}

// StageFinished is also called for skipped stages, which never started.
func (m *PipelineMetrics) StageFinished(stage string, status domain.StageStatus, duration time.Duration) {
	if status != domain.StageSkipped {
		m.stageInFlight.Dec()
		m.stageDuration.WithLabelValues(stage, string(status)).Observe(duration.Seconds())
	}
	m.stageTotal.WithLabelValues(stage, string(status)).Inc()
}

func (m *PipelineMetrics) RunFinished(status domain.RunStatus) {
	m.runsTotal.WithLabelValues(string(status)).Inc()
}

func (m *PipelineMetrics) TriggerObserved(source domain.TriggerSource, result string) {
	m.triggersTotal.WithLabelValues(string(source), result).Inc()
}

func (m *PipelineMetrics) RowsWritten(table string, n int64) {
	if n <= 0 {
		return
	}
	m.rowsWritten.WithLabelValues(table).Add(float64(n))
}

func (m *PipelineMetrics) RecordsSkipped(stage, reason string, n int) {
	if n <= 0 {
		return
	}
	m.recordsSkipped.WithLabelValues(stage, reason).Add(float64(n))
}
