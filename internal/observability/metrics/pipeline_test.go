package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func scrape(t *testing.T, m *PipelineMetrics) string {
	t.Helper()
	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", res.Code)
	}
	return res.Body.String()
}

func assertSeries(t *testing.T, body string, series ...string) {
	t.Helper()
	for _, want := range series {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q\n%s", want, body)
		}
	}
}

func TestStageLifecycleCounters(t *testing.T) {
	m := NewPipelineMetrics("etl-test")

	m.StageStarted("load")
	m.StageFinished("load", domain.StageFailed, 3*time.Second)
	m.StageFinished("transform", domain.StageSkipped, 0)
	m.RunFinished(domain.RunFailed)

	assertSeries(t, scrape(t, m),
		`etl_stage_in_flight{service="etl-test"} 0`,
		`etl_stage_runs_total{service="etl-test",stage="load",status="failed"} 1`,
		`etl_stage_runs_total{service="etl-test",stage="transform",status="skipped"} 1`,
		`etl_stage_duration_seconds_count{service="etl-test",stage="load",status="failed"} 1`,
		`etl_pipeline_runs_total{service="etl-test",status="failed"} 1`,
	)
}

func TestRowsAndSkipsIgnoreZero(t *testing.T) {
	m := NewPipelineMetrics("etl-test")
	m.RowsWritten("raw_telegram_images", 0)
	m.RowsWritten("raw_telegram_messages", 4)
	m.RecordsSkipped("load", "invalid_key", 2)

	body := scrape(t, m)
	assertSeries(t, body,
		`etl_rows_written_total{service="etl-test",table="raw_telegram_messages"} 4`,
		`etl_records_skipped_total{reason="invalid_key",service="etl-test",stage="load"} 2`,
	)
	if strings.Contains(body, `table="raw_telegram_images"`) {
		t.Fatal("zero increments must not create a series")
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewPipelineMetrics("etl-test")
	m.TriggerObserved(domain.TriggerManual, "skipped")

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/runs/abc/secret", nil))

	assertSeries(t, scrape(t, m),
		`etl_http_requests_total{method="POST",path="/v1/runs",service="etl-test",status="409"} 1`,
		`etl_http_requests_total{method="GET",path="other",service="etl-test",status="409"} 1`,
		`etl_triggers_total{result="skipped",service="etl-test",source="manual"} 1`,
	)
}
