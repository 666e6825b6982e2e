package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func TestNextAfterUsesConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("Africa/Addis_Ababa")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s, err := New("0 2 * * *", loc, nil, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// 23:30 UTC on the 13th is 02:30 local on the 14th, past today's firing.
	next := s.NextAfter(time.Date(2025, 7, 13, 23, 30, 0, 0, time.UTC))
	want := time.Date(2025, 7, 15, 2, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("NextAfter() = %s, want %s", next, want)
	}

	next = s.NextAfter(time.Date(2025, 7, 13, 22, 0, 0, 0, time.UTC))
	if want := time.Date(2025, 7, 14, 2, 0, 0, 0, loc); !next.Equal(want) {
		t.Fatalf("NextAfter() = %s, want %s", next, want)
	}
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	for _, spec := range []string{"", "0 2 * *", "61 2 * * *", "0 0 2 * * *"} {
		if _, err := New(spec, time.UTC, nil, discardLogger()); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("New(%q) expected ErrInvalidInput, got %v", spec, err)
		}
	}
	if _, err := New("@daily", time.UTC, nil, discardLogger()); err != nil {
		t.Fatalf("descriptor rejected: %v", err)
	}
}

func TestFireTriggersScheduledRun(t *testing.T) {
	launcher := newBlockingLauncher()
	close(launcher.release)
	gate := NewGate(launcher, OverlapSkip, nil, discardLogger())
	s, err := New("*/5 * * * *", time.UTC, gate, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.fire(context.Background())

	if source := waitEntered(t, launcher); source != domain.TriggerSchedule {
		t.Fatalf("expected schedule trigger, got %q", source)
	}
	if run, ok := gate.LastRun(); !ok || run.Trigger != domain.TriggerSchedule {
		t.Fatalf("unexpected last run %+v", run)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	gate := NewGate(newBlockingLauncher(), OverlapSkip, nil, discardLogger())
	s, err := New("0 2 * * *", time.UTC, gate, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
