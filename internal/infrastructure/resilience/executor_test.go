package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func quietExecutor(cfg Config) *Executor {
	return NewExecutor(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fastRetries(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func TestExecuteRetriesNetworkFault(t *testing.T) {
	exec := quietExecutor(fastRetries(3))

	attempts := 0
	err := exec.Execute(context.Background(), "labeler.post", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteStopsOnPermanentFailure(t *testing.T) {
	exec := quietExecutor(fastRetries(3))

	attempts := 0
	errBadRequest := errors.New("bad request")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errBadRequest
	}, nil)
	if !errors.Is(err, errBadRequest) || attempts != 1 {
		t.Fatalf("expected one attempt with permanent error, got %d, %v", attempts, err)
	}
}

func TestCallReturnsValue(t *testing.T) {
	exec := quietExecutor(fastRetries(2))
	got, err := Call(context.Background(), exec, "op", func(context.Context) (int, error) {
		return 42, nil
	}, nil)
	if err != nil || got != 42 {
		t.Fatalf("Call() = %d, %v", got, err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	cfg := fastRetries(1)
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	exec := quietExecutor(cfg)

	errDown := errors.New("down")
	for i := 0; i < 2; i++ {
		if err := exec.Execute(context.Background(), "op", func(context.Context) error { return errDown }, nil); !errors.Is(err, errDown) {
			t.Fatalf("iteration %d: expected errDown, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatal("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !domain.IsKind(WrapTemporary("op", err, nil), domain.ErrTemporary) {
		t.Fatal("open circuit must surface as temporary")
	}
}

func TestClassifyTransport(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"canceled", context.Canceled, ErrorClassification{}},
		{"network", &net.OpError{Op: "read", Err: errors.New("reset")}, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"store connection", domain.WrapError(domain.ErrConnection, "ping", errors.New("refused")), ErrorClassification{Retryable: true, RecordFailure: true}},
		{"plain", errors.New("boom"), ErrorClassification{Retryable: false, RecordFailure: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyTransport(tc.err); got != tc.want {
				t.Fatalf("ClassifyTransport() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
