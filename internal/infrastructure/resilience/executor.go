package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Executor runs outbound calls with retry and a per-operation circuit breaker.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute calls fn until it succeeds, classifier says stop, or attempts run
// out. With the breaker enabled the whole retry sequence counts as one call.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return errors.New("resilience: operation callback is nil")
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	if classifier == nil {
		classifier = ClassifyTransport
	}

	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, operation, fn, classifier)
	}
	_, err := e.breaker(operation, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, operation, fn, classifier)
	})
	return err
}

// Call is Execute for operations that produce a value.
func Call[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error), classifier ErrorClassifier) (T, error) {
	var out T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, classifier)
	return out, err
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	backoff := e.cfg.RetryInitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= e.cfg.RetryMaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := min(backoff, e.cfg.RetryMaxBackoff)
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff = time.Duration(float64(backoff) * e.cfg.RetryMultiplier)
	}
}

func (e *Executor) breaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = cb
	return cb
}
