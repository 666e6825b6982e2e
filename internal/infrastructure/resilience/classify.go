package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/sony/gobreaker/v2"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

// ErrorClassification tells the executor whether to retry an error and
// whether it counts against the circuit breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	permanent = ErrorClassification{Retryable: false, RecordFailure: true}
	transient = ErrorClassification{Retryable: true, RecordFailure: true}
	ignored   = ErrorClassification{}
)

// ClassifyTransport treats cancellations as neither retryable nor failures,
// network faults and open circuits as retryable, and everything else as
// permanent. Component classifiers fall back to it.
func ClassifyTransport(err error) ErrorClassification {
	switch {
	case err == nil:
		return ignored
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ignored
	case IsCircuitOpen(err):
		return transient
	case domain.IsKind(err, domain.ErrConnection), domain.IsKind(err, domain.ErrTemporary):
		return transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return transient
	}
	return permanent
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// WrapTemporary marks err as domain.ErrTemporary when classifier deems it
// retryable, so callers can tell "try again later" from "this input is bad".
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = ClassifyTransport
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
