package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrTemporary            = errors.New("temporary failure")
	ErrExternalAction       = errors.New("external action failed")
	ErrReferentialViolation = errors.New("referential violation")
	ErrMissingArtifact      = errors.New("missing artifact")
	ErrConnection           = errors.New("store connection fault")
	ErrInvalidKey           = errors.New("invalid attachment key")
	ErrRunInProgress        = errors.New("pipeline run in progress")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
