package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is returned for malformed samples and queries.
	ErrInvalidInput = errors.New("telemetry: invalid input")

	// ErrNotFound is returned when the pot, its flower or its household
	// cannot be resolved. Nothing is stored.
	ErrNotFound = errors.New("telemetry: not found")

	// ErrNoActiveFlower is returned for samples from a pot with no bound flower.
	ErrNoActiveFlower = fmt.Errorf("%w: no active flower", ErrNotFound)
)

// ValidationError lists every constraint a sample violated.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "telemetry: invalid sample: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
