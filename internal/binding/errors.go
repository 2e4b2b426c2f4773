package binding

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is returned for missing or contradictory arguments.
	ErrInvalidInput = errors.New("binding: invalid input")

	// ErrNotFound is returned when a flower, pot or household does not exist.
	ErrNotFound = errors.New("binding: not found")

	// ErrConflict is returned when a pot or flower is already bound elsewhere.
	// Nothing has been written when it is returned.
	ErrConflict = errors.New("binding: conflict")

	// ErrPartialFailure matches *PartialFailureError.
	ErrPartialFailure = errors.New("binding: partial failure")
)

// PartialFailureError reports a binding left inconsistent: a write failed
// and undoing the earlier writes failed as well. The listed entities need
// manual repair or a Reconcile run.
type PartialFailureError struct {
	Op          string
	FlowerIDs   []string
	SmartPotIDs []string

	// Cause is the write that failed.
	Cause error
	// RollbackErr holds every failed undo.
	RollbackErr error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("binding: partial failure in %s (flowers [%s], smart pots [%s]): %v; rollback: %v",
		e.Op,
		strings.Join(e.FlowerIDs, ", "),
		strings.Join(e.SmartPotIDs, ", "),
		e.Cause,
		e.RollbackErr,
	)
}

// Unwrap exposes ErrPartialFailure and both underlying errors.
func (e *PartialFailureError) Unwrap() []error {
	errs := []error{ErrPartialFailure}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.RollbackErr != nil {
		errs = append(errs, e.RollbackErr)
	}
	return errs
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
