package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrValidation covers malformed booking parameters; callers build it
	// with Validationf so the reason survives into the API response.
	ErrValidation = errors.New("validation failed")

	// Availability errors: rejected before payment, never partially fulfilled.
	ErrInsufficientAvailability = errors.New("insufficient units available")
	ErrBelowMinStay             = errors.New("stay below collection minimum nights")

	// ErrAllocationRace signals a concurrent fulfillment won the units this
	// allocation re-checked; the orchestrator retries once.
	ErrAllocationRace = errors.New("allocation lost race")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
