package broker

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for errors.Is. The concrete types below carry the details.
var (
	ErrValidation         = errors.New("validation error")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrDataIntegrity      = errors.New("data integrity error")
)

// ValidationError reports a malformed order, request or input dataset. It is
// always returned before any engine state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a *ValidationError with a formatted reason.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MarginError is returned (and recorded) when an opening fill or a fractional
// size cannot be covered by free margin. The order is cancelled, the run goes on.
type MarginError struct {
	OrderID   string
	Symbol    string
	Required  float64
	Available float64
}

func (e *MarginError) Error() string {
	return fmt.Sprintf("insufficient margin for %s order %s: need %.2f, have %.2f",
		e.Symbol, e.OrderID, e.Required, e.Available)
}

func (e *MarginError) Is(target error) bool { return target == ErrInsufficientMargin }

// DataIntegrityError aborts a run: the bar at Time cannot be trusted.
type DataIntegrityError struct {
	Symbol string
	Time   time.Time
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s at %s: %s", e.Symbol, e.Time.Format(time.RFC3339), e.Reason)
}

func (e *DataIntegrityError) Is(target error) bool { return target == ErrDataIntegrity }

// InvariantViolation is the panic value used when internal bookkeeping
// diverges. It signals a bug, never a recoverable condition.
type InvariantViolation struct {
	Reason string
}

func (v InvariantViolation) Error() string { return "invariant violation: " + v.Reason }
