package services

import (
	"errors"
	"fmt"
)

// AdmissionError rejects a proposed investment before anything is created.
// User-facing.
type AdmissionError struct {
	Reason string
}

func (e *AdmissionError) Error() string {
	return e.Reason
}

// ValidationError rejects an attempted mutation of an existing investment
// (illegal transition, wrong payment method, missing confirmation details).
// The entry is left unchanged. User-facing.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// InvariantViolation means an aggregate recompute produced a result that
// contradicts the data model (negative total, investor count below zero).
// The write is rejected rather than clamped; this is a bug, not an input error.
type InvariantViolation struct {
	BranchID uint
	Detail   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("branch %d aggregate invariant violated: %s", e.BranchID, e.Detail)
}

// ErrGatewayUnavailable marks a transient payment-gateway failure (network,
// 5xx). The triggering signal should be retried by its caller; the investment
// stays in its prior state.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

func admissionErrf(format string, args ...interface{}) error {
	return &AdmissionError{Reason: fmt.Sprintf(format, args...)}
}

func validationErrf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
