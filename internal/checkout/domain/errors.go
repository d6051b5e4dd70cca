package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrHardDecline is a non-retryable failure for this checkout attempt.
	ErrHardDecline = errors.New("hard_decline")
	// ErrTransientFailure means the processor was unreachable; the whole checkout may be retried.
	ErrTransientFailure = errors.New("transient_failure")

	ErrInvalidOrder   = errors.New("invalid_order")
	ErrInvalidPlan    = errors.New("invalid_plan")
	ErrWrongPlugin    = errors.New("gateway_plugin_mismatch")
	ErrMissingMandate = errors.New("missing_mandate")
)

// MissingMandateMessage is shown when an onsite checkout has no mandate.
const MissingMandateMessage = "No direct debit mandate was set up"

// DeclineError carries the customer-facing reason for a hard decline.
type DeclineError struct {
	Reason string
	Err    error
}

func Decline(reason string, err error) *DeclineError {
	return &DeclineError{Reason: reason, Err: err}
}

func (e *DeclineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("declined: %s", e.Reason)
	}
	return fmt.Sprintf("declined: %s: %v", e.Reason, e.Err)
}

func (e *DeclineError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrHardDecline}
	}
	return []error{ErrHardDecline, e.Err}
}

// TransientError wraps processor outages.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransientFailure, e.Err}
}
