package domain

import "errors"

var (
	ErrNotFound            = errors.New("mandate_not_found")
	ErrInvalidMandate      = errors.New("invalid_mandate")
	ErrInvalidStatus       = errors.New("invalid_mandate_status")
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrInvalidFlow         = errors.New("invalid_redirect_flow")
	ErrEnvironmentMismatch = errors.New("mandate_environment_mismatch")
	ErrMandateInactive     = errors.New("mandate_inactive")
)

// InvalidDescription is shown when the processor cannot describe a mandate.
const InvalidDescription = "Invalid debit mandate"
