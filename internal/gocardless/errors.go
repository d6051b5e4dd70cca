package gocardless

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrMissingAccessToken = errors.New("missing_access_token")
	ErrInvalidEnvironment = errors.New("invalid_environment")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
)

// Processor error types.
const (
	ErrorTypeGoCardless       = "gocardless"
	ErrorTypeInvalidAPIUsage  = "invalid_api_usage"
	ErrorTypeInvalidState     = "invalid_state"
	ErrorTypeValidationFailed = "validation_failed"

	reasonIdempotentCreationConflict = "idempotent_creation_conflict"
)

type FieldError struct {
	Field   string            `json:"field,omitempty"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Links   map[string]string `json:"links,omitempty"`
}

// APIError is a non-2xx response from the processor.
type APIError struct {
	StatusCode int          `json:"code"`
	Type       string       `json:"type"`
	Message    string       `json:"message"`
	RequestID  string       `json:"request_id"`
	Errors     []FieldError `json:"errors"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gocardless: status %d (%s)", e.StatusCode, e.Type)
	}
	return fmt.Sprintf("gocardless: %s (status %d, type %s)", e.Message, e.StatusCode, e.Type)
}

// Reason returns the first field-level reason, if any.
func (e *APIError) Reason() string {
	for _, fe := range e.Errors {
		if fe.Reason != "" {
			return fe.Reason
		}
	}
	return ""
}

// ConflictingResourceID returns the resource an idempotency key already created.
func (e *APIError) ConflictingResourceID() (string, bool) {
	for _, fe := range e.Errors {
		if fe.Reason != reasonIdempotentCreationConflict {
			continue
		}
		if id := fe.Links["conflicting_resource_id"]; id != "" {
			return id, true
		}
	}
	return "", false
}

// IsTransient reports whether err is a processor outage, rate limit or network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.Type == ErrorTypeGoCardless
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func IsInvalidState(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == ErrorTypeInvalidState
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func IsAuthFailure(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}
