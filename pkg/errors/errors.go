// Package errors defines the unified error taxonomy for batch dispatch.
// All provider-specific failures are mapped to these standard error types
// so the retry loop never inspects raw status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// BatchError represents a standardized failure from a provider call or a
// dispatch step. It carries everything needed for retry decisions, logging,
// and the failed-outcome record.
type BatchError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, code=%d)",
		e.Type, e.Message, e.Provider, e.Model, e.StatusCode)
}

// Error type constants, one per taxonomy class.
const (
	TypeRateLimited    = "rate_limited"
	TypeTransient      = "transient_provider_error"
	TypePermanent      = "permanent_provider_error"
	TypeQuotaExhausted = "quota_exhausted"
	TypeCancelled      = "cancelled"
)

// NewRateLimitError creates a rate limit error (429). Retried with
// exponential backoff.
func NewRateLimitError(provider, model, message string) *BatchError {
	return &BatchError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimited,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewTransientError creates a retryable provider error (network trouble,
// timeouts, 5xx).
func NewTransientError(provider, model string, statusCode int, message string) *BatchError {
	return &BatchError{
		StatusCode: statusCode,
		Message:    message,
		Type:       TypeTransient,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewPermanentError creates a non-retryable provider error (4xx other than
// rate limit). Tasks fail immediately on these.
func NewPermanentError(provider, model string, statusCode int, message string) *BatchError {
	return &BatchError{
		StatusCode: statusCode,
		Message:    message,
		Type:       TypePermanent,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewQuotaExhaustedError creates a daily-quota error. Callers wait out a
// long cooldown and recheck rather than burning retry attempts.
func NewQuotaExhaustedError(provider, model, message string) *BatchError {
	return &BatchError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeQuotaExhausted,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewCancelledError marks a task stopped by the caller's context.
func NewCancelledError(provider, model string) *BatchError {
	return &BatchError{
		Message:   "cancelled by caller",
		Type:      TypeCancelled,
		Provider:  provider,
		Model:     model,
		Retryable: false,
	}
}

// FromHTTPStatus maps a provider HTTP status to the taxonomy. Adapters use
// it as the shared fallback mapping: 429 is rate-limited, 408 and 5xx are
// transient, remaining 4xx are permanent.
func FromHTTPStatus(provider, model string, statusCode int, message string) *BatchError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(provider, model, message)
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return NewTransientError(provider, model, statusCode, message)
	default:
		return NewPermanentError(provider, model, statusCode, message)
	}
}

// IsRateLimited reports whether err is a rate-limit error.
func IsRateLimited(err error) bool {
	var be *BatchError
	return errors.As(err, &be) && be.Type == TypeRateLimited
}

// IsQuotaExhausted reports whether err is a daily-quota error.
func IsQuotaExhausted(err error) bool {
	var be *BatchError
	return errors.As(err, &be) && be.Type == TypeQuotaExhausted
}

// IsCancelled reports whether err marks caller cancellation.
func IsCancelled(err error) bool {
	var be *BatchError
	return errors.As(err, &be) && be.Type == TypeCancelled
}

// IsRetryable reports whether the retry loop may attempt err again.
// Unclassified errors count as retryable: transport-level failures arrive
// unwrapped and are treated as transient.
func IsRetryable(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return true
}

// Class returns the taxonomy type for logging, or the generic transient
// class for unclassified errors.
func Class(err error) string {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Type
	}
	return TypeTransient
}
