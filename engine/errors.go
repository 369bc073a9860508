/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The materializer and reconciler wrap these with item context; the API
  layer classifies them into HTTP responses.

ERROR CATEGORIES:
  1. Validation errors - Malformed schedules, bad drafts (per-item, not fatal)
  2. Payment errors - Signature, re-verification, duplicate application
  3. Store errors - Persistence-level failures (retryable upstream)
  4. Configuration errors - Pricing/earnings config unavailable

USAGE:
  The webhook handler maps errors to status codes:

    if engine.IsRetryable(err) { w.WriteHeader(500) }  // provider retries
    if engine.IsClientError(err) { w.WriteHeader(400) }

SEE ALSO:
  - payment/reconciler.go: Produces signature/verification errors
  - recurring/materializer.go: Collects validation/persistence errors per item
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for business-rule violations: malformed
	// schedule anchors, missing required draft fields, bad amounts.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidSignature is returned when a webhook signature is present
	// but does not match the body. The request is rejected unprocessed.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrVerificationMismatch is returned when the provider's transaction
	// lookup disagrees with the webhook payload. No state changes; the
	// provider may safely retry.
	ErrVerificationMismatch = errors.New("transaction re-verification mismatch")

	// ErrDuplicateApplication is returned when a payment reference has
	// already been applied. Expected under retried delivery; callers
	// short-circuit it to success.
	ErrDuplicateApplication = errors.New("payment reference already applied")

	// ErrPersistence is returned when a write cannot be completed.
	ErrPersistence = errors.New("persistence failed")

	// ErrConfiguration is returned when pricing or earnings configuration
	// is unavailable for a computation.
	ErrConfiguration = errors.New("configuration unavailable")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("entity not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// VerificationMismatchError records what the provider reported versus what
// the webhook claimed.
type VerificationMismatchError struct {
	Reference      string
	WebhookStatus  string
	ProviderStatus string
}

func (e *VerificationMismatchError) Error() string {
	return fmt.Sprintf("re-verification mismatch for %s: webhook said %q, provider said %q",
		e.Reference, e.WebhookStatus, e.ProviderStatus)
}

func (e *VerificationMismatchError) Unwrap() error { return ErrVerificationMismatch }

// ScheduleError wraps a per-schedule materialization failure with the
// schedule identity, for the batch report.
type ScheduleError struct {
	ScheduleID ScheduleID
	Err        error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("schedule %s: %v", e.ScheduleID, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry. The webhook
// handler answers these with a 5xx so the provider redelivers.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to invalid input or a
// payload the provider should not redeliver unchanged.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrVerificationMismatch)
}

// IsDuplicate returns true if the error indicates an already-applied payment.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateApplication)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
