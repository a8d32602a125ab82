package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrTransient indicates a temporary error that may be absorbed
	ErrTransient = errors.New("transient error")

	// ErrPermanent indicates a permanent error that must not be absorbed
	ErrPermanent = errors.New("permanent error")

	// ErrStoreCorrupt indicates the dedup state could not be read or decoded
	ErrStoreCorrupt = errors.New("dedup store corrupt")

	// ErrStoreLocked indicates another run holds the dedup store lock
	ErrStoreLocked = errors.New("dedup store locked by another run")

	// ErrWhitelistInvalid indicates the whitelist configuration is unreadable or malformed
	ErrWhitelistInvalid = errors.New("whitelist configuration invalid")

	// ErrModelUnavailable indicates the model endpoint could not be reached
	ErrModelUnavailable = errors.New("model endpoint unavailable")

	// ErrMalformedResponse indicates model output that fails schema validation
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrRunAborted indicates the run was cancelled before committing
	ErrRunAborted = errors.New("run aborted")

	// ErrNotifyFailed indicates the notifier could not deliver the batch
	ErrNotifyFailed = errors.New("notification delivery failed")

	// ErrRecordNotFound indicates a processed record was not found
	ErrRecordNotFound = errors.New("record not found")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("timeout")

	// ErrRateLimit indicates rate limiting
	ErrRateLimit = errors.New("rate limit exceeded")
)

// TransientError wraps an error to mark it as transient (absorbable)
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error: %v", e.Cause)
	}
	return "transient error"
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransient creates a new transient error
func NewTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// NewTransientf creates a new transient error with formatting
func NewTransientf(format string, args ...interface{}) error {
	return &TransientError{Cause: fmt.Errorf(format, args...)}
}

// PermanentError wraps an error to mark it as permanent (fatal for the run)
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permanent error: %v", e.Cause)
	}
	return "permanent error"
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// NewPermanent creates a new permanent error
func NewPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Cause: err}
}

// NewPermanentf creates a new permanent error with formatting
func NewPermanentf(format string, args ...interface{}) error {
	return &PermanentError{Cause: fmt.Errorf(format, args...)}
}

// IsTransient checks if an error is transient using errors.As.
// Transient failures (unreachable feed, model timeout, notifier delivery)
// are absorbed by the stage that saw them; everything else fails the run.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check if explicitly marked as transient
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	// Check if explicitly marked as permanent
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	// Check for known sentinel errors
	if errors.Is(err, ErrStoreCorrupt) ||
		errors.Is(err, ErrStoreLocked) ||
		errors.Is(err, ErrWhitelistInvalid) ||
		errors.Is(err, ErrRunAborted) ||
		errors.Is(err, ErrRecordNotFound) {
		return false
	}

	if errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrModelUnavailable) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrNotifyFailed) {
		return true
	}

	// Default to non-transient for safety (don't absorb unknown errors)
	return false
}

// IsPermanent checks if an error is permanent (fatal for the run)
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}
