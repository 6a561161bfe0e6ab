package oracle

import (
	"errors"
	"fmt"
)

// Error kinds for upstream LLM failures. The retry wrapper retries
// ErrTransient; everything else fails fast.
var (
	// ErrTransient marks rate limits, throttling, and 5xx-class
	// upstream failures that are worth retrying.
	ErrTransient = errors.New("transient upstream failure")
	// ErrPermanent marks credential, quota, and invalid-input failures
	// that will not succeed on retry.
	ErrPermanent = errors.New("permanent upstream failure")
)

// Transient wraps err as a retryable upstream failure.
func Transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// Permanent wraps err as a non-retryable upstream failure.
func Permanent(err error) error {
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}
