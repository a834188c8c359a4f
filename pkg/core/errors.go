package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: otp_exhausted, delivery_failed, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches another ExecutionError by code, so copies made with
// WithCause/WithDetails still satisfy errors.Is against the predefined values.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Detail returns a single detail value, or nil.
func (e *ExecutionError) Detail(key string) interface{} {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Acquisition errors never leave the capture loop
	ErrAcquisition = &ExecutionError{
		Category: ErrCategoryAcquisition,
		Code:     "acquisition_failed",
		Message:  "text dump acquisition failed",
	}

	// Terminal capture errors
	ErrExhausted = &ExecutionError{
		Category: ErrCategoryExhaustion,
		Code:     "otp_exhausted",
		Message:  "no passcode found after all attempts",
	}
	ErrDelivery = &ExecutionError{
		Category: ErrCategoryDelivery,
		Code:     "delivery_failed",
		Message:  "passcode delivery failed",
	}

	// Lookup and timing errors
	ErrLocatorNotFound = &ExecutionError{
		Category: ErrCategoryDevice,
		Code:     "locator_not_found",
		Message:  "no locator matched",
	}
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryDevice,
		Code:     "wait_timeout",
		Message:  "wait condition timed out",
	}
	ErrDeviceNotFound = &ExecutionError{
		Category: ErrCategoryDevice,
		Code:     "device_not_found",
		Message:  "no connected device found",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrUnknownProfile = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "unknown_profile",
		Message:  "unknown extraction profile",
	}
)
