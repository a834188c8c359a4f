package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{
		Category: ErrCategoryDelivery,
		Code:     "test_error",
		Message:  "test message",
	}

	if got := err.Error(); got != "test message" {
		t.Errorf("Error() = %q, want %q", got, "test message")
	}
}

func TestExecutionError_ErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Category: ErrCategoryDelivery,
		Code:     "test_error",
		Message:  "test message",
		Cause:    cause,
	}

	got := err.Error()
	if !strings.Contains(got, "test message") {
		t.Errorf("Error() = %q, should contain 'test message'", got)
	}
	if !strings.Contains(got, "underlying error") {
		t.Errorf("Error() = %q, should contain 'underlying error'", got)
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Message: "wrapper",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestExecutionError_WithCause(t *testing.T) {
	original := ErrDelivery
	cause := errors.New("custom cause")

	newErr := original.WithCause(cause)

	if newErr.Cause != cause {
		t.Error("WithCause() did not set cause")
	}
	if newErr.Code != original.Code {
		t.Error("WithCause() changed code")
	}
	if original.Cause != nil {
		t.Error("WithCause() modified original error")
	}
}

func TestExecutionError_WithMessage(t *testing.T) {
	original := ErrExhausted
	newErr := original.WithMessage("custom exhaustion message")

	if newErr.Message != "custom exhaustion message" {
		t.Errorf("Message = %q, want 'custom exhaustion message'", newErr.Message)
	}
	if newErr.Code != original.Code {
		t.Error("WithMessage() changed code")
	}
	if original.Message == "custom exhaustion message" {
		t.Error("WithMessage() modified original error")
	}
}

func TestExecutionError_WithDetails(t *testing.T) {
	original := &ExecutionError{
		Code:    "test",
		Message: "test",
		Details: map[string]interface{}{"existing": "value"},
	}

	newErr := original.WithDetails(map[string]interface{}{
		"stage":    "write",
		"attempts": 5,
	})

	if newErr.Details["stage"] != "write" {
		t.Error("WithDetails() did not add new details")
	}
	if newErr.Details["existing"] != "value" {
		t.Error("WithDetails() did not preserve existing details")
	}
	if _, ok := original.Details["stage"]; ok {
		t.Error("WithDetails() modified original error")
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err      *ExecutionError
		category ErrorCategory
		code     string
	}{
		{ErrAcquisition, ErrCategoryAcquisition, "acquisition_failed"},
		{ErrExhausted, ErrCategoryExhaustion, "otp_exhausted"},
		{ErrDelivery, ErrCategoryDelivery, "delivery_failed"},
		{ErrLocatorNotFound, ErrCategoryDevice, "locator_not_found"},
		{ErrWaitTimeout, ErrCategoryDevice, "wait_timeout"},
		{ErrDeviceNotFound, ErrCategoryDevice, "device_not_found"},
		{ErrInvalidConfig, ErrCategoryConfig, "invalid_config"},
		{ErrUnknownProfile, ErrCategoryConfig, "unknown_profile"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Category != tt.category {
				t.Errorf("Category = %s, want %s", tt.err.Category, tt.category)
			}
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}

func TestExecutionError_ErrorsIs(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrExhausted.WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the cause")
	}
}

func TestExecutionError_IsMatchesByCode(t *testing.T) {
	err := ErrDelivery.WithDetails(map[string]interface{}{"stage": "focus"})

	if !errors.Is(err, ErrDelivery) {
		t.Error("copy made with WithDetails should match ErrDelivery")
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("delivery error should not match ErrExhausted")
	}

	wrapped := fmt.Errorf("capture: %w", err)
	if !errors.Is(wrapped, ErrDelivery) {
		t.Error("wrapped error should still match ErrDelivery")
	}
	if got := err.Detail("stage"); got != "focus" {
		t.Errorf("Detail(stage) = %v, want focus", got)
	}
	if got := ErrExhausted.Detail("missing"); got != nil {
		t.Errorf("Detail(missing) = %v, want nil", got)
	}
}
