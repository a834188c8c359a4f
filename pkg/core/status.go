package core

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone        ErrorCategory = iota // No error
	ErrCategoryAcquisition                      // Text dump could not be read (absorbed per attempt)
	ErrCategoryExhaustion                       // Attempt ceiling reached without a passcode
	ErrCategoryDelivery                         // Passcode could not be written or submitted
	ErrCategoryDevice                           // Device bridge, locator or wait failure
	ErrCategoryConfig                           // Invalid configuration, unknown profile
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAcquisition:
		return "acquisition"
	case ErrCategoryExhaustion:
		return "exhaustion"
	case ErrCategoryDelivery:
		return "delivery"
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether errors of this category end a capture run.
// Acquisition errors are retried by the loop instead.
func (c ErrorCategory) IsTerminal() bool {
	switch c {
	case ErrCategoryExhaustion, ErrCategoryDelivery, ErrCategoryDevice, ErrCategoryConfig:
		return true
	default:
		return false
	}
}
