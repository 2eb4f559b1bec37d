package emotion

import "errors"

// Client errors. These are always reported to the caller.
var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrInvalidMethod = errors.New("invalid method")
	ErrInvalidLabel  = errors.New("invalid emotion label")
)

// Capability errors. The fallback policy absorbs these into a default result.
var (
	ErrDetectorUnavailable       = errors.New("face detector unavailable")
	ErrClassificationUnavailable = errors.New("emotion classifier unavailable")
	ErrClassification            = errors.New("emotion classification failed")
)

// ErrTimeout is returned when a request does not finish within its deadline.
var ErrTimeout = errors.New("request timed out")

// IsClientError reports whether err was caused by bad caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidImage) ||
		errors.Is(err, ErrInvalidMethod) ||
		errors.Is(err, ErrInvalidLabel)
}

// IsDegraded reports whether err signals a missing or failing capability
// rather than bad input.
func IsDegraded(err error) bool {
	return errors.Is(err, ErrDetectorUnavailable) ||
		errors.Is(err, ErrClassificationUnavailable) ||
		errors.Is(err, ErrClassification)
}
