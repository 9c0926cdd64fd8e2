package dataloader

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants used in ClientError.Type.
const (
	ErrorTypeAuthorisation = "Authorisation"
	ErrorTypeRateLimit     = "RateLimit"
	ErrorTypeTransport     = "Transport"
	ErrorTypeTimeout       = "Timeout"
	ErrorTypeCancelled     = "Cancelled"
	ErrorTypeValidation    = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrAuthorisationFailed is returned when an authoriser rejects a request
	// before dispatch.
	ErrAuthorisationFailed = errors.New("dataloader: authorisation failed")

	// ErrRateLimited is returned when the rate limiter denies admission for a
	// request's host.
	ErrRateLimited = errors.New("dataloader: rate limited")

	// ErrCancelled is returned when a request is aborted through its
	// cancellation token.
	ErrCancelled = errors.New("dataloader: request cancelled")

	// ErrServiceClosed is returned for requests handed to a service after
	// Close has been called.
	ErrServiceClosed = errors.New("dataloader: service closed")
)

// ClientError represents an error surfaced to a response handler, carrying
// diagnostic context about the request that produced it.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Host       string
	StatusCode int
	Timestamp  time.Time
	Duration   time.Duration
}

// IsTransient determines if an error represents a failure that might succeed
// if the caller issues the request again. Returns true for transport errors,
// timeouts, rate limiting and 5xx responses. Returns false for authorisation
// rejections, cancellations and configuration errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrAuthorisationFailed) || errors.Is(err, ErrCancelled) || errors.Is(err, ErrServiceClosed) {
		return false
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeTransport, ErrorTypeTimeout, ErrorTypeRateLimit:
			return true
		default:
			return clientErr.StatusCode >= 500 || clientErr.StatusCode == 429
		}
	}

	return false
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	switch target {
	case ErrAuthorisationFailed:
		return e.Type == ErrorTypeAuthorisation
	case ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	case ErrCancelled:
		return e.Type == ErrorTypeCancelled
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Host != "" {
		info += fmt.Sprintf("Host: %s\n", e.Host)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
