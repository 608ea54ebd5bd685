package amp

import (
	"errors"
	"fmt"
	"time"
)

// Error type labels carried by ClientError.Type and used as metric labels.
const (
	ErrorTypeValidation  = "Validation"
	ErrorTypeTimeout     = "Timeout"
	ErrorTypeNetwork     = "Network"
	ErrorTypeServer      = "Server"
	ErrorTypeDecode      = "Decode"
	ErrorTypeCircuitOpen = "CircuitOpen"
	ErrorTypeRateLimited = "RateLimited"
	ErrorTypeConfig      = "Config"
)

// Sentinel errors for common failure scenarios
var (
	// ErrEarlyTermination marks a request whose deadline elapsed before the
	// transport completed. Session operations translate it into a fallback.
	ErrEarlyTermination = errors.New("amp: early termination")

	// ErrTooManyCandidates is returned when a candidate space expands past MaxCandidates.
	ErrTooManyCandidates = fmt.Errorf("amp: candidate length must be less than or equal to %d", MaxCandidates)

	// ErrNoCandidates is returned by decide calls with an empty candidate space.
	ErrNoCandidates = errors.New("amp: no candidates")

	// ErrMissingEventName is returned by DecideCond without an event name.
	ErrMissingEventName = errors.New("amp: event name is required")

	// ErrMissingContexts is returned by DecideCond without any context.
	ErrMissingContexts = errors.New("amp: contexts are required")

	// ErrMissingKey is returned when a session is created on a client without a project key.
	ErrMissingKey = errors.New("amp: project key needed")

	// ErrCircuitOpen is returned when the selected agent's circuit breaker is open.
	ErrCircuitOpen = errors.New("amp: circuit open")

	// ErrRateLimited is returned when the client-side rate limit has no token left.
	ErrRateLimited = errors.New("amp: rate limit exceeded")
)

// ClientError describes a failed request with enough context to debug it.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Operation  string
	URL        string
	Agent      string
	StatusCode int
	Timestamp  time.Time
	Duration   time.Duration
}

// IsTransient reports whether err is worth retrying at a higher layer:
// network failures, timeouts, 5xx responses and open circuits.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrEarlyTermination) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeCircuitOpen, ErrorTypeRateLimited:
			return true
		default:
			return clientErr.StatusCode == 429
		}
	}

	return false
}

// IsValidation reports whether err was raised before any network call because
// the caller's input was rejected.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTooManyCandidates) || errors.Is(err, ErrNoCandidates) ||
		errors.Is(err, ErrMissingEventName) || errors.Is(err, ErrMissingContexts) {
		return true
	}
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrorTypeValidation
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
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
	if e.Operation != "" {
		info += fmt.Sprintf("Operation: %s\n", e.Operation)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Agent != "" {
		info += fmt.Sprintf("Agent: %s\n", e.Agent)
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

// errorType classifies err for metrics and logs.
func errorType(err error) string {
	var clientErr *ClientError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEarlyTermination):
		return ErrorTypeTimeout
	case errors.Is(err, ErrCircuitOpen):
		return ErrorTypeCircuitOpen
	case errors.Is(err, ErrRateLimited):
		return ErrorTypeRateLimited
	case IsValidation(err):
		return ErrorTypeValidation
	case errors.As(err, &clientErr):
		return clientErr.Type
	default:
		return ErrorTypeNetwork
	}
}
