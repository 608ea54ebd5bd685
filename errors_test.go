package amp

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClientError(t *testing.T) {
	err := &ClientError{
		Type:    ErrorTypeNetwork,
		Message: "connection refused",
	}

	expectedMsg := "Network: connection refused"
	if err.Error() != expectedMsg {
		t.Errorf("Expected '%s', got '%s'", expectedMsg, err.Error())
	}

	errWithCause := &ClientError{
		Type:       ErrorTypeServer,
		Message:    "agent responded Bad Gateway",
		StatusCode: 502,
		Cause:      errors.New("upstream"),
		RequestID:  "r-1",
	}

	expected := "[r-1] Server: agent responded Bad Gateway (status 502) (upstream)"
	if errWithCause.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, errWithCause.Error())
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("original error")
	err := &ClientError{Type: ErrorTypeNetwork, Message: "m", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), cause) {
		t.Error("Expected errors.Is to see through wrapping")
	}
}

func TestClientErrorIsByType(t *testing.T) {
	err := &ClientError{Type: ErrorTypeDecode, Message: "bad json"}

	if !errors.Is(err, &ClientError{Type: ErrorTypeDecode}) {
		t.Error("Expected ClientErrors with the same type to match")
	}
	if errors.Is(err, &ClientError{Type: ErrorTypeServer}) {
		t.Error("Expected ClientErrors with different types not to match")
	}

	var nilErr *ClientError
	if nilErr.Error() != "<nil>" || nilErr.Unwrap() != nil || nilErr.Is(err) {
		t.Error("Expected nil ClientError methods to be safe")
	}
}

func TestClientErrorDebugInfo(t *testing.T) {
	err := &ClientError{
		Type:       ErrorTypeServer,
		Message:    "boom",
		RequestID:  "req-9",
		Operation:  OperationDecide,
		URL:        "https://amp.ai/api/core/v1/k/decide",
		Agent:      "https://amp.ai",
		StatusCode: 500,
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Duration:   15 * time.Millisecond,
		Cause:      errors.New("cause"),
	}

	info := err.DebugInfo()
	for _, want := range []string{
		"Error Type: Server",
		"Request ID: req-9",
		"Operation: decide",
		"Agent: https://amp.ai",
		"Status Code: 500",
		"Timestamp: 2024-01-01T00:00:00Z",
		"Duration: 15ms",
		"Cause: cause",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo missing %q:\n%s", want, info)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"early termination", ErrEarlyTermination, true},
		{"circuit open", &ClientError{Type: ErrorTypeCircuitOpen, Cause: ErrCircuitOpen}, true},
		{"network", &ClientError{Type: ErrorTypeNetwork}, true},
		{"server", &ClientError{Type: ErrorTypeServer, StatusCode: 500}, true},
		{"rate limited", &ClientError{Type: ErrorTypeDecode, StatusCode: 429}, true},
		{"decode", &ClientError{Type: ErrorTypeDecode}, false},
		{"validation", ErrTooManyCandidates, false},
		{"plain", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	for _, err := range []error{ErrTooManyCandidates, ErrNoCandidates, ErrMissingEventName, ErrMissingContexts, &ClientError{Type: ErrorTypeValidation}} {
		if !IsValidation(err) {
			t.Errorf("Expected %v to be a validation error", err)
		}
	}
	if IsValidation(ErrEarlyTermination) || IsValidation(nil) {
		t.Error("Expected early termination and nil not to be validation errors")
	}
}

func TestErrorTypeClassification(t *testing.T) {
	tests := map[error]string{
		ErrEarlyTermination:                 ErrorTypeTimeout,
		ErrNoCandidates:                     ErrorTypeValidation,
		&ClientError{Type: ErrorTypeServer}: ErrorTypeServer,
		&ClientError{Cause: ErrCircuitOpen}: ErrorTypeCircuitOpen,
		errors.New("socket closed"):         ErrorTypeNetwork,
	}
	for err, want := range tests {
		if got := errorType(err); got != want {
			t.Errorf("errorType(%v) = %q, want %q", err, got, want)
		}
	}
	if errorType(nil) != "" {
		t.Error("Expected empty type for nil")
	}
}

func TestTooManyCandidatesMessage(t *testing.T) {
	if !strings.Contains(ErrTooManyCandidates.Error(), "50") {
		t.Errorf("Expected cap in message, got %q", ErrTooManyCandidates.Error())
	}
}
