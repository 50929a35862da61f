package providers

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a provider failure for user-facing messaging and for
// the orchestrator's fallback decision.
type ErrorKind string

const (
	ErrKindQuota            ErrorKind = "quota"
	ErrKindAuth             ErrorKind = "auth"
	ErrKindModelUnavailable ErrorKind = "model_unavailable"
	ErrKindConnection       ErrorKind = "connection"
	ErrKindUnknown          ErrorKind = "unknown"
)

// ProviderError wraps any failure returned by a provider call.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (%s): %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// UserMessage maps the kind to the message shown to the end user.
func (e *ProviderError) UserMessage() string {
	switch e.Kind {
	case ErrKindQuota:
		return "API quota exceeded. Please check your API credits or try a different model."
	case ErrKindAuth:
		return "API authentication failed. Please check your API key configuration."
	case ErrKindModelUnavailable:
		return "The selected model is not available. Please try a different model."
	case ErrKindConnection:
		return "Unable to connect to the AI service. Please try again later."
	default:
		return "The AI service returned an error. Please try again."
	}
}

// Classify turns a raw API failure into a ProviderError by inspecting the
// upstream message. Providers call this at their boundary so raw transport
// errors never reach the orchestrator.
func Classify(provider string, err error) *ProviderError {
	msg := err.Error()
	lower := strings.ToLower(msg)

	kind := ErrKindUnknown
	switch {
	case strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient credits") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		kind = ErrKindQuota
	case strings.Contains(lower, "authentication") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "401") || strings.Contains(lower, "403"):
		kind = ErrKindAuth
	case strings.Contains(lower, "invalid model") || strings.Contains(lower, "model not found") || strings.Contains(lower, "does not exist") || strings.Contains(lower, "data policy"):
		kind = ErrKindModelUnavailable
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") || strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "eof"):
		kind = ErrKindConnection
	}

	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Message:  msg,
		Err:      err,
	}
}
