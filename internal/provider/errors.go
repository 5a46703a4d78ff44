package provider

import (
	"context"
	"errors"
)

// Failures a provider reports, whatever its wire protocol.
var (
	ErrRateLimit     = errors.New("provider rate limited")
	ErrContextLength = errors.New("context length exceeded")
	ErrProviderDown  = errors.New("provider unavailable")

	// ErrAccessDenied covers a rejected key and a model the key cannot use.
	ErrAccessDenied = errors.New("model access denied")

	ErrNoProvider = errors.New("no provider configured")
)

// Reason returns a short label for err, suitable as a metric label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrContextLength):
		return "context_length"
	case errors.Is(err, ErrProviderDown):
		return "unavailable"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrNoProvider):
		return "no_provider"
	default:
		return "other"
	}
}
