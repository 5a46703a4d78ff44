package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "canceled"},
		{fmt.Errorf("%w: slow down", ErrRateLimit), "rate_limit"},
		{ErrContextLength, "context_length"},
		{fmt.Errorf("%w: 503", ErrProviderDown), "unavailable"},
		{ErrAccessDenied, "access_denied"},
		{ErrNoProvider, "no_provider"},
		{errors.New("weird"), "other"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	sentinels := []error{ErrRateLimit, ErrContextLength, ErrProviderDown, ErrAccessDenied, ErrNoProvider}
	seen := make(map[string]bool)
	for _, e := range sentinels {
		if seen[Reason(e)] {
			t.Errorf("two sentinels share reason %q", Reason(e))
		}
		seen[Reason(e)] = true
	}
}
