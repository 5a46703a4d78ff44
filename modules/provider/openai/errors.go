package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/chatgate/internal/provider"
)

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// statusSentinels classifies rejected requests by status alone.
var statusSentinels = map[int]error{
	http.StatusUnauthorized:    provider.ErrAccessDenied,
	http.StatusForbidden:       provider.ErrAccessDenied,
	http.StatusNotFound:        provider.ErrAccessDenied, // unknown or unavailable model
	http.StatusTooManyRequests: provider.ErrRateLimit,
}

// statusError maps a non-2xx response to a provider sentinel, keeping the
// API's message for the logs.
func statusError(status int, body []byte) error {
	var wrapper struct {
		Error *apiError `json:"error"`
	}
	detail := apiError{Message: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &wrapper) == nil && wrapper.Error != nil && wrapper.Error.Message != "" {
		detail = *wrapper.Error
	}

	sentinel, ok := statusSentinels[status]
	switch {
	case ok:
	case status == http.StatusBadRequest && isContextLength(detail):
		sentinel = provider.ErrContextLength
	case status >= 500:
		sentinel = provider.ErrProviderDown
	default:
		return fmt.Errorf("openai: HTTP %d: %s", status, detail.Message)
	}
	return fmt.Errorf("%w: %s", sentinel, detail.Message)
}

func isContextLength(e apiError) bool {
	return e.Code == "context_length_exceeded" ||
		strings.Contains(strings.ToLower(e.Message), "context length") ||
		strings.Contains(strings.ToLower(e.Message), "maximum context")
}

// connError maps transport failures. Context errors pass through so a
// cancelled turn is not reported as an outage.
func connError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}
