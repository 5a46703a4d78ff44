package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/flemzord/chatgate/internal/provider"
)

// statusOverloaded is Anthropic's "overloaded" status.
const statusOverloaded = 529

var statusSentinels = map[int]error{
	http.StatusUnauthorized:    provider.ErrAccessDenied,
	http.StatusForbidden:       provider.ErrAccessDenied,
	http.StatusNotFound:        provider.ErrAccessDenied, // unknown model
	http.StatusTooManyRequests: provider.ErrRateLimit,
	statusOverloaded:           provider.ErrProviderDown,
}

// contextLengthHints are fragments of the invalid_request_error messages
// sent when a conversation no longer fits the model's window.
var contextLengthHints = []string{"prompt is too long", "context length", "too many tokens", "token limit"}

// mapError turns an SDK error into a provider sentinel. Context errors
// pass through so a cancelled turn is not reported as an outage.
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		// Transport failures and error events inside the stream.
		return fmt.Errorf("%w: %v", provider.ErrProviderDown, err)
	}

	status := apiErr.StatusCode
	sentinel, ok := statusSentinels[status]
	switch {
	case ok:
	case status == http.StatusBadRequest && isContextLength(apiErr.RawJSON()):
		sentinel = provider.ErrContextLength
	case status >= 500:
		sentinel = provider.ErrProviderDown
	default:
		return fmt.Errorf("anthropic: HTTP %d: %w", status, err)
	}
	return fmt.Errorf("%w: %s", sentinel, apiErr.Error())
}

func isContextLength(raw string) bool {
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := raw
	if json.Unmarshal([]byte(raw), &body) == nil {
		if body.Error.Type != "invalid_request_error" {
			return false
		}
		msg = body.Error.Message
	}
	msg = strings.ToLower(msg)
	for _, hint := range contextLengthHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
