package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flemzord/chatgate/internal/provider"
	"github.com/flemzord/chatgate/pkg/conversation"
)

const messageStart = "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"type\":\"message\",\"role\":\"assistant\",\"content\":[],\"model\":\"claude-sonnet-4-5-20250929\",\"stop_reason\":null,\"stop_sequence\":null,\"usage\":{\"input_tokens\":10,\"output_tokens\":0}}}"

func textDelta(text string) string {
	return "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"" + text + "\"}}"
}

func sseServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEvents(w, events)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeEvents(w http.ResponseWriter, events []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		_, _ = w.Write([]byte(ev + "\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func userHello() provider.Request {
	return provider.Request{
		Temperature: 0.7,
		Messages:    []conversation.Message{conversation.Developer("be brief"), conversation.User("Hello")},
	}
}

// newTestProvider points an Anthropic provider at an httptest server.
func newTestProvider(baseURL string) *Anthropic {
	client := sdkanthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return &Anthropic{
		config: Config{Model: defaultModel, MaxTokens: 4096},
		client: &client,
	}
}

func TestStream_TextOnly(t *testing.T) {
	t.Parallel()

	var body struct {
		Model  string `json:"model"`
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
		Stream bool `json:"stream"`
	}
	events := []string{
		messageStart,
		"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}",
		textDelta("Hello"),
		textDelta(""),
		textDelta(" world"),
		"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}",
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\",\"stop_sequence\":null},\"usage\":{\"output_tokens\":5}}",
		"event: message_stop\ndata: {\"type\":\"message_stop\"}",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeEvents(w, events)
	}))
	t.Cleanup(srv.Close)

	ch, err := newTestProvider(srv.URL).Stream(context.Background(), userHello())
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	var deltas []string
	text, err := provider.Collect(context.Background(), ch, func(s string) { deltas = append(deltas, s) })
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if text != "Hello world" || len(deltas) != 2 {
		t.Errorf("text = %q, deltas = %q", text, deltas)
	}

	if body.Model != defaultModel || !body.Stream {
		t.Errorf("model = %q, stream = %v", body.Model, body.Stream)
	}
	if len(body.System) != 1 || body.System[0].Text != "be brief" {
		t.Errorf("system = %+v, want the developer preamble", body.System)
	}
	if len(body.Messages) != 1 || body.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want one user message", body.Messages)
	}
}

func TestStream_MidStreamError(t *testing.T) {
	t.Parallel()

	srv := sseServer(t,
		messageStart,
		textDelta("partial"),
		"event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}",
	)

	ch, err := newTestProvider(srv.URL).Stream(context.Background(), userHello())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := provider.Collect(context.Background(), ch, nil)
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("err = %v, want ErrProviderDown", err)
	}
	if text != "partial" {
		t.Errorf("partial text = %q", text)
	}
}

func TestStream_Truncated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		events   []string
		wantText string
	}{
		{"closed after delta", []string{messageStart, textDelta("Half an ans")}, "Half an ans"},
		{"closed after message_delta", []string{
			messageStart,
			textDelta("Almost"),
			"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\",\"stop_sequence\":null},\"usage\":{\"output_tokens\":1}}",
		}, "Almost"},
		{"closed after message_start", []string{messageStart}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := sseServer(t, tt.events...)
			ch, err := newTestProvider(srv.URL).Stream(context.Background(), userHello())
			if err != nil {
				t.Fatalf("Stream() error: %v", err)
			}
			text, err := provider.Collect(context.Background(), ch, nil)
			if !errors.Is(err, provider.ErrProviderDown) {
				t.Fatalf("err = %v, want ErrProviderDown", err)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestStream_EmptyBody(t *testing.T) {
	t.Parallel()

	srv := sseServer(t)
	ch, err := newTestProvider(srv.URL).Stream(context.Background(), userHello())
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("err = %v, want ErrProviderDown", err)
	}
	if ch != nil {
		t.Error("channel should be nil on error")
	}
}

func TestStream_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(messageStart + "\n\n"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	ch, err := newTestProvider(srv.URL).Stream(ctx, userHello())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timer.C:
			t.Fatal("stream channel not closed within timeout")
		}
	}
}

func TestStream_InitialErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid api key"}}`, provider.ErrAccessDenied},
		{"rate limit", http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`, provider.ErrRateLimit},
		{"server error", http.StatusInternalServerError, `{"type":"error","error":{"type":"api_error","message":"boom"}}`, provider.ErrProviderDown},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`, provider.ErrProviderDown},
		{"context length", http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long: context length exceeded"}}`, provider.ErrContextLength},
		{"unknown model", http.StatusNotFound, `{"type":"error","error":{"type":"not_found_error","message":"model: nope"}}`, provider.ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ch, err := newTestProvider(srv.URL).Stream(context.Background(), userHello())
			if ch != nil {
				t.Error("expected nil channel on initial error")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStream_PlainBadRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: must be positive"}}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).Stream(context.Background(), userHello())
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.Reason(err) != "other" {
		t.Errorf("plain 400 classified as %s: %v", provider.Reason(err), err)
	}
}
