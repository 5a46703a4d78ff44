package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flemzord/chatgate/internal/provider"
	"github.com/flemzord/chatgate/pkg/conversation"
)

const (
	streamBuffer = 32

	// maxErrorBody caps how much of a rejected response is read.
	maxErrorBody = 64 << 10
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamEvent is one decoded chat.completion.chunk, or an error object
// some endpoints send in its place.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

// chatRequest builds the wire request. A request-level model wins over the
// configured one.
func (p *Provider) chatRequest(req provider.Request) chatRequest {
	cr := chatRequest{
		Model:       p.config.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   p.config.MaxTokens,
		Stream:      true,
	}
	if req.Model != "" {
		cr.Model = req.Model
	}
	for _, m := range req.Messages {
		role := string(m.Role)
		if p.config.SystemRole && m.Role == conversation.RoleDeveloper {
			role = "system"
		}
		cr.Messages = append(cr.Messages, chatMessage{Role: role, Content: m.Content})
	}
	return cr
}

// Stream implements provider.Provider. A rejected request is reported
// directly; failures after the first byte arrive as the last Delta.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Delta, error) {
	payload, err := json.Marshal(p.chatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, connError(err)
	}
	if resp.StatusCode/100 != 2 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, body)
	}

	ch := make(chan provider.Delta, streamBuffer)
	go relay(ctx, resp.Body, ch)
	return ch, nil
}

// relay forwards the text of each event until [DONE]. It owns body and
// closes ch when done.
func relay(ctx context.Context, body io.ReadCloser, ch chan<- provider.Delta) {
	defer close(ch)
	defer func() { _ = body.Close() }()
	// Unblocks a pending read when the turn is abandoned.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	events := newEventReader(body)
	for {
		data, err := events.Next()
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			send(ctx, ch, provider.Delta{Err: fmt.Errorf("%w: stream ended before [DONE]", provider.ErrProviderDown)})
			return
		case err != nil:
			send(ctx, ch, provider.Delta{Err: connError(err)})
			return
		case data == "[DONE]":
			return
		}

		text, err := decodeEvent(data)
		if err != nil {
			send(ctx, ch, provider.Delta{Err: err})
			return
		}
		if text != "" && !send(ctx, ch, provider.Delta{Text: text}) {
			return
		}
	}
}

func decodeEvent(data string) (string, error) {
	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return "", fmt.Errorf("openai: malformed stream event: %w", err)
	}
	if ev.Error != nil && ev.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", provider.ErrProviderDown, ev.Error.Message)
	}
	if len(ev.Choices) == 0 {
		return "", nil
	}
	return ev.Choices[0].Delta.Content, nil
}

// send reports false when ctx ended first.
func send(ctx context.Context, ch chan<- provider.Delta, d provider.Delta) bool {
	select {
	case ch <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// eventReader splits a text/event-stream body into event payloads.
type eventReader struct {
	r   *bufio.Reader
	err error
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{r: bufio.NewReader(r)}
}

// Next returns the data of the next event that carries any. Several data
// lines in one event are joined with "\n". Comments and other fields are
// ignored. io.EOF is returned once the body is exhausted.
func (e *eventReader) Next() (string, error) {
	var data []string
	for e.err == nil {
		var line string
		line, e.err = e.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field == "data" {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	// An unterminated final event still counts.
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", e.err
}
