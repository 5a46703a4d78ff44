// Package providertest provides test doubles for provider.Provider.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/chatgate/internal/provider"
)

// StreamFunc is the behavior plugged into MockProvider.
type StreamFunc func(ctx context.Context, req provider.Request) (<-chan provider.Delta, error)

// MockProvider records requests and delegates to StreamFunc, which must be
// set before Stream is called. Safe for concurrent use.
type MockProvider struct {
	StreamFunc StreamFunc
	Model      string

	mu    sync.Mutex
	calls int
	last  provider.Request
}

// Stream implements provider.Provider.
func (m *MockProvider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Delta, error) {
	m.mu.Lock()
	m.calls++
	m.last = req
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ModelName implements provider.Provider.
func (m *MockProvider) ModelName() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Calls returns how many times Stream was called.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Request returns the last request passed to Stream.
func (m *MockProvider) Request() provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Reply returns a StreamFunc that emits fragments in order then closes.
func Reply(fragments ...string) StreamFunc {
	return func(context.Context, provider.Request) (<-chan provider.Delta, error) {
		ch := make(chan provider.Delta, len(fragments))
		for _, f := range fragments {
			ch <- provider.Delta{Text: f}
		}
		close(ch)
		return ch, nil
	}
}

// Fail returns a StreamFunc that rejects every request with err.
func Fail(err error) StreamFunc {
	return func(context.Context, provider.Request) (<-chan provider.Delta, error) {
		return nil, err
	}
}

var _ provider.Provider = (*MockProvider)(nil)
