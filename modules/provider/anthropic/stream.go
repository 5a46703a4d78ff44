package anthropic

import (
	"context"
	"fmt"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/flemzord/chatgate/internal/provider"
)

const streamBuffer = 16

type eventStream = ssestream.Stream[sdkanthropic.MessageStreamEventUnion]

// Stream implements provider.Provider. Rejected requests are reported
// directly; failures after the first event arrive as the last Delta.
func (a *Anthropic) Stream(ctx context.Context, req provider.Request) (<-chan provider.Delta, error) {
	stream := a.client.Messages.NewStreaming(ctx, messageParams(req, &a.config, a.logger))

	// The SDK sends the request on the first Next, so one event is read
	// here to surface a rejection synchronously.
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, mapError(err)
		}
		return nil, fmt.Errorf("%w: empty stream", provider.ErrProviderDown)
	}

	ch := make(chan provider.Delta, streamBuffer)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		relay(ctx, stream, ch)
	}()
	return ch, nil
}

// relay forwards text deltas starting with the event already read by
// Stream. Tool use, thinking and bookkeeping events carry nothing to show.
// A stream that ends without message_stop is truncated and fails.
func relay(ctx context.Context, stream *eventStream, ch chan<- provider.Delta) {
	stopped := false
	for ok := true; ok; ok = stream.Next() {
		if ctx.Err() != nil {
			return
		}
		switch ev := stream.Current().AsAny().(type) {
		case sdkanthropic.MessageStopEvent:
			stopped = true
		case sdkanthropic.ContentBlockDeltaEvent:
			text, isText := ev.Delta.AsAny().(sdkanthropic.TextDelta)
			if !isText || text.Text == "" {
				continue
			}
			if !send(ctx, ch, provider.Delta{Text: text.Text}) {
				return
			}
		}
	}
	if ctx.Err() != nil {
		return
	}
	if err := stream.Err(); err != nil {
		send(ctx, ch, provider.Delta{Err: mapError(err)})
		return
	}
	if !stopped {
		send(ctx, ch, provider.Delta{Err: fmt.Errorf("%w: stream ended before message_stop", provider.ErrProviderDown)})
	}
}

func send(ctx context.Context, ch chan<- provider.Delta, d provider.Delta) bool {
	select {
	case ch <- d:
		return true
	case <-ctx.Done():
		return false
	}
}
