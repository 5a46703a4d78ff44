// Package provider defines how chat sessions reach a completion endpoint
// and the registry that maps mode providers to live implementations.
package provider

import (
	"context"

	"github.com/flemzord/chatgate/pkg/conversation"
)

// Provider streams the next assistant turn of a conversation. Concrete
// implementations live in modules/provider/* and are also core modules.
type Provider interface {
	// Stream starts a reply. A rejected request fails here; a failure
	// after the first fragment arrives as a final Delta.Err. The channel
	// is closed when the reply ends or ctx is cancelled.
	Stream(ctx context.Context, req Request) (<-chan Delta, error)

	// ModelName is the model used when a request names none.
	ModelName() string
}

// Request asks for the reply to Messages, which start with the developer
// preamble and end with the user's message.
type Request struct {
	Model       string
	Messages    []conversation.Message
	Temperature float64
}

// Delta is one streamed fragment of a reply. Text may be empty.
type Delta struct {
	Text string
	Err  error
}
