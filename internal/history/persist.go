package history

import (
	"context"

	"github.com/flemzord/chatgate/pkg/conversation"
)

// Persister is a best-effort storage medium for the history list.
// Implementations never return errors: failures are logged and reported
// through the boolean results. Availability is re-checked on every call.
type Persister interface {
	// Available probes the medium.
	Available(ctx context.Context) bool

	// Load returns the stored entries, most recent first. It returns an
	// empty slice when the medium is unavailable, absent or unparseable.
	Load(ctx context.Context) []*conversation.Conversation

	// Save overwrites the stored entries. It reports false when the medium
	// was unavailable or the write failed.
	Save(ctx context.Context, entries []*conversation.Conversation) bool
}

// ServiceName is the AppContext service under which the active Persister is published.
const ServiceName = "history.persister"

// NopPersister keeps history in memory only.
type NopPersister struct{}

// Available implements Persister.
func (NopPersister) Available(context.Context) bool { return false }

// Load implements Persister.
func (NopPersister) Load(context.Context) []*conversation.Conversation { return nil }

// Save implements Persister.
func (NopPersister) Save(context.Context, []*conversation.Conversation) bool { return false }

var _ Persister = NopPersister{}
