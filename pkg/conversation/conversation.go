package conversation

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// previewLimit is the number of runes kept from the first user message.
const previewLimit = 50

// DefaultPreview is shown for conversations without a usable user message.
const DefaultPreview = "New Chat"

// Conversation is an ordered sequence of messages plus save metadata.
// Messages[0] is always the developer preamble.
type Conversation struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
	Preview   string    `json:"preview"`
	Messages  []Message `json:"messages"`
}

// NewID mints a fresh conversation identifier.
func NewID() string {
	return "chat_" + uuid.NewString()
}

// New creates a fresh conversation holding only the preamble.
func New(mode string, preamble Message) *Conversation {
	return &Conversation{
		ID:       NewID(),
		Mode:     mode,
		Messages: []Message{preamble},
	}
}

// Preamble returns the leading developer message.
func (c *Conversation) Preamble() Message {
	if len(c.Messages) == 0 {
		return Message{Role: RoleDeveloper}
	}
	return c.Messages[0]
}

// HasTurns reports whether the conversation holds anything beyond the
// preamble. Conversations without turns are never stored.
func (c *Conversation) HasTurns() bool {
	return len(c.Messages) > 1
}

// Visible returns the messages that may be displayed or exported, in order.
func (c *Conversation) Visible() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role.Visible() {
			out = append(out, m)
		}
	}
	return out
}

// Append adds messages at the end of the conversation.
func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
}

// Reset drops every message except the preamble. The id is kept.
func (c *Conversation) Reset() {
	c.Messages = []Message{c.Preamble()}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = slices.Clone(c.Messages)
	return &cp
}

// Snapshot returns a copy stamped with the save time and a fresh preview.
func (c *Conversation) Snapshot(now time.Time) *Conversation {
	cp := c.Clone()
	cp.Timestamp = now
	cp.Preview = Preview(cp.Messages)
	return cp
}

// Preview derives the display string from the first user message:
// trimmed, cut to 50 runes with a trailing "...".
func Preview(msgs []Message) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			return DefaultPreview
		}
		if utf8.RuneCountInString(text) > previewLimit {
			return string([]rune(text)[:previewLimit]) + "..."
		}
		return text
	}
	return DefaultPreview
}

// EnsurePreamble prepends p when the conversation does not start with a
// developer message, restoring the leading-preamble invariant.
func (c *Conversation) EnsurePreamble(p Message) {
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleDeveloper {
		return
	}
	c.Messages = append([]Message{p}, c.Messages...)
}
