// Package conversation defines the data contract shared by the session
// controller, the history store, the persistence adapters and the exporter.
package conversation

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a Message.
type Role string

// Supported roles. The set is closed: Valid rejects anything else.
const (
	// RoleDeveloper carries the fixed behavioural instructions. It is sent to
	// the completion endpoint but never displayed or exported.
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDeveloper, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Visible reports whether messages with this role appear in the page and in
// exported transcripts.
func (r Role) Visible() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label is the display name used in transcript headers.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return "Developer"
	}
}

// UnmarshalJSON accepts the legacy "system" spelling for the preamble role
// so snapshots written by older revisions still load.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "system" {
		s = string(RoleDeveloper)
	}
	role := Role(s)
	if !role.Valid() {
		return fmt.Errorf("conversation: unknown role %q", s)
	}
	*r = role
	return nil
}

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Developer returns a preamble message with the given instructions.
func Developer(content string) Message {
	return Message{Role: RoleDeveloper, Content: content}
}

// User returns a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
