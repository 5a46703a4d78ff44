package conversation

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRole_Visible(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleDeveloper, false},
		{RoleUser, true},
		{RoleAssistant, true},
		{Role("tool"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.Visible(); got != tt.want {
				t.Errorf("Role(%q).Visible() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestRole_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Role
		wantErr bool
	}{
		{"developer", `"developer"`, RoleDeveloper, false},
		{"legacy system", `"system"`, RoleDeveloper, false},
		{"user", `"user"`, RoleUser, false},
		{"assistant", `"assistant"`, RoleAssistant, false},
		{"unknown", `"tool"`, "", true},
		{"not a string", `42`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Role
			err := json.Unmarshal([]byte(tt.input), &r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && r != tt.want {
				t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, r, tt.want)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", 60)

	tests := []struct {
		name string
		msgs []Message
		want string
	}{
		{"no messages", nil, DefaultPreview},
		{"preamble only", []Message{Developer("be nice")}, DefaultPreview},
		{"first user message", []Message{Developer("x"), User("  Hello  "), Assistant("Hi"), User("later")}, "Hello"},
		{"blank user message", []Message{Developer("x"), User("   ")}, DefaultPreview},
		{"truncated by runes", []Message{User(long)}, strings.Repeat("é", 50) + "..."},
		{"exactly fifty", []Message{User(strings.Repeat("a", 50))}, strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.msgs); got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConversation_Lifecycle(t *testing.T) {
	c := New("fast", Developer("rules"))

	if c.ID == "" || !strings.HasPrefix(c.ID, "chat_") {
		t.Fatalf("ID = %q, want chat_ prefix", c.ID)
	}
	if c.HasTurns() {
		t.Fatal("fresh conversation should have no turns")
	}

	c.Append(User("Hello"), Assistant("Hi there"))
	if !c.HasTurns() {
		t.Fatal("expected turns after Append")
	}

	visible := c.Visible()
	if len(visible) != 2 {
		t.Fatalf("Visible() len = %d, want 2", len(visible))
	}
	for _, m := range visible {
		if m.Role == RoleDeveloper {
			t.Error("Visible() must not include the developer message")
		}
	}

	id := c.ID
	c.Reset()
	if c.ID != id {
		t.Errorf("Reset changed ID: %q -> %q", id, c.ID)
	}
	if len(c.Messages) != 1 || c.Messages[0].Content != "rules" {
		t.Errorf("Reset should keep only the preamble, got %+v", c.Messages)
	}
}

func TestConversation_SnapshotIsIndependent(t *testing.T) {
	c := New("fast", Developer("rules"))
	c.Append(User("Hello"))

	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	snap := c.Snapshot(now)

	if !snap.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", snap.Timestamp, now)
	}
	if snap.Preview != "Hello" {
		t.Errorf("Preview = %q, want Hello", snap.Preview)
	}

	c.Append(Assistant("later"))
	if len(snap.Messages) != 2 {
		t.Errorf("snapshot shares backing array with source: len = %d", len(snap.Messages))
	}
}

func TestConversation_EnsurePreamble(t *testing.T) {
	c := &Conversation{ID: "x", Messages: []Message{User("hi")}}
	c.EnsurePreamble(Developer("rules"))

	if c.Messages[0].Role != RoleDeveloper {
		t.Fatalf("first role = %q, want developer", c.Messages[0].Role)
	}
	if len(c.Messages) != 2 {
		t.Fatalf("len = %d, want 2", len(c.Messages))
	}

	c.EnsurePreamble(Developer("other"))
	if len(c.Messages) != 2 {
		t.Errorf("EnsurePreamble should be idempotent, len = %d", len(c.Messages))
	}
}
