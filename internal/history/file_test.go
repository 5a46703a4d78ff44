package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/flemzord/chatgate/pkg/conversation"
)

func TestFilePersister_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history", "chat_history.json")
	p := NewFilePersister(path, nil)

	if !p.Available(ctx) {
		t.Fatal("temp dir should be available")
	}

	want := []*conversation.Conversation{chat("b", "second"), chat("a", "première")}
	if !p.Save(ctx, want) {
		t.Fatal("Save returned false")
	}

	got := p.Load(ctx)
	if len(got) != 2 {
		t.Fatalf("Load returned %d entries, want 2", len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Mode != want[i].Mode || got[i].Preview != want[i].Preview {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("entry %d timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if len(got[i].Messages) != len(want[i].Messages) {
			t.Fatalf("entry %d has %d messages, want %d", i, len(got[i].Messages), len(want[i].Messages))
		}
		for j := range want[i].Messages {
			if got[i].Messages[j] != want[i].Messages[j] {
				t.Errorf("entry %d message %d = %+v, want %+v", i, j, got[i].Messages[j], want[i].Messages[j])
			}
		}
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(path), probeName)); !os.IsNotExist(err) {
		t.Error("probe marker should be removed")
	}
}

func TestFilePersister_WritesVersionedEnvelope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat_history.json")
	p := NewFilePersister(path, nil)
	p.Save(ctx, []*conversation.Conversation{chat("a", "hi")})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("snapshot is not an object: %v", err)
	}
	if string(raw["version"]) != "1" {
		t.Errorf("version = %s, want 1", raw["version"])
	}

	entries, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFilePersister_MissingAndCorrupt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	missing := NewFilePersister(filepath.Join(dir, "none.json"), nil)
	if got := missing.Load(ctx); len(got) != 0 {
		t.Errorf("Load(missing) = %d entries, want 0", len(got))
	}

	corruptPath := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corruptPath, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := NewFilePersister(corruptPath, nil).Load(ctx); len(got) != 0 {
		t.Errorf("Load(corrupt) = %d entries, want 0", len(got))
	}

	badRole := filepath.Join(dir, "badrole.json")
	body := `{"version":1,"conversations":[{"id":"x","messages":[{"role":"tool","content":"?"}]}]}`
	if err := os.WriteFile(badRole, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := NewFilePersister(badRole, nil).Load(ctx); len(got) != 0 {
		t.Errorf("Load(bad role) = %d entries, want 0", len(got))
	}
}

func TestFilePersister_LegacyArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chat_history.json")
	body := `[{"id":"chat_20240101_101500_000001","timestamp":"2024-01-01 10:15:00","preview":"Hi","mode":"fast",
	  "messages":[{"role":"system","content":"rules"},{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello"}]}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	got := NewFilePersister(path, nil).Load(context.Background())
	if len(got) != 1 {
		t.Fatalf("Load = %d entries, want 1", len(got))
	}
	if got[0].Messages[0].Role != conversation.RoleDeveloper {
		t.Errorf("legacy system role = %q, want developer", got[0].Messages[0].Role)
	}
	want := time.Date(2024, 1, 1, 10, 15, 0, 0, time.Local)
	if !got[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, want)
	}
}

func TestFilePersister_Unavailable(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	ctx := context.Background()
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	p := NewFilePersister(filepath.Join(dir, "sub", "chat_history.json"), nil)
	if p.Available(ctx) {
		t.Fatal("read-only directory should be unavailable")
	}
	if p.Save(ctx, []*conversation.Conversation{chat("a", "x")}) {
		t.Error("Save on unavailable medium should report false")
	}
	if got := p.Load(ctx); len(got) != 0 {
		t.Errorf("Load on unavailable medium = %d entries", len(got))
	}
}

func TestFilePersister_UnavailableUnderRegularFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewFilePersister(filepath.Join(blocker, "history", "chat_history.json"), nil)
	if p.Available(ctx) {
		t.Fatal("a path below a regular file should be unavailable")
	}
	if p.Save(ctx, []*conversation.Conversation{chat("a", "x")}) {
		t.Error("Save on unavailable medium should report false")
	}
	if got := p.Load(ctx); len(got) != 0 {
		t.Errorf("Load on unavailable medium = %d entries", len(got))
	}

	s := NewStore(StoreConfig{Persister: p})
	s.Upsert(ctx, chat("a", "x"))
	if s.Len() != 1 || !s.Stale() {
		t.Errorf("store len = %d, stale = %v; want the entry kept in memory and marked stale", s.Len(), s.Stale())
	}
}

func TestStore_WithFilePersister(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat_history.json")

	first := NewStore(StoreConfig{Persister: NewFilePersister(path, nil)})
	first.Upsert(ctx, chat("a", "hello"))
	first.Upsert(ctx, chat("b", "world"))

	second := NewStore(StoreConfig{Persister: NewFilePersister(path, nil)})
	if n := second.Load(ctx); n != 2 {
		t.Fatalf("restarted store loaded %d entries, want 2", n)
	}
	if got := second.All()[0].ID; got != "b" {
		t.Errorf("first entry = %s, want b", got)
	}
}
