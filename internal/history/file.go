package history

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/chatgate/pkg/conversation"
)

// SnapshotVersion is written into every snapshot envelope.
const SnapshotVersion = 1

const (
	probeName      = ".write_test"
	legacyTimeForm = "2006-01-02 15:04:05"
)

// Snapshot is the on-disk envelope.
type Snapshot struct {
	Version       int                          `json:"version"`
	Conversations []*conversation.Conversation `json:"conversations"`
}

// FilePersister stores the history list as one JSON document. Every save
// fully overwrites the file through a temp file and rename. Concurrent
// processes sharing the file are not coordinated: the last write wins.
type FilePersister struct {
	path   string
	logger *slog.Logger
}

// NewFilePersister returns a persister writing to path.
func NewFilePersister(path string, logger *slog.Logger) *FilePersister {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilePersister{path: path, logger: logger}
}

// DefaultPath returns ~/.chatgate/history/chat_history.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".chatgate", "history", "chat_history.json")
}

// Path returns the snapshot location.
func (p *FilePersister) Path() string { return p.path }

// Available creates the target directory and writes then removes a marker
// file. Read-only or ephemeral disks report false.
func (p *FilePersister) Available(_ context.Context) bool {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		p.logger.Debug("history: storage unavailable", "dir", dir, "error", err)
		return false
	}
	probe := filepath.Join(dir, probeName)
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		p.logger.Debug("history: storage not writable", "dir", dir, "error", err)
		return false
	}
	_ = os.Remove(probe)
	return true
}

// Load implements Persister.
func (p *FilePersister) Load(ctx context.Context) []*conversation.Conversation {
	if !p.Available(ctx) {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		p.logger.Warn("history: reading snapshot failed", "path", p.path, "error", err)
		return nil
	}
	convs, err := decodeSnapshot(data)
	if err != nil {
		p.logger.Warn("history: snapshot unreadable, starting empty", "path", p.path, "error", err)
		return nil
	}
	return convs
}

// Save implements Persister.
func (p *FilePersister) Save(ctx context.Context, entries []*conversation.Conversation) bool {
	if !p.Available(ctx) {
		return false
	}
	data, err := json.MarshalIndent(Snapshot{Version: SnapshotVersion, Conversations: entries}, "", "  ")
	if err != nil {
		p.logger.Warn("history: encoding snapshot failed", "error", err)
		return false
	}
	if err := writeAtomic(p.path, data); err != nil {
		p.logger.Warn("history: writing snapshot failed", "path", p.path, "error", err)
		return false
	}
	return true
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// legacyEntry is the unversioned list format: a bare array with
// "YYYY-MM-DD HH:MM:SS" local timestamps.
type legacyEntry struct {
	ID        string                 `json:"id"`
	Mode      string                 `json:"mode"`
	Timestamp string                 `json:"timestamp"`
	Preview   string                 `json:"preview"`
	Messages  []conversation.Message `json:"messages"`
}

// decodeSnapshot accepts the versioned envelope or the legacy bare array.
func decodeSnapshot(data []byte) ([]*conversation.Conversation, error) {
	var probe json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if len(probe) > 0 && probe[0] == '[' {
		return decodeLegacy(data)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Version > SnapshotVersion {
		return nil, errors.New("history: snapshot version is newer than supported")
	}
	return snap.Conversations, nil
}

func decodeLegacy(data []byte) ([]*conversation.Conversation, error) {
	var entries []legacyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	out := make([]*conversation.Conversation, 0, len(entries))
	for _, e := range entries {
		ts, err := time.ParseInLocation(legacyTimeForm, e.Timestamp, time.Local)
		if err != nil {
			ts = time.Time{}
		}
		out = append(out, &conversation.Conversation{
			ID:        e.ID,
			Mode:      e.Mode,
			Timestamp: ts,
			Preview:   e.Preview,
			Messages:  e.Messages,
		})
	}
	return out, nil
}

var _ Persister = (*FilePersister)(nil)
