package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/chatgate/internal/history"
	"github.com/flemzord/chatgate/pkg/conversation"
)

// Persister stores the history list in two tables. Every Save replaces the
// whole list inside one transaction.
type Persister struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ history.Persister = (*Persister)(nil)

func (p *Persister) log() *slog.Logger {
	if p.logger == nil {
		return slog.Default()
	}
	return p.logger
}

// Available pings the database.
func (p *Persister) Available(ctx context.Context) bool {
	if err := p.db.PingContext(ctx); err != nil {
		p.log().Debug("sqlite: history storage unavailable", "error", err)
		return false
	}
	return true
}

// Load implements history.Persister.
func (p *Persister) Load(ctx context.Context) []*conversation.Conversation {
	if !p.Available(ctx) {
		return nil
	}
	convs, err := p.load(ctx)
	if err != nil {
		p.log().Warn("sqlite: loading history failed, starting empty", "error", err)
		return nil
	}
	return convs
}

func (p *Persister) load(ctx context.Context) ([]*conversation.Conversation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, mode, saved_at, preview
		FROM conversations
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query conversations: %w", err)
	}
	var convs []*conversation.Conversation
	byID := make(map[string]*conversation.Conversation)
	for rows.Next() {
		var (
			c       conversation.Conversation
			savedAt string
		)
		if err := rows.Scan(&c.ID, &c.Mode, &savedAt, &c.Preview); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
			c.Timestamp = ts
		}
		convs = append(convs, &c)
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("sqlite: conversation rows: %w", err)
	}
	_ = rows.Close()

	msgRows, err := p.db.QueryContext(ctx, `
		SELECT conversation_id, role, content
		FROM messages
		ORDER BY conversation_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query messages: %w", err)
	}
	defer func() { _ = msgRows.Close() }()

	for msgRows.Next() {
		var (
			convID, role, content string
		)
		if err := msgRows.Scan(&convID, &role, &content); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		c, ok := byID[convID]
		if !ok {
			continue
		}
		r := conversation.Role(role)
		if !r.Valid() {
			return nil, fmt.Errorf("sqlite: conversation %s: unknown role %q", convID, role)
		}
		c.Messages = append(c.Messages, conversation.Message{Role: r, Content: content})
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: message rows: %w", err)
	}
	return convs, nil
}

// Save implements history.Persister.
func (p *Persister) Save(ctx context.Context, entries []*conversation.Conversation) bool {
	if !p.Available(ctx) {
		return false
	}
	if err := p.save(ctx, entries); err != nil {
		p.log().Warn("sqlite: saving history failed", "error", err)
		return false
	}
	return true
}

func (p *Persister) save(ctx context.Context, entries []*conversation.Conversation) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("sqlite: clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return fmt.Errorf("sqlite: clear conversations: %w", err)
	}

	convStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (id, position, mode, saved_at, preview)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare conversation insert: %w", err)
	}
	defer func() { _ = convStmt.Close() }()

	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, seq, role, content)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare message insert: %w", err)
	}
	defer func() { _ = msgStmt.Close() }()

	for pos, c := range entries {
		savedAt := c.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, err := convStmt.ExecContext(ctx, c.ID, pos, c.Mode, savedAt, c.Preview); err != nil {
			return fmt.Errorf("sqlite: insert conversation %s: %w", c.ID, err)
		}
		for seq, m := range c.Messages {
			if _, err := msgStmt.ExecContext(ctx, c.ID, seq, string(m.Role), m.Content); err != nil {
				return fmt.Errorf("sqlite: insert message %s/%d: %w", c.ID, seq, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
