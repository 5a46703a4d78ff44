package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] brings the schema from user_version i to i+1. Append only.
var migrations = [][]string{
	{
		`CREATE TABLE conversations (
			id       TEXT    PRIMARY KEY,
			position INTEGER NOT NULL,
			mode     TEXT    NOT NULL DEFAULT '',
			saved_at TEXT    NOT NULL,
			preview  TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE messages (
			conversation_id TEXT    NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			seq             INTEGER NOT NULL,
			role            TEXT    NOT NULL,
			content         TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY (conversation_id, seq)
		)`,
		`CREATE INDEX idx_conversations_position ON conversations(position)`,
	},
}

// migrate applies pending migrations, each in its own transaction, and
// records progress in PRAGMA user_version.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("history.sqlite: read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("history.sqlite: schema version %d is newer than this build (%d)", version, len(migrations))
	}
	for v := version; v < len(migrations); v++ {
		if err := step(ctx, db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func step(ctx context.Context, db *sql.DB, to int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history.sqlite: migration %d: %w", to, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history.sqlite: migration %d: %w", to, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", to)); err != nil {
		return fmt.Errorf("history.sqlite: migration %d: %w", to, err)
	}
	return tx.Commit()
}
