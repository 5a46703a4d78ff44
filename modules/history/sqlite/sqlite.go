// Package sqlite provides the history.sqlite module, which keeps the saved
// conversation list in a SQLite database through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/chatgate/internal/core"
	"github.com/flemzord/chatgate/internal/history"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the database handle and publishes a history.Persister.
type Module struct {
	config    Config
	logger    *slog.Logger
	db        *sql.DB
	persister *Persister
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "history.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("history.sqlite: %w", err)
	}
	return nil
}

// Provision opens the database, so a bad path fails at startup rather than
// on the first save.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	if err := m.config.validate(); err != nil {
		return err
	}
	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultFile)
	}
	m.logger = ctx.Logger

	db, err := open(context.Background(), m.config)
	if err != nil {
		return err
	}
	m.db = db
	m.persister = &Persister{db: db, logger: m.logger}
	ctx.RegisterService(history.ServiceName, history.Persister(m.persister))

	m.logger.Info("history database ready", "path", m.config.Path, "journal_mode", m.config.JournalMode)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.db == nil {
		return fmt.Errorf("history.sqlite: database not opened")
	}
	return m.db.PingContext(context.Background())
}

// Stop closes the database.
func (m *Module) Stop(context.Context) error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// Persister returns the persister published by Provision.
func (m *Module) Persister() *Persister {
	return m.persister
}
