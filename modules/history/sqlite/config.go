package sqlite

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	defaultFile        = "history.db"
	defaultJournalMode = "wal"
	defaultBusyTimeout = 5 * time.Second
)

var journalModes = []string{"wal", "delete", "truncate", "persist", "memory"}

// Config is the history.sqlite section of the configuration file.
type Config struct {
	// Path of the database file. Empty means <data_dir>/history.db.
	Path string `yaml:"path"`

	// JournalMode is the SQLite journal_mode, "wal" unless set.
	JournalMode string `yaml:"journal_mode"`

	// BusyTimeout is how long a statement waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

func (c *Config) defaults() {
	c.JournalMode = strings.ToLower(c.JournalMode)
	if c.JournalMode == "" {
		c.JournalMode = defaultJournalMode
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

func (c *Config) validate() error {
	if !slices.Contains(journalModes, c.JournalMode) {
		return fmt.Errorf("history.sqlite: journal_mode %q is not one of %s", c.JournalMode, strings.Join(journalModes, ", "))
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("history.sqlite: busy_timeout must not be negative, got %s", c.BusyTimeout)
	}
	return nil
}

// dsn builds a modernc.org/sqlite data source name. Pragmas given as
// _pragma parameters are applied to every new connection of the pool.
func (c *Config) dsn() string {
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()),
		"foreign_keys(1)",
		fmt.Sprintf("journal_mode(%s)", c.JournalMode),
	}
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(c.Path)
	for i, p := range pragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}
