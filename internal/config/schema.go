// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for chatgate.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/chatgate/internal/session"
	"github.com/flemzord/chatgate/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.openai").
	Modules map[string]yaml.Node `yaml:"modules"`

	Chat      ChatConfig       `yaml:"chat"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Limits    LimitsConfig     `yaml:"limits"`
	Reload    ReloadConfig     `yaml:"reload"`
}

// ChatConfig shapes every session: instructions, modes and history size.
type ChatConfig struct {
	// Preamble replaces the built-in developer instructions when set.
	Preamble    string         `yaml:"preamble"`
	DefaultMode string         `yaml:"default_mode"`
	Modes       []session.Mode `yaml:"modes"`

	// MaxChats bounds the saved history. Zero means 50.
	MaxChats int `yaml:"max_chats"`

	TranscriptTitle string `yaml:"transcript_title"`
	FontDir         string `yaml:"font_dir"`
}

// LoggingConfig selects the log format, level and optional rotating file.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json

	// File enables a rotating log file in addition to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`

	// AuditFile receives JSONL audit events (logins, logouts, rate limits).
	AuditFile string `yaml:"audit_file"`
}

// LimitsConfig bounds what one browser session may do.
type LimitsConfig struct {
	MessagesPerMin  int `yaml:"messages_per_min"`
	MaxSessions     int `yaml:"max_sessions"`
	MaxMessageBytes int `yaml:"max_message_bytes"`
}

// ReloadConfig controls how edits to the configuration file reach a
// running server. SIGHUP always triggers a reload.
type ReloadConfig struct {
	// PollInterval is how often the file is checked for changes. Zero
	// means DefaultPollInterval; a negative value disables polling.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default values applied by ApplyDefaults.
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultMaxSizeMB      = 10
	DefaultMaxBackups     = 3
	DefaultMaxAgeDays     = 28
	DefaultMessagesPerMin = 20
	DefaultMaxSessions    = 100
	DefaultPollInterval   = 5 * time.Second
)

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultMaxAgeDays
	}
	if c.Limits.MessagesPerMin == 0 {
		c.Limits.MessagesPerMin = DefaultMessagesPerMin
	}
	if c.Limits.MaxSessions == 0 {
		c.Limits.MaxSessions = DefaultMaxSessions
	}
	if c.Reload.PollInterval == 0 {
		c.Reload.PollInterval = DefaultPollInterval
	}
}

// ModeTable builds the mode table. Without configured modes the built-in
// table is used, optionally with another default mode.
func (c *Config) ModeTable() (*session.Modes, error) {
	if len(c.Chat.Modes) == 0 {
		builtin := session.DefaultModes()
		if c.Chat.DefaultMode == "" {
			return builtin, nil
		}
		return session.NewModes(builtin.List(), c.Chat.DefaultMode)
	}
	return session.NewModes(c.Chat.Modes, c.Chat.DefaultMode)
}
