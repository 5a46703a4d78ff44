// Package reload applies edits of the configuration file to a running
// server.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/telemetry"
)

// Settings is the part of the configuration that can change without a
// restart.
type Settings struct {
	LogLevel       string
	MessagesPerMin int
	MaxSessions    int
}

// SettingsOf extracts the live settings of cfg.
func SettingsOf(cfg *config.Config) Settings {
	return Settings{
		LogLevel:       cfg.Logging.Level,
		MessagesPerMin: cfg.Limits.MessagesPerMin,
		MaxSessions:    cfg.Limits.MaxSessions,
	}
}

// Applier installs new settings on the running server.
type Applier func(Settings) error

// Handler re-reads the configuration file and applies what changed.
type Handler struct {
	path   string
	apply  Applier
	logger *slog.Logger

	mu      sync.Mutex
	current Settings
	frozen  string
}

// NewHandler creates a handler for the file at path. initial is the
// configuration the server started with.
func NewHandler(path string, initial *config.Config, apply Applier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		path:    path,
		apply:   apply,
		logger:  logger,
		current: SettingsOf(initial),
		frozen:  fingerprint(initial),
	}
}

// Current returns the settings in effect.
func (h *Handler) Current() Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Reload loads and validates the file, then applies the live settings if
// they changed. It reports whether anything was applied. An invalid file
// leaves the running settings untouched.
func (h *Handler) Reload(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("reload: %w", err)
	}
	cfg, err := config.Load(h.path)
	if err != nil {
		return false, fmt.Errorf("reload: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return false, fmt.Errorf("reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if fp := fingerprint(cfg); fp != h.frozen {
		h.frozen = fp
		h.logger.Warn("configuration changes outside logging level and limits apply after a restart", "config", h.path)
	}

	next := SettingsOf(cfg)
	if next == h.current {
		return false, nil
	}
	if err := h.apply(next); err != nil {
		return false, fmt.Errorf("reload: apply: %w", err)
	}
	h.current = next
	h.logger.Info("configuration reloaded",
		"log_level", next.LogLevel,
		"messages_per_min", next.MessagesPerMin,
		"max_sessions", next.MaxSessions,
	)
	return true, nil
}

// fingerprint serializes everything a reload cannot apply, so restart-only
// edits can be reported.
func fingerprint(cfg *config.Config) string {
	logging := cfg.Logging
	logging.Level = ""
	modules := make(map[string]*yaml.Node, len(cfg.Modules))
	for id, node := range cfg.Modules {
		modules[id] = &node
	}
	frozen := struct {
		Modules         map[string]*yaml.Node `yaml:"modules"`
		Chat            config.ChatConfig     `yaml:"chat"`
		Logging         config.LoggingConfig  `yaml:"logging"`
		Telemetry       telemetry.Config      `yaml:"telemetry"`
		MaxMessageBytes int                   `yaml:"max_message_bytes"`
	}{modules, cfg.Chat, logging, cfg.Telemetry, cfg.Limits.MaxMessageBytes}

	out, err := yaml.Marshal(frozen)
	if err != nil {
		return ""
	}
	return string(out)
}
