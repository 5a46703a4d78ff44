package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/chatgate/internal/core"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the structural validity of a Config: version, module ids
// against the registry, the mode table and the ambient sections. All
// problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	var providers, histories []string
	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		switch core.ModuleID(id).Namespace() {
		case "provider":
			providers = append(providers, id)
		case "history":
			histories = append(histories, id)
		}
	}
	if len(cfg.Modules) > 0 && len(providers) == 0 {
		errs = append(errs, errors.New("config: at least one provider module must be configured"))
	}
	if len(histories) > 1 {
		errs = append(errs, fmt.Errorf("config: at most one history module may be configured, got %v", histories))
	}

	errs = append(errs, validateChat(cfg, providers)...)
	errs = append(errs, validateLogging(cfg.Logging)...)
	errs = append(errs, validateLimits(cfg.Limits)...)

	return errors.Join(errs...)
}

func validateChat(cfg *Config, providers []string) []error {
	if cfg.Chat.MaxChats < 0 {
		return []error{fmt.Errorf("config: chat.max_chats must not be negative, got %d", cfg.Chat.MaxChats)}
	}
	modes, err := cfg.ModeTable()
	if err != nil {
		return []error{fmt.Errorf("config: chat.modes: %w", err)}
	}
	if len(providers) == 0 {
		return nil
	}
	var errs []error
	for _, m := range modes.List() {
		if !slices.Contains(providers, m.Provider) {
			errs = append(errs, fmt.Errorf("config: mode %q uses provider %q which is not configured", m.ID, m.Provider))
		}
	}
	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	if !slices.Contains(logLevels, l.Level) {
		errs = append(errs, fmt.Errorf("config: logging.level %q must be one of %v", l.Level, logLevels))
	}
	if !slices.Contains(logFormats, l.Format) {
		errs = append(errs, fmt.Errorf("config: logging.format %q must be one of %v", l.Format, logFormats))
	}
	return errs
}

func validateLimits(l LimitsConfig) []error {
	var errs []error
	if l.MessagesPerMin < 0 {
		errs = append(errs, fmt.Errorf("config: limits.messages_per_min must not be negative, got %d", l.MessagesPerMin))
	}
	if l.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("config: limits.max_sessions must not be negative, got %d", l.MaxSessions))
	}
	if l.MaxMessageBytes < 0 {
		errs = append(errs, fmt.Errorf("config: limits.max_message_bytes must not be negative, got %d", l.MaxMessageBytes))
	}
	return errs
}
