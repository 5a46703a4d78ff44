package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/security"
)

// Logging bundles the process logger, the audit logger and the rotating
// files behind them.
type Logging struct {
	Logger *slog.Logger
	Audit  *security.AuditLogger

	// Level is the live threshold of Logger.
	Level *slog.LevelVar

	files []io.Closer
}

// Close flushes and closes the rotating files.
func (l *Logging) Close() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: %w", err)
	}
	return level, nil
}

// NewLogging builds the redacting process logger. Records go to stderr and,
// when logging.file is set, to a rotating file as well. The audit logger
// writes JSON lines to logging.audit_file when set.
func NewLogging(cfg config.LoggingConfig, redactor *security.Redactor, stderr io.Writer) (*Logging, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	l := &Logging{Level: new(slog.LevelVar)}
	l.Level.Set(level)
	out := stderr
	if cfg.File != "" {
		file, err := rotatingFile(cfg.File, cfg)
		if err != nil {
			return nil, err
		}
		l.files = append(l.files, file)
		out = io.MultiWriter(stderr, file)
	}

	opts := &slog.HandlerOptions{Level: l.Level}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(out, opts)
	} else {
		inner = slog.NewTextHandler(out, opts)
	}
	l.Logger = slog.New(security.NewRedactingHandler(inner, redactor))

	auditCfg := security.AuditLoggerConfig{Redactor: redactor}
	if cfg.AuditFile != "" {
		file, err := rotatingFile(cfg.AuditFile, cfg)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		l.files = append(l.files, file)
		auditCfg.Writer = file
	}
	l.Audit = security.NewAuditLogger(auditCfg)
	return l, nil
}

func rotatingFile(path string, cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("logging: create directory for %s: %w", path, err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}
