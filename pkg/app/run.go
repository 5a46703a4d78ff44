// Package app provides the shared entry point of the chatgate binary: it
// loads the configuration, wires the modules and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/core"
	"github.com/flemzord/chatgate/internal/reload"
	"github.com/flemzord/chatgate/internal/security"
	"github.com/flemzord/chatgate/internal/telemetry"
)

// telemetryShutdownTimeout bounds the final span flush.
const telemetryShutdownTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.Find searches the standard locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// Stderr receives log output. Defaults to os.Stderr.
	Stderr io.Writer
}

// Instance is a started application.
type Instance struct {
	Runtime *Runtime

	app       *core.App
	appCtx    *core.AppContext
	logging   *Logging
	telemetry telemetry.ShutdownFunc

	stopReload func()
}

// Start loads and validates the configuration, starts every module and
// returns without blocking.
func Start(params RunParams) (*Instance, error) {
	cfgPath, err := config.Find(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	// Taken before reading so an edit racing the load is reloaded.
	loadedAt := reload.ModTime(cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	stderr := params.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	redactor := security.NewRedactor()
	logging, err := NewLogging(cfg.Logging, redactor, stderr)
	if err != nil {
		return nil, err
	}
	logger := logging.Logger
	logger.Info("starting chatgate", "version", params.Version, "commit", params.Commit, "config", cfgPath)

	inst := &Instance{logging: logging}
	ctx := context.Background()
	inst.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, params.Version, logger)
	if err != nil {
		_ = logging.Close()
		return nil, err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("config.path", cfgPath)

	inst.appCtx = appCtx
	inst.app = core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := inst.app.LoadModules(ids); err != nil {
		inst.shutdownAmbient()
		return nil, err
	}

	inst.Runtime, err = wire(ctx, wireParams{
		app:      inst.app,
		appCtx:   appCtx,
		cfg:      cfg,
		ids:      ids,
		logger:   logger,
		audit:    logging.Audit,
		redactor: redactor,
	})
	if err != nil {
		inst.app.Stop()
		inst.shutdownAmbient()
		return nil, err
	}

	if err := inst.app.Start(); err != nil {
		inst.shutdownAmbient()
		return nil, err
	}
	inst.watchConfig(cfgPath, cfg, loadedAt)
	return inst, nil
}

// watchConfig reloads the live settings when the file changes or the
// process receives SIGHUP.
func (i *Instance) watchConfig(path string, cfg *config.Config, loadedAt time.Time) {
	logger := i.logging.Logger
	handler := reload.NewHandler(path, cfg, i.applySettings, logger.With("component", "reload"))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	w := &reload.Watcher{
		Path:     path,
		Interval: cfg.Reload.PollInterval,
		Signals:  hup,
		Since:    loadedAt,
		Reload: func(ctx context.Context) {
			changed, err := handler.Reload(ctx)
			if err != nil {
				logger.Error("configuration reload failed", "error", err)
				return
			}
			if changed {
				i.logging.Audit.Log(security.AuditEvent{Type: security.EventConfigReload, Detail: path})
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	i.stopReload = func() {
		signal.Stop(hup)
		cancel()
		<-done
	}
}

// applySettings installs reloaded live settings.
func (i *Instance) applySettings(s reload.Settings) error {
	level, err := ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	i.logging.Level.Set(level)
	i.Runtime.Limiter.SetLimit(s.MessagesPerMin)
	i.Runtime.Sessions.SetMaxSessions(s.MaxSessions)
	return nil
}

// Stop stops every module in reverse order, flushes spans and closes the
// log files.
func (i *Instance) Stop() {
	if i.stopReload != nil {
		i.stopReload()
	}
	i.app.Stop()
	i.logging.Logger.Info("shutdown complete")
	i.shutdownAmbient()
}

func (i *Instance) shutdownAmbient() {
	if i.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := i.telemetry(ctx); err != nil {
			i.logging.Logger.Warn("telemetry shutdown", "error", err)
		}
	}
	_ = i.logging.Close()
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func Run(params RunParams) error {
	inst, err := Start(params)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	inst.logging.Logger.Info("shutdown signal received", "signal", sig.String())
	inst.Stop()
	return nil
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/chatgate if set, otherwise ~/.local/share/chatgate (XDG base directories).
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "chatgate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "chatgate")
}

// Describe loads and validates a configuration and reports the module ids
// it would load. Used by "config check".
func Describe(path string) ([]string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config.Resolve(cfg), nil
}
