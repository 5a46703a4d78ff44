package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App owns an ordered set of modules and drives them through Start and
// Stop.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []*loaded
}

type loaded struct {
	id      ModuleID
	module  Module
	running bool
}

// NewApp creates an empty App bound to ctx.
func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules builds each module in order (see AppContext.LoadModule). On
// failure every module loaded so far is released and the App is empty.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Close()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.modules = append(a.modules, &loaded{id: ModuleID(id), module: mod})
		a.logger.Debug("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds a module built outside the registry. It starts after
// and stops before everything loaded earlier.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, &loaded{id: id, module: mod})
}

// Module returns the module loaded under id.
func (a *App) Module(id string) (Module, bool) {
	for _, m := range a.modules {
		if string(m.id) == id {
			return m.module, true
		}
	}
	return nil, false
}

// Start runs every Starter in load order. When one fails, those already
// running are stopped in reverse order.
func (a *App) Start() error {
	for _, m := range a.modules {
		s, ok := m.module.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", m.id, "error", err)
			a.Stop()
			return fmt.Errorf("starting module %s: %w", m.id, err)
		}
		m.running = true
		a.logger.Info("module started", "module", m.id)
	}
	return nil
}

// Stop stops running modules in reverse order. Modules that never started
// are left alone.
func (a *App) Stop() {
	a.release(func(m *loaded) bool { return m.running })
}

// Close releases every loaded module in reverse order whether or not it
// was started, then forgets them. Used when modules are only provisioned,
// as by the offline history commands.
func (a *App) Close() {
	a.release(func(*loaded) bool { return true })
	a.modules = nil
}

func (a *App) release(want func(*loaded) bool) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		m := a.modules[i]
		if !want(m) {
			continue
		}
		m.running = false
		s, ok := m.module.(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop failed", "module", m.id, "error", err)
			continue
		}
		a.logger.Debug("module stopped", "module", m.id)
	}
}
