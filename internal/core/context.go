// Package core provides the module system of chatgate: a catalog of
// compiled-in modules, the context they are provisioned with and the App
// that starts and stops them.
package core

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// AppContext is handed to modules during provisioning. Contexts derived
// with WithModuleConfigs or ForModule share one service registry.
type AppContext struct {
	// Logger is scoped to the module being provisioned.
	Logger *slog.Logger

	// DataDir holds persistent data such as history databases.
	DataDir string

	root     *slog.Logger
	configs  map[string]yaml.Node
	services *serviceRegistry
}

// NewAppContext creates a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: newServiceRegistry(),
	}
}

// WithModuleConfigs returns a copy carrying the raw configuration node of
// each module, keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.configs = configs
	return &cp
}

// ForModule returns a copy whose Logger tags records with the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// phase is one step of bringing a module up.
type phase struct {
	name string
	run  func(ctx *AppContext, id ModuleID, mod Module) error
}

// loadPhases run in order: Configure (only when the module has a config
// node), Provision, then Validate.
var loadPhases = []phase{
	{"configuring", func(ctx *AppContext, id ModuleID, mod Module) error {
		c, ok := mod.(Configurable)
		if !ok {
			return nil
		}
		node, ok := ctx.configs[string(id)]
		if !ok {
			return nil
		}
		return c.Configure(&node)
	}},
	{"provisioning", func(ctx *AppContext, id ModuleID, mod Module) error {
		if p, ok := mod.(Provisioner); ok {
			return p.Provision(ctx.ForModule(id))
		}
		return nil
	}},
	{"validating", func(_ *AppContext, _ ModuleID, mod Module) error {
		if v, ok := mod.(Validator); ok {
			return v.Validate()
		}
		return nil
	}},
}

// LoadModule instantiates the registered module id and runs it through
// the load phases.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	mod := info.New()
	for _, p := range loadPhases {
		if err := p.run(ctx, info.ID, mod); err != nil {
			return nil, fmt.Errorf("%s module %s: %w", p.name, id, err)
		}
	}
	return mod, nil
}
