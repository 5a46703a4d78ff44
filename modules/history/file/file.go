// Package file registers the JSON snapshot history persister as a module.
package file

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

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
)

// Config holds the file history module configuration.
type Config struct {
	// Path of the snapshot. Defaults to ~/.chatgate/history/chat_history.json.
	// A leading "~/" is expanded to the home directory.
	Path string `yaml:"path"`
}

// Module publishes a history.FilePersister under history.ServiceName.
type Module struct {
	config    Config
	logger    *slog.Logger
	persister *history.FilePersister
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "history.file",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("history.file: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger

	path, err := expandHome(m.config.Path)
	if err != nil {
		return fmt.Errorf("history.file: %w", err)
	}
	if path == "" {
		path = history.DefaultPath()
	}
	m.config.Path = path

	m.persister = history.NewFilePersister(path, ctx.Logger)
	ctx.RegisterService(history.ServiceName, history.Persister(m.persister))

	m.logger.Info("file history module provisioned", "path", path)
	return nil
}

// Validate implements core.Validator. An unwritable location is not an
// error: history then stays in memory.
func (m *Module) Validate() error {
	if m.config.Path == "" {
		return errors.New("history.file: path is empty")
	}
	if !filepath.IsAbs(m.config.Path) {
		return fmt.Errorf("history.file: path %q must be absolute", m.config.Path)
	}
	return nil
}

// Persister returns the underlying persister.
func (m *Module) Persister() *history.FilePersister {
	return m.persister
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, p[2:]), nil
}
