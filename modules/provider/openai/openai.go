// Package openai implements the provider.openai module: streamed chat
// completions against the OpenAI API or any endpoint speaking its
// /chat/completions dialect.
package openai

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/chatgate/internal/core"
	"github.com/flemzord/chatgate/internal/provider"
)

// envAPIKey is read when the config leaves api_key empty.
const envAPIKey = "OPENAI_API_KEY"

func init() {
	core.RegisterModule(&Provider{})
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ core.Configurable = (*Provider)(nil)
	_ core.Provisioner  = (*Provider)(nil)
	_ core.Validator    = (*Provider)(nil)
)

// Provider is the provider.openai module.
type Provider struct {
	config Config
	logger *slog.Logger
	client *http.Client
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.config.BaseURL = strings.TrimRight(p.config.BaseURL, "/")
	p.logger = ctx.Logger

	if p.config.APIKey == "" {
		p.config.APIKey = os.Getenv(envAPIKey)
	}

	// A client-wide Timeout would cut long replies mid-stream, so only the
	// wait for headers is bounded. The request context covers the rest.
	p.client = &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: p.config.Timeout,
	}}

	ctx.RegisterService("provider.openai", p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	if p.config.APIKey == "" {
		return fmt.Errorf("provider.openai: api_key is required (or set %s)", envAPIKey)
	}
	if p.config.Model == "" {
		return errors.New("provider.openai: model is required")
	}
	if p.config.Timeout < 0 {
		return fmt.Errorf("provider.openai: timeout must be positive, got %s", p.config.Timeout)
	}
	if !strings.HasPrefix(p.config.BaseURL, "http://") && !strings.HasPrefix(p.config.BaseURL, "https://") {
		return fmt.Errorf("provider.openai: base_url %q must be an http(s) URL", p.config.BaseURL)
	}
	return nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// Secrets returns values that must never appear in logs.
func (p *Provider) Secrets() []string {
	return []string{p.config.APIKey}
}
