package anthropic

import "time"

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096

	// defaultTimeout bounds the wait for response headers only.
	defaultTimeout = 30 * time.Second
)

// Config is the provider.anthropic section of the configuration file.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}
