package openai

import "time"

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

// Config is the provider.openai section of the configuration file.
type Config struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`

	// Timeout bounds the wait for response headers. A reply that has
	// started streaming is not cut.
	Timeout time.Duration `yaml:"timeout"`

	// SystemRole sends the preamble with the legacy "system" role, for
	// compatible endpoints that reject "developer".
	SystemRole bool `yaml:"system_role"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}
