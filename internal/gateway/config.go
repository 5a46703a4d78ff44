package gateway

import "time"

// DefaultCookieName names the browser session cookie.
const DefaultCookieName = "chatgate_session"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind string `yaml:"bind"`

	// Passcode is the shared secret checked by the login form.
	Passcode string `yaml:"passcode"`

	// SessionTTL is how long an idle browser session survives.
	SessionTTL time.Duration `yaml:"session_ttl"`

	CookieName string `yaml:"cookie_name"`

	// SecureCookie sets the Secure attribute. Enable behind TLS.
	SecureCookie bool `yaml:"secure_cookie"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// Metrics exposes /metrics. Defaults to true.
	Metrics *bool `yaml:"metrics"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.Metrics == nil {
		enabled := true
		c.Metrics = &enabled
	}
}
