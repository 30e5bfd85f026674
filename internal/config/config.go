package config

import (
	"net/url"
	"strings"
	"time"
)

// Config holds client configuration values.
type Config struct {
	// APIBase is the REST base URL, e.g. https://api.promoxa.org/api.
	APIBase string `mapstructure:"api_base" yaml:"api_base"`
	// PushPath is appended to the derived websocket origin.
	PushPath string `mapstructure:"push_path" yaml:"push_path"`

	TokenPath string `mapstructure:"token_path" yaml:"token_path"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`

	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollPageSize int           `mapstructure:"poll_page_size" yaml:"poll_page_size"`

	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBase:        "https://api.promoxa.org/api",
		PushPath:       "/ws/community",
		TokenPath:      "",
		LogLevel:       "info",
		PollInterval:   time.Second,
		PollPageSize:   100,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    10,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBase != "" {
		c.APIBase = other.APIBase
	}
	if other.PushPath != "" {
		c.PushPath = other.PushPath
	}
	if other.TokenPath != "" {
		c.TokenPath = other.TokenPath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.PollInterval != 0 {
		c.PollInterval = other.PollInterval
	}
	if other.PollPageSize != 0 {
		c.PollPageSize = other.PollPageSize
	}
	if other.InitialBackoff != 0 {
		c.InitialBackoff = other.InitialBackoff
	}
	if other.MaxBackoff != 0 {
		c.MaxBackoff = other.MaxBackoff
	}
	if other.MaxAttempts != 0 {
		c.MaxAttempts = other.MaxAttempts
	}
}

// PushEndpoint derives the websocket URL from the REST base: a trailing /api
// suffix is stripped, the scheme switched to ws(s), and PushPath appended.
func (c *Config) PushEndpoint() (string, error) {
	u, err := url.Parse(c.APIBase)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/api")
	u.Path += c.PushPath
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}
