// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ModelConfig describes the OpenAI-compatible chat-completions endpoint the
// agent talks to (Groq by default).
type ModelConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Name        string        `mapstructure:"name" yaml:"name"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// AgentConfig bounds the orchestration loop and the remembered conversation.
type AgentConfig struct {
	// MaxTurns is the number of remembered user/assistant exchanges; the
	// stored history is capped at twice this value.
	MaxTurns int `mapstructure:"max_turns" yaml:"max_turns"`
	// MaxIterations caps model round-trips within a single turn.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// BrowserConfig controls the per-session headless browser handles.
type BrowserConfig struct {
	// Disabled turns remote browser control off entirely; every browser
	// operation fails fast with an actionable hint.
	Disabled bool `mapstructure:"disabled" yaml:"disabled"`
	// RemoteURL, when set, attaches to an already running browser over its
	// DevTools websocket endpoint instead of launching a local process.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// ExecPath optionally pins the local browser executable.
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// SessionConfig bounds in-memory session state.
type SessionConfig struct {
	// TTL is how long an idle session (history or browser handle) survives
	// before the sweeper reclaims it.
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// desktopUserAgent is the override applied to every browser session so basic
// bot checks see an ordinary desktop Chrome.
const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36"

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Server --
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mira-agentd")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Model --
	v.SetDefault("model.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("model.name", "llama-3.3-70b-versatile")
	v.SetDefault("model.temperature", 0.6)
	v.SetDefault("model.api_timeout", "60s")

	// -- Agent --
	v.SetDefault("agent.max_turns", 18)
	v.SetDefault("agent.max_iterations", 4)

	// -- Browser --
	v.SetDefault("browser.disabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.user_agent", desktopUserAgent)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.operation_timeout", "30s")

	// -- Session --
	v.SetDefault("session.ttl", "30m")
	v.SetDefault("session.sweep_interval", "5m")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("model.api_key", "MIRA_MODEL_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Pick the key up directly if Unmarshal did not.
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("MIRA_MODEL_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is a required configuration field")
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be a positive integer")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be a positive integer")
	}
	if c.Model.BaseURL == "" {
		return fmt.Errorf("model.base_url is a required configuration field")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0.0 and 2.0")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if c.Browser.NavigationTimeout <= 0 || c.Browser.OperationTimeout <= 0 {
		return fmt.Errorf("browser timeouts must be positive durations")
	}
	if c.Session.TTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.ttl and session.sweep_interval must be positive durations")
	}
	return nil
}
