// Package config holds the ai-pay service configuration: YAML file plus
// environment overrides, with safe defaults for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ai-pay configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// LLM provider
	LLM LLMConfig `yaml:"llm"`

	// Browser session
	Browser BrowserConfig `yaml:"browser"`

	// Default contact fields used to fill checkout forms
	Contact ContactConfig `yaml:"contact"`

	// Payment card fields (test/sandbox values only)
	Card CardConfig `yaml:"card"`

	// Order ledger
	Ledger LedgerConfig `yaml:"ledger"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig configures the LLM provider used to drive the browsing agent.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // groq, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// TimeoutDuration parses the configured timeout, falling back to two minutes.
func (l LLMConfig) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(l.Timeout); err == nil && d > 0 {
		return d
	}
	return 2 * time.Minute
}

// BrowserConfig configures the shared browsing session.
type BrowserConfig struct {
	Headless            bool   `yaml:"headless"`
	Bin                 string `yaml:"bin"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	MaxAgentSteps       int    `yaml:"max_agent_steps"`
}

// NavigationTimeout returns the navigation timeout as a duration.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.NavigationTimeoutMs) * time.Millisecond
}

// ContactConfig holds default contact details for checkout forms.
type ContactConfig struct {
	Phone    string `yaml:"phone"`
	Email    string `yaml:"email"`
	FullName string `yaml:"full_name"`
}

// CardConfig holds payment card fields. Defaults are well-known test values;
// production deployments must override them from the environment.
type CardConfig struct {
	Number     string `yaml:"number"`
	Expiry     string `yaml:"expiry"`
	CVV        string `yaml:"cvv"`
	Cardholder string `yaml:"cardholder"`
}

// LedgerConfig selects the order ledger backend.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	Path    string `yaml:"path"`    // sqlite only
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ai-pay",
		Version: "0.1.0",

		Server: ServerConfig{
			Host: "localhost",
			Port: 8001,
		},

		LLM: LLMConfig{
			Provider:    "groq",
			Model:       "meta-llama/llama-4-maverick-17b-128e-instruct",
			BaseURL:     "https://api.groq.com/openai/v1",
			Temperature: 0.0,
			Timeout:     "120s",
		},

		Browser: BrowserConfig{
			Headless:            false,
			ViewportWidth:       1280,
			ViewportHeight:      1024,
			NavigationTimeoutMs: 30000,
			MaxAgentSteps:       20,
		},

		Contact: ContactConfig{
			Phone:    "+79671717955",
			Email:    "test@example.com",
			FullName: "Test User",
		},

		Card: CardConfig{
			Number:     "4111111111111111",
			Expiry:     "12/25",
			CVV:        "123",
			Cardholder: "Test User",
		},

		Ledger: LedgerConfig{
			Backend: "memory",
			Path:    "data/orders.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file, merged over defaults.
// A missing file is not an error; env overrides still apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides on top of the
// loaded configuration. Environment always wins over file values.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "groq"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if temp := os.Getenv("LLM_TEMPERATURE"); temp != "" {
		if f, err := strconv.ParseFloat(temp, 64); err == nil {
			c.LLM.Temperature = f
		}
	}

	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		c.Browser.Headless = v == "true" || v == "1"
	}
	if v := os.Getenv("BROWSER_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Browser.NavigationTimeoutMs = ms
		}
	}

	if v := os.Getenv("DEFAULT_PHONE"); v != "" {
		c.Contact.Phone = v
	}
	if v := os.Getenv("DEFAULT_EMAIL"); v != "" {
		c.Contact.Email = v
	}
	if v := os.Getenv("DEFAULT_FULL_NAME"); v != "" {
		c.Contact.FullName = v
	}

	if v := os.Getenv("CARD_NUMBER"); v != "" {
		c.Card.Number = v
	}
	if v := os.Getenv("CARD_EXPIRY"); v != "" {
		c.Card.Expiry = v
	}
	if v := os.Getenv("CARD_CVV"); v != "" {
		c.Card.CVV = v
	}
	if v := os.Getenv("CARDHOLDER_NAME"); v != "" {
		c.Card.Cardholder = v
	}

	if v := os.Getenv("ORDER_LEDGER"); v != "" {
		c.Ledger.Backend = v
	}
	if v := os.Getenv("ORDER_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks that the configuration is usable. A missing LLM API key
// is fatal: the service cannot drive the agent without it.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not set (GROQ_API_KEY or GEMINI_API_KEY)")
	}
	switch c.LLM.Provider {
	case "groq", "gemini":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.LLM.Provider)
	}
	switch c.Ledger.Backend {
	case "memory":
	case "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("sqlite ledger requires a path")
		}
	default:
		return fmt.Errorf("unknown ledger backend: %q", c.Ledger.Backend)
	}
	return nil
}
