// Package config loads server settings from a YAML file with environment
// overrides, and provides the navigation allowlist.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings is the server-side configuration. Zero values fall back to
// defaults; environment variables override file values.
type Settings struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`

		// RateLimitPerMinute caps API requests per client (keyed on API key
		// or forwarded address). Zero disables rate limiting.
		RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	} `yaml:"server"`

	Provider struct {
		// Name selects the LLM provider: openai or gemini.
		Name    string `yaml:"name"`
		Model   string `yaml:"model"`
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"provider"`

	Agent struct {
		Headless         bool `yaml:"headless"`
		EnhancePrompt    bool `yaml:"enhance_prompt"`
		StepVerification bool `yaml:"step_verification"`
		MaxSteps         int  `yaml:"max_steps"`
		StepTimeoutSecs  int  `yaml:"step_timeout_seconds"`
		RunTimeoutSecs   int  `yaml:"run_timeout_seconds"`
		MinStepsForCode  int  `yaml:"min_steps_for_code"`
	} `yaml:"agent"`

	// AllowedHosts restricts navigation targets. Empty means unrestricted.
	AllowedHosts []string `yaml:"allowed_hosts"`

	// DatabasePath is the SQLite file for run persistence.
	DatabasePath string `yaml:"database_path"`
}

// Default returns the settings used when no file or overrides are present.
func Default() Settings {
	var s Settings
	s.Server.Host = "127.0.0.1"
	s.Server.Port = 8077
	s.Server.RateLimitPerMinute = 60
	s.Provider.Name = "openai"
	s.Agent.Headless = true
	s.DatabasePath = "tracewright.db"
	return s
}

// Load reads settings from path, then applies environment overrides. A
// missing file is not an error; defaults are used.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults.
		case err != nil:
			return s, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	s.applyEnv()
	return s, nil
}

// applyEnv overrides file values with TRACEWRIGHT_* environment variables.
func (s *Settings) applyEnv() {
	if v := os.Getenv("TRACEWRIGHT_HOST"); v != "" {
		s.Server.Host = v
	}
	if v := os.Getenv("TRACEWRIGHT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Server.Port = port
		}
	}
	if v := os.Getenv("TRACEWRIGHT_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			s.Server.RateLimitPerMinute = limit
		}
	}
	if v := os.Getenv("TRACEWRIGHT_PROVIDER"); v != "" {
		s.Provider.Name = v
	}
	if v := os.Getenv("TRACEWRIGHT_MODEL"); v != "" {
		s.Provider.Model = v
	}
	if v := os.Getenv("TRACEWRIGHT_API_KEY"); v != "" {
		s.Provider.APIKey = v
	}
	if v := os.Getenv("TRACEWRIGHT_BASE_URL"); v != "" {
		s.Provider.BaseURL = v
	}
	if v := os.Getenv("TRACEWRIGHT_DB"); v != "" {
		s.DatabasePath = v
	}
}

// Addr is the host:port the server binds to.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}
