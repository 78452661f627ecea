package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8077", s.Addr())
	assert.Equal(t, 60, s.Server.RateLimitPerMinute)
	assert.Equal(t, "openai", s.Provider.Name)
	assert.True(t, s.Agent.Headless)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0
  port: 9000
  rate_limit_per_minute: 5
provider:
  name: gemini
  model: gemini-2.0-flash
agent:
  max_steps: 10
  step_verification: true
allowed_hosts:
  - "example.com"
  - "*.example.com"
database_path: /tmp/runs.db
`), 0600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", s.Addr())
	assert.Equal(t, 5, s.Server.RateLimitPerMinute)
	assert.Equal(t, "gemini", s.Provider.Name)
	assert.Equal(t, 10, s.Agent.MaxSteps)
	assert.True(t, s.Agent.StepVerification)
	assert.Equal(t, []string{"example.com", "*.example.com"}, s.AllowedHosts)
	assert.Equal(t, "/tmp/runs.db", s.DatabasePath)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACEWRIGHT_PORT", "7001")
	t.Setenv("TRACEWRIGHT_PROVIDER", "gemini")
	t.Setenv("TRACEWRIGHT_API_KEY", "env-key")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7001, s.Server.Port)
	assert.Equal(t, "gemini", s.Provider.Name)
	assert.Equal(t, "env-key", s.Provider.APIKey)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}
