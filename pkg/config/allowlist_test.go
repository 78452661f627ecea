package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlistEmptyPermitsEverything(t *testing.T) {
	a, err := NewAllowlist(nil)
	require.NoError(t, err)
	assert.True(t, a.Empty())
	assert.NoError(t, a.Check("https://anything.example"))
}

func TestAllowlistMatching(t *testing.T) {
	a, err := NewAllowlist([]string{"example.com", "*.example.com", "staging-*.corp.io"})
	require.NoError(t, err)

	assert.NoError(t, a.Check("https://example.com/login"))
	assert.NoError(t, a.Check("https://app.example.com"))
	assert.NoError(t, a.Check("https://staging-eu.corp.io/health"))

	assert.Error(t, a.Check("https://evil.com"))
	assert.Error(t, a.Check("https://example.com.evil.net"))
	assert.Error(t, a.Check("not a url"))
}

func TestAllowlistCaseInsensitive(t *testing.T) {
	a, err := NewAllowlist([]string{"Example.COM"})
	require.NoError(t, err)
	assert.NoError(t, a.Check("https://EXAMPLE.com"))
}

func TestAllowlistRejectsBadPattern(t *testing.T) {
	_, err := NewAllowlist([]string{"[unclosed"})
	assert.Error(t, err)
}
