package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Allowlist restricts which hosts the agent may navigate to. Patterns are
// glob expressions matched against the host, with '.' as the separator, so
// "*.example.com" matches subdomains but not example.com itself.
type Allowlist struct {
	patterns []string
	globs    []glob.Glob
}

// NewAllowlist compiles the given patterns. An empty pattern list yields an
// allowlist that permits everything.
func NewAllowlist(patterns []string) (*Allowlist, error) {
	a := &Allowlist{patterns: patterns}
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist pattern %q: %w", pattern, err)
		}
		a.globs = append(a.globs, g)
	}
	return a, nil
}

// Empty reports whether no patterns are configured.
func (a *Allowlist) Empty() bool {
	return len(a.globs) == 0
}

// Check rejects navigation targets whose host matches no pattern. An empty
// allowlist permits everything.
func (a *Allowlist) Check(rawURL string) error {
	if a.Empty() {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("cannot determine host of %q", rawURL)
	}

	host := strings.ToLower(parsed.Hostname())
	for _, g := range a.globs {
		if g.Match(host) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not in the navigation allowlist", host)
}
