package routes

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultConfig []byte

// Access says who may open a route.
type Access string

const (
	Public        Access = "public"
	Authenticated Access = "authenticated"
	Guest         Access = "guest" // signed-out users only
)

func (a Access) valid() bool {
	switch a {
	case Public, Authenticated, Guest:
		return true
	}
	return false
}

// RouteConfig is one entry of the access configuration.
type RouteConfig struct {
	Allow Access `yaml:"allow"`
}

// AccessConfig maps route paths to their access rule.
type AccessConfig struct {
	Routes map[string]RouteConfig `yaml:"routes"`

	patterns []string // keys with :param or * segments, most specific first
}

// LoadAccessConfig parses the embedded routes.yaml.
func LoadAccessConfig() (*AccessConfig, error) {
	return ParseAccessConfig(defaultConfig)
}

// ParseAccessConfig parses an access configuration document.
func ParseAccessConfig(data []byte) (*AccessConfig, error) {
	var cfg AccessConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("routes: parsing access config: %w", err)
	}
	for path, rc := range cfg.Routes {
		if !rc.Allow.valid() {
			return nil, fmt.Errorf("routes: %s: unknown access %q", path, rc.Allow)
		}
		if strings.Contains(path, ":") || strings.Contains(path, "*") {
			cfg.patterns = append(cfg.patterns, path)
		}
	}
	// More segments first, then fewer wildcards, then by name for stability.
	sort.Slice(cfg.patterns, func(i, j int) bool {
		a, b := cfg.patterns[i], cfg.patterns[j]
		if sa, sb := segmentCount(a), segmentCount(b); sa != sb {
			return sa > sb
		}
		if wa, wb := strings.Count(a, "*"), strings.Count(b, "*"); wa != wb {
			return wa < wb
		}
		return a < b
	})
	return &cfg, nil
}

// Lookup returns the configuration for path. The exact path is tried first,
// then the configured patterns.
func (c *AccessConfig) Lookup(path string) (RouteConfig, bool) {
	if c == nil {
		return RouteConfig{}, false
	}
	if rc, ok := c.Routes[path]; ok {
		return rc, true
	}
	for _, pattern := range c.patterns {
		if matchPattern(pattern, path) {
			return c.Routes[pattern], true
		}
	}
	return RouteConfig{}, false
}

// matchPattern reports whether path matches a pattern whose ":name"
// segments match any single segment and whose "*" matches the rest.
func matchPattern(pattern, path string) bool {
	ps := splitPath(pattern)
	xs := splitPath(path)
	for i, seg := range ps {
		if seg == "*" {
			return true
		}
		if i >= len(xs) {
			return false
		}
		if strings.HasPrefix(seg, ":") {
			if xs[i] == "" {
				return false
			}
			continue
		}
		if seg != xs[i] {
			return false
		}
	}
	return len(ps) == len(xs)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func segmentCount(p string) int {
	return len(splitPath(p))
}
