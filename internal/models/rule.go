package models

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Header is a single response header produced by a header rule
type Header struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// RedirectRule redirects matching requests to a destination
type RedirectRule struct {
	Source      string      `json:"source" yaml:"source"`
	Destination string      `json:"destination" yaml:"destination"`
	Permanent   bool        `json:"permanent" yaml:"permanent"`
	StatusCode  int         `json:"statusCode,omitempty" yaml:"statusCode,omitempty"` // Overrides Permanent when set
	BasePath    *bool       `json:"basePath,omitempty" yaml:"basePath,omitempty"`     // false disables basePath prefixing
	Has         []Condition `json:"has,omitempty" yaml:"has,omitempty"`
	Missing     []Condition `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// UsesBasePath reports whether the configured basePath applies to this rule
func (r *RedirectRule) UsesBasePath() bool {
	return r.BasePath == nil || *r.BasePath
}

// RewriteRule rewrites matching requests to an internal path or an external URL
type RewriteRule struct {
	Source      string      `json:"source" yaml:"source"`
	Destination string      `json:"destination" yaml:"destination"`
	BasePath    *bool       `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Has         []Condition `json:"has,omitempty" yaml:"has,omitempty"`
	Missing     []Condition `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// UsesBasePath reports whether the configured basePath applies to this rule
func (r *RewriteRule) UsesBasePath() bool {
	return r.BasePath == nil || *r.BasePath
}

// HeaderRule attaches headers to responses for matching requests
type HeaderRule struct {
	Source   string      `json:"source" yaml:"source"`
	Headers  []Header    `json:"headers" yaml:"headers"`
	BasePath *bool       `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Has      []Condition `json:"has,omitempty" yaml:"has,omitempty"`
	Missing  []Condition `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// UsesBasePath reports whether the configured basePath applies to this rule
func (r *HeaderRule) UsesBasePath() bool {
	return r.BasePath == nil || *r.BasePath
}

// RewritesConfig groups rewrite rules by resolution phase
type RewritesConfig struct {
	BeforeFiles []RewriteRule `json:"beforeFiles" yaml:"beforeFiles"`
	AfterFiles  []RewriteRule `json:"afterFiles" yaml:"afterFiles"`
	Fallback    []RewriteRule `json:"fallback" yaml:"fallback"`
}

// Len returns the number of rewrite rules across all phases
func (c RewritesConfig) Len() int {
	return len(c.BeforeFiles) + len(c.AfterFiles) + len(c.Fallback)
}

// phasedRewrites has the same fields as RewritesConfig without its custom decoders
type phasedRewrites RewritesConfig

// UnmarshalJSON accepts either a plain list of rules (treated as afterFiles)
// or an object keyed by phase
func (c *RewritesConfig) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	switch {
	case parsed.IsArray():
		var list []RewriteRule
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*c = RewritesConfig{AfterFiles: list}
		return nil
	case parsed.IsObject():
		var phased phasedRewrites
		if err := json.Unmarshal(data, &phased); err != nil {
			return err
		}
		*c = RewritesConfig(phased)
		return nil
	case parsed.Type == gjson.Null:
		*c = RewritesConfig{}
		return nil
	default:
		return fmt.Errorf("rewrites must be a list or an object, got %s", parsed.Type)
	}
}

// UnmarshalYAML accepts either a sequence of rules (treated as afterFiles)
// or a mapping keyed by phase
func (c *RewritesConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []RewriteRule
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = RewritesConfig{AfterFiles: list}
		return nil
	case yaml.MappingNode:
		var phased phasedRewrites
		if err := node.Decode(&phased); err != nil {
			return err
		}
		*c = RewritesConfig(phased)
		return nil
	default:
		return fmt.Errorf("line %d: rewrites must be a list or a mapping", node.Line)
	}
}

// RouteConfig is the complete, immutable rule configuration served by the engine
type RouteConfig struct {
	BasePath      string         `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	TrailingSlash bool           `json:"trailingSlash,omitempty" yaml:"trailingSlash,omitempty"`
	Redirects     []RedirectRule `json:"redirects" yaml:"redirects"`
	Rewrites      RewritesConfig `json:"rewrites" yaml:"rewrites"`
	Headers       []HeaderRule   `json:"headers" yaml:"headers"`
}

// RuleCounts summarizes the number of rules per kind
type RuleCounts struct {
	Redirects   int `json:"redirects"`
	BeforeFiles int `json:"beforeFiles"`
	AfterFiles  int `json:"afterFiles"`
	Fallback    int `json:"fallback"`
	Headers     int `json:"headers"`
}

// Counts returns the number of rules per kind
func (c *RouteConfig) Counts() RuleCounts {
	if c == nil {
		return RuleCounts{}
	}
	return RuleCounts{
		Redirects:   len(c.Redirects),
		BeforeFiles: len(c.Rewrites.BeforeFiles),
		AfterFiles:  len(c.Rewrites.AfterFiles),
		Fallback:    len(c.Rewrites.Fallback),
		Headers:     len(c.Headers),
	}
}
