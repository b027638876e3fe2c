package pattern

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/regexcache"
)

// Options controls how a template is applied to a request path
type Options struct {
	BasePath      string `json:"basePath,omitempty"`
	TrailingSlash bool   `json:"trailingSlash,omitempty"`
}

// Param is a matched path parameter: a single string for scalar segments
// or an ordered list for catch-all segments
type Param struct {
	Value  string
	Values []string
	List   bool
}

// StringParam creates a scalar parameter
func StringParam(v string) Param {
	return Param{Value: v}
}

// ListParam creates a list parameter; nil becomes an empty list
func ListParam(v []string) Param {
	if v == nil {
		v = []string{}
	}
	return Param{Values: v, List: true}
}

// String renders the parameter for substitution; lists are joined by "/"
func (p Param) String() string {
	if p.List {
		return strings.Join(p.Values, "/")
	}
	return p.Value
}

// MarshalJSON encodes scalars as strings and lists as arrays
func (p Param) MarshalJSON() ([]byte, error) {
	if p.List {
		return json.Marshal(p.Values)
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts either a string or an array of strings
func (p *Param) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = StringParam(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*p = ListParam(list)
	return nil
}

// Params maps parameter names to matched values
type Params map[string]Param

// MatchResult is the outcome of matching a path against a template
type MatchResult struct {
	Matched bool   `json:"matched"`
	Params  Params `json:"params"`
}

// Matcher compiles templates and matches request paths. The zero value is
// not usable; create one with NewMatcher.
type Matcher struct {
	logger *zap.Logger
	cache  *regexcache.Cache
}

// NewMatcher creates a matcher. A nil logger falls back to the global zap
// logger and a nil cache to the process-wide regex cache.
func NewMatcher(logger *zap.Logger, cache *regexcache.Cache) *Matcher {
	if cache == nil {
		cache = regexcache.Default()
	}
	return &Matcher{logger: logger, cache: cache}
}

func (m *Matcher) log() *zap.Logger {
	if m.logger != nil {
		return m.logger
	}
	return zap.L()
}

// Compile applies the base path to the template and compiles it
func (m *Matcher) Compile(template string, opts Options) (*Pattern, error) {
	return compileWith(m.cache, withBasePath(normalize(template), opts.BasePath))
}

// Match matches pathname against template. A template that cannot be
// compiled never matches; the failure is logged as a warning.
func (m *Matcher) Match(pathname, template string, opts Options) MatchResult {
	p, err := m.Compile(template, opts)
	if err != nil {
		m.log().Warn("path pattern rejected",
			zap.String("pattern", template),
			zap.String("basePath", opts.BasePath),
			zap.Error(err),
		)
		return MatchResult{}
	}
	return p.Match(pathname)
}

var defaultMatcher = NewMatcher(nil, nil)

// MatchPath matches pathname against template using the default matcher
func MatchPath(pathname, template string, opts Options) MatchResult {
	return defaultMatcher.Match(pathname, template, opts)
}

// withBasePath prefixes template with basePath unless it already starts
// with it at a segment boundary
func withBasePath(template, basePath string) string {
	basePath = strings.TrimSuffix(basePath, "/")
	if basePath == "" {
		return template
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if !strings.HasPrefix(template, "/") {
		template = "/" + template
	}
	if template == basePath || strings.HasPrefix(template, basePath+"/") {
		return template
	}
	if template == "/" {
		return basePath
	}
	return basePath + template
}
