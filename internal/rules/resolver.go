// Package rules resolves redirects, rewrites and response headers for a
// request against an ordered rule set. Every entry point is a pure function
// of the request, the rules and (for rewrites) the phase, and is safe for
// concurrent use.
package rules

import (
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/condition"
	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/pattern"
	"github.com/prasenjit/edgerules/internal/regexcache"
	"github.com/prasenjit/edgerules/internal/template"
)

// Resolver evaluates rule lists against requests
type Resolver struct {
	logger        *zap.Logger
	matcher       *pattern.Matcher
	evaluator     *condition.Evaluator
	engine        *template.Engine
	cache         *regexcache.Cache
	basePath      string
	trailingSlash bool
	metrics       *resolverMetrics
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger used for rule warnings
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithBasePath sets the prefix applied to rule sources
func WithBasePath(basePath string) Option {
	return func(r *Resolver) {
		r.basePath = basePath
	}
}

// WithTrailingSlash makes internal destinations end with a slash
func WithTrailingSlash(enabled bool) Option {
	return func(r *Resolver) {
		r.trailingSlash = enabled
	}
}

// WithRouteConfig applies the base path and trailing slash settings of cfg
func WithRouteConfig(cfg *models.RouteConfig) Option {
	return func(r *Resolver) {
		if cfg == nil {
			return
		}
		r.basePath = cfg.BasePath
		r.trailingSlash = cfg.TrailingSlash
	}
}

// WithEngine sets the expression engine used for header values
func WithEngine(engine *template.Engine) Option {
	return func(r *Resolver) {
		r.engine = engine
	}
}

// WithCache sets the regex cache shared by the matcher and evaluator
func WithCache(cache *regexcache.Cache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// NewResolver creates a resolver
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{metrics: getResolverMetrics()}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.L()
	}
	if r.engine == nil {
		r.engine = template.NewEngine()
	}
	r.matcher = pattern.NewMatcher(r.logger, r.cache)
	r.evaluator = condition.NewEvaluator(r.logger, r.cache)
	return r
}

// BasePath returns the configured base path
func (r *Resolver) BasePath() string {
	return r.basePath
}

// RedirectResponse is a ready-to-send redirect
type RedirectResponse struct {
	StatusCode int    `json:"statusCode"`
	Location   string `json:"location"`
}

// Write sends the redirect
func (rr *RedirectResponse) Write(w http.ResponseWriter) {
	w.Header().Set("Location", rr.Location)
	w.WriteHeader(rr.StatusCode)
}

// RedirectResult is the outcome of ProcessRedirects
type RedirectResult struct {
	Matched  bool                 `json:"matched"`
	Rule     *models.RedirectRule `json:"rule,omitempty"`
	Response *RedirectResponse    `json:"response,omitempty"`
	Params   pattern.Params       `json:"params,omitempty"`
	Captures map[string]string    `json:"captures,omitempty"`
}

// ProcessRedirects returns the first redirect rule matching the request
func (r *Resolver) ProcessRedirects(req *condition.RequestData, rules []models.RedirectRule) RedirectResult {
	start := time.Now()
	defer r.metrics.observe(kindRedirect, start)

	for i := range rules {
		rule := &rules[i]
		if rule.Destination == "" {
			continue
		}

		params, captures, ok := r.matchRule(req, rule.Source, rule.UsesBasePath(), rule.Has, rule.Missing)
		if !ok {
			continue
		}

		location := r.finalizeDestination(template.ApplyParams(rule.Destination, params, captures))
		r.metrics.matched(kindRedirect, "")

		return RedirectResult{
			Matched:  true,
			Rule:     rule,
			Response: &RedirectResponse{StatusCode: redirectStatus(rule), Location: location},
			Params:   params,
			Captures: captures,
		}
	}

	return RedirectResult{}
}

// redirectStatus returns the rule's explicit status code, or 308/307
func redirectStatus(rule *models.RedirectRule) int {
	if IsRedirectStatus(rule.StatusCode) {
		return rule.StatusCode
	}
	if rule.Permanent {
		return http.StatusPermanentRedirect
	}
	return http.StatusTemporaryRedirect
}

// IsRedirectStatus reports whether code can be used for a redirect rule
func IsRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// matchRule runs the path matcher then the condition evaluator for a rule.
// A rule without a source never matches.
func (r *Resolver) matchRule(req *condition.RequestData, source string, useBasePath bool, has, missing []models.Condition) (pattern.Params, map[string]string, bool) {
	if req == nil || source == "" {
		return nil, nil, false
	}

	opts := pattern.Options{TrailingSlash: r.trailingSlash}
	if useBasePath {
		opts.BasePath = r.basePath
	}

	m := r.matcher.Match(req.Path, source, opts)
	if !m.Matched {
		return nil, nil, false
	}

	cr := r.evaluator.MatchConditions(req, has, missing)
	if !cr.Matches {
		return nil, nil, false
	}

	return m.Params, cr.Captures, true
}

// finalizeDestination applies the trailing slash setting to internal paths.
// Paths whose last segment looks like a file are left alone.
func (r *Resolver) finalizeDestination(dest string) string {
	if !r.trailingSlash || isExternal(dest) || !strings.HasPrefix(dest, "/") {
		return dest
	}

	pathname, rest := dest, ""
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		pathname, rest = dest[:i], dest[i:]
	}
	if strings.HasSuffix(pathname, "/") || strings.Contains(path.Base(pathname), ".") {
		return dest
	}
	return pathname + "/" + rest
}

// isExternal reports whether a destination is an absolute http(s) URL
func isExternal(dest string) bool {
	return strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://")
}
