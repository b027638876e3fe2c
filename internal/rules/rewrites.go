package rules

import (
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/condition"
	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/pattern"
	"github.com/prasenjit/edgerules/internal/template"
)

// Phase selects which rewrite list is consulted
type Phase string

// Rewrite phases, in resolution order
const (
	PhaseBeforeFiles Phase = "beforeFiles"
	PhaseAfterFiles  Phase = "afterFiles"
	PhaseFallback    Phase = "fallback"
	PhaseAll         Phase = "all"
)

// Phases returns the concrete phases in the order PhaseAll tries them
func Phases() []Phase {
	return []Phase{PhaseBeforeFiles, PhaseAfterFiles, PhaseFallback}
}

// ParsePhase converts a string to a Phase
func ParsePhase(s string) (Phase, bool) {
	switch p := Phase(s); p {
	case PhaseBeforeFiles, PhaseAfterFiles, PhaseFallback, PhaseAll:
		return p, true
	}
	return "", false
}

// RewriteResult is the outcome of ProcessRewrites. Pathname is set for
// internal destinations, ExternalURL for http(s) destinations.
type RewriteResult struct {
	Matched     bool                `json:"matched"`
	Pathname    string              `json:"pathname,omitempty"`
	IsExternal  bool                `json:"isExternal"`
	ExternalURL string              `json:"externalUrl,omitempty"`
	Rule        *models.RewriteRule `json:"rule,omitempty"`
	Phase       Phase               `json:"phase,omitempty"`
	Params      pattern.Params      `json:"params,omitempty"`
	Captures    map[string]string   `json:"captures,omitempty"`
}

// ProcessRewrites returns the first rewrite matching the request in the given
// phase. PhaseAll tries beforeFiles, afterFiles and fallback in that order.
func (r *Resolver) ProcessRewrites(req *condition.RequestData, cfg models.RewritesConfig, phase Phase) RewriteResult {
	start := time.Now()
	defer r.metrics.observe(kindRewrite, start)

	switch phase {
	case PhaseAll:
		for _, p := range Phases() {
			if result := r.processPhase(req, rulesFor(cfg, p), p); result.Matched {
				return result
			}
		}
		return RewriteResult{}
	case PhaseBeforeFiles, PhaseAfterFiles, PhaseFallback:
		return r.processPhase(req, rulesFor(cfg, phase), phase)
	default:
		r.logger.Warn("unknown rewrite phase", zap.String("phase", string(phase)))
		return RewriteResult{}
	}
}

func rulesFor(cfg models.RewritesConfig, phase Phase) []models.RewriteRule {
	switch phase {
	case PhaseBeforeFiles:
		return cfg.BeforeFiles
	case PhaseAfterFiles:
		return cfg.AfterFiles
	case PhaseFallback:
		return cfg.Fallback
	}
	return nil
}

func (r *Resolver) processPhase(req *condition.RequestData, rules []models.RewriteRule, phase Phase) RewriteResult {
	for i := range rules {
		rule := &rules[i]
		if rule.Destination == "" {
			continue
		}

		params, captures, ok := r.matchRule(req, rule.Source, rule.UsesBasePath(), rule.Has, rule.Missing)
		if !ok {
			continue
		}

		dest := template.ApplyParams(rule.Destination, params, captures)
		r.metrics.matched(kindRewrite, string(phase))

		result := RewriteResult{
			Matched:  true,
			Rule:     rule,
			Phase:    phase,
			Params:   params,
			Captures: captures,
		}
		if isExternal(dest) {
			result.IsExternal = true
			result.ExternalURL = r.mergeQuery(dest, req.Query)
		} else {
			result.Pathname = r.finalizeDestination(dest)
		}
		return result
	}

	return RewriteResult{}
}

// mergeQuery adds the request's query parameters to an external URL for
// keys the destination does not already set
func (r *Resolver) mergeQuery(dest string, query url.Values) string {
	if len(query) == 0 {
		return dest
	}

	u, err := url.Parse(dest)
	if err != nil {
		r.logger.Warn("external rewrite destination is not a valid URL",
			zap.String("destination", dest),
			zap.Error(err),
		)
		return dest
	}

	existing := u.Query()
	merged := false
	for key, values := range query {
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = append([]string(nil), values...)
		merged = true
	}
	if !merged {
		return dest
	}

	u.RawQuery = existing.Encode()
	return u.String()
}
