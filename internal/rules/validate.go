package rules

import (
	"fmt"
	"regexp"

	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/pattern"
	"github.com/prasenjit/edgerules/internal/template"
)

// RuleError describes a rule rejected by Validate
type RuleError struct {
	Kind   string // redirect, rewrite or headers
	Phase  Phase  // set for rewrites
	Index  int
	Source string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *RuleError) Error() string {
	where := fmt.Sprintf("%s[%d]", e.Kind, e.Index)
	if e.Phase != "" {
		where = fmt.Sprintf("%s.%s[%d]", e.Kind, e.Phase, e.Index)
	}
	msg := fmt.Sprintf("%s (source %q): %s", where, e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *RuleError) Unwrap() error {
	return e.Err
}

// Validate returns a copy of cfg containing only rules that can match, and
// an error for every rule it dropped. A nil cfg yields an empty config.
func Validate(cfg *models.RouteConfig) (*models.RouteConfig, []error) {
	out := &models.RouteConfig{
		Redirects: []models.RedirectRule{},
		Headers:   []models.HeaderRule{},
	}
	if cfg == nil {
		return out, nil
	}
	out.BasePath = cfg.BasePath
	out.TrailingSlash = cfg.TrailingSlash

	var errs []error

	for i, rule := range cfg.Redirects {
		reason, err := checkRule(rule.Source, rule.Has, rule.Missing)
		if reason == "" && rule.Destination == "" {
			reason = "missing destination"
		}
		if reason == "" && rule.StatusCode != 0 && !IsRedirectStatus(rule.StatusCode) {
			reason = fmt.Sprintf("invalid redirect status code %d", rule.StatusCode)
		}
		if reason != "" {
			errs = append(errs, &RuleError{Kind: kindRedirect, Index: i, Source: rule.Source, Reason: reason, Err: err})
			continue
		}
		out.Redirects = append(out.Redirects, rule)
	}

	for _, phase := range Phases() {
		var kept []models.RewriteRule
		for i, rule := range rulesFor(cfg.Rewrites, phase) {
			reason, err := checkRule(rule.Source, rule.Has, rule.Missing)
			if reason == "" && rule.Destination == "" {
				reason = "missing destination"
			}
			if reason != "" {
				errs = append(errs, &RuleError{Kind: kindRewrite, Phase: phase, Index: i, Source: rule.Source, Reason: reason, Err: err})
				continue
			}
			kept = append(kept, rule)
		}
		setRules(&out.Rewrites, phase, kept)
	}

	for i, rule := range cfg.Headers {
		reason, err := checkRule(rule.Source, rule.Has, rule.Missing)
		if reason == "" && len(rule.Headers) == 0 {
			reason = "missing headers"
		}
		if reason == "" {
			for _, h := range rule.Headers {
				if h.Key == "" {
					reason = "header with empty key"
					break
				}
			}
		}
		if reason != "" {
			errs = append(errs, &RuleError{Kind: kindHeaders, Index: i, Source: rule.Source, Reason: reason, Err: err})
			continue
		}
		out.Headers = append(out.Headers, rule)
	}

	return out, errs
}

func setRules(cfg *models.RewritesConfig, phase Phase, rules []models.RewriteRule) {
	if rules == nil {
		rules = []models.RewriteRule{}
	}
	switch phase {
	case PhaseBeforeFiles:
		cfg.BeforeFiles = rules
	case PhaseAfterFiles:
		cfg.AfterFiles = rules
	case PhaseFallback:
		cfg.Fallback = rules
	}
}

// checkRule validates the parts shared by every rule kind
func checkRule(source string, has, missing []models.Condition) (string, error) {
	if source == "" {
		return "missing source", nil
	}
	if _, err := pattern.Compile(source); err != nil {
		return "invalid source pattern", err
	}
	for _, conds := range [][]models.Condition{has, missing} {
		for _, c := range conds {
			if !models.IsValidConditionType(c.Type) {
				return fmt.Sprintf("unknown condition type %q", c.Type), nil
			}
			if c.Type != models.ConditionHost && c.Key == "" {
				return fmt.Sprintf("%s condition without key", c.Type), nil
			}
		}
	}
	return "", nil
}

// UnresolvedPlaceholders lists the placeholders in destination that neither
// the source pattern nor a named group in the has conditions can fill
func UnresolvedPlaceholders(source, destination string, has []models.Condition) []string {
	known := make(map[string]bool)

	if p, err := pattern.Compile(source); err == nil {
		for _, name := range p.Names() {
			known[name] = true
		}
	}
	for _, c := range has {
		if c.Value == "" {
			continue
		}
		re, err := regexp.Compile(c.Value)
		if err != nil {
			continue
		}
		for _, name := range re.SubexpNames() {
			if name != "" {
				known[name] = true
			}
		}
	}

	var missing []string
	for _, name := range template.Placeholders(destination) {
		if !known[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
