package rules

import (
	"net/http"
	"strings"
	"time"

	"github.com/prasenjit/edgerules/internal/condition"
	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/template"
)

// HeadersResult is the outcome of ProcessHeaders
type HeadersResult struct {
	Headers      []models.Header     `json:"headers"`
	MatchedRules []models.HeaderRule `json:"matchedRules"`
}

// ProcessHeaders collects the headers of every rule matching the request, in
// rule order. Values are filled from path params, captures and {{...}}
// expressions written in the rule itself.
func (r *Resolver) ProcessHeaders(req *condition.RequestData, rules []models.HeaderRule) HeadersResult {
	start := time.Now()
	defer r.metrics.observe(kindHeaders, start)

	result := HeadersResult{
		Headers:      []models.Header{},
		MatchedRules: []models.HeaderRule{},
	}

	for _, rule := range rules {
		if len(rule.Headers) == 0 {
			continue
		}

		params, captures, ok := r.matchRule(req, rule.Source, rule.UsesBasePath(), rule.Has, rule.Missing)
		if !ok {
			continue
		}

		ctx := &template.Context{
			Params:   params,
			Captures: captures,
			Query:    req.Query,
			Headers:  req.Headers,
			Host:     req.Host,
		}
		for _, h := range rule.Headers {
			if h.Key == "" {
				continue
			}
			result.Headers = append(result.Headers, models.Header{
				Key:   h.Key,
				Value: r.engine.Render(h.Value, params, captures, ctx),
			})
		}

		result.MatchedRules = append(result.MatchedRules, rule)
		r.metrics.matched(kindHeaders, "")
	}

	return result
}

// MergeHeaderResults combines header lists with last-write-wins semantics per
// case-insensitive name. The casing and position of a name's first
// occurrence are kept.
func MergeHeaderResults(lists ...[]models.Header) []models.Header {
	merged := []models.Header{}
	index := make(map[string]int)

	for _, list := range lists {
		for _, h := range list {
			name := strings.ToLower(h.Key)
			if i, ok := index[name]; ok {
				merged[i].Value = h.Value
				continue
			}
			index[name] = len(merged)
			merged = append(merged, h)
		}
	}

	return merged
}

// SetHeaders writes headers onto dst, replacing existing values
func SetHeaders(dst http.Header, headers []models.Header) {
	for _, h := range headers {
		dst.Set(h.Key, h.Value)
	}
}

// ApplyHeaders returns a copy of resp with headers set. The original
// response and its header map are not modified.
func ApplyHeaders(resp *http.Response, headers []models.Header) *http.Response {
	if resp == nil {
		return nil
	}

	clone := *resp
	clone.Header = resp.Header.Clone()
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	SetHeaders(clone.Header, headers)
	return &clone
}
