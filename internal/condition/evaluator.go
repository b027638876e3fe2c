package condition

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/regexcache"
)

// Evaluator evaluates has/missing conditions against request data
type Evaluator struct {
	logger *zap.Logger
	cache  *regexcache.Cache
}

// NewEvaluator creates a new condition evaluator. A nil logger falls back to
// the global zap logger and a nil cache to the process-wide regex cache.
func NewEvaluator(logger *zap.Logger, cache *regexcache.Cache) *Evaluator {
	if cache == nil {
		cache = regexcache.Default()
	}
	return &Evaluator{logger: logger, cache: cache}
}

func (e *Evaluator) log() *zap.Logger {
	if e.logger != nil {
		return e.logger
	}
	return zap.L()
}

// RequestData is the parsed request view conditions are evaluated against
type RequestData struct {
	Method  string
	Path    string
	Host    string
	Query   url.Values
	Headers http.Header
}

// NewRequestData builds request data from an HTTP request
func NewRequestData(r *http.Request) *RequestData {
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}

	data := &RequestData{
		Method:  r.Method,
		Host:    stripPort(host),
		Headers: r.Header,
	}
	if r.URL != nil {
		data.Path = r.URL.Path
		data.Query = r.URL.Query()
	}
	if data.Headers == nil {
		data.Headers = http.Header{}
	}
	if data.Query == nil {
		data.Query = url.Values{}
	}
	return data
}

// ConditionResult is the outcome of evaluating a rule's conditions
type ConditionResult struct {
	Matches  bool              `json:"matches"`
	Captures map[string]string `json:"captures"`
}

// MatchConditions evaluates has (all must hold) and missing (all must be
// absent or non-matching). Captures come only from has conditions whose
// value is a regex with named groups.
func (e *Evaluator) MatchConditions(data *RequestData, has, missing []models.Condition) ConditionResult {
	captures := make(map[string]string)

	for _, cond := range has {
		if !e.test(cond, data, captures) {
			return ConditionResult{Matches: false, Captures: map[string]string{}}
		}
	}

	for _, cond := range missing {
		if e.test(cond, data, nil) {
			return ConditionResult{Matches: false, Captures: map[string]string{}}
		}
	}

	return ConditionResult{Matches: true, Captures: captures}
}

// test reports whether the condition holds. Named captures are merged into
// captures when it is non-nil.
func (e *Evaluator) test(cond models.Condition, data *RequestData, captures map[string]string) bool {
	actual, ok := e.extractValue(cond, data)
	if !ok {
		return false
	}

	if cond.Value == "" {
		return true
	}

	re, err := e.cache.Compile("^(?:" + cond.Value + ")$")
	if err != nil {
		// Not a valid regex: compare literally
		return actual == cond.Value
	}

	m := re.FindStringSubmatch(actual)
	if m == nil {
		return false
	}

	if captures != nil {
		for i, name := range re.SubexpNames() {
			if i > 0 && name != "" && i < len(m) {
				captures[name] = m[i]
			}
		}
	}
	return true
}

// extractValue resolves the value a condition is tested against. The second
// return value is false when the value is absent from the request.
func (e *Evaluator) extractValue(cond models.Condition, data *RequestData) (string, bool) {
	if data == nil {
		return "", false
	}

	switch cond.Type {
	case models.ConditionHeader:
		vals := data.Headers.Values(cond.Key)
		if len(vals) == 0 {
			return "", false
		}
		return strings.Join(vals, ", "), true
	case models.ConditionCookie:
		return cookieValue(data.Headers.Get("Cookie"), cond.Key)
	case models.ConditionHost:
		return data.Host, true
	case models.ConditionQuery:
		vals, ok := data.Query[cond.Key]
		if !ok {
			return "", false
		}
		if len(vals) == 0 {
			return "", true
		}
		return vals[0], true
	default:
		e.log().Warn("unknown condition type",
			zap.String("type", cond.Type),
			zap.String("key", cond.Key),
		)
		return "", false
	}
}

// cookieValue parses a raw Cookie header and looks up name
func cookieValue(raw, name string) (string, bool) {
	if raw == "" {
		return "", false
	}
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if strings.TrimSpace(key) == name {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// stripPort removes an optional port from a host
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
