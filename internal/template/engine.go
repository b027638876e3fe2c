// Package template renders rule destinations and header values: :name
// placeholders are filled from path params and condition captures, and
// {{...}} expressions are expanded from the request.
package template

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prasenjit/edgerules/internal/pattern"
)

// Engine expands {{...}} expressions in header values
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewEngine creates a new template engine
func NewEngine() *Engine {
	return &Engine{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// Context contains the request data available to expressions
type Context struct {
	Params   pattern.Params
	Captures map[string]string
	Query    url.Values
	Headers  http.Header
	Host     string
}

// expressionPattern matches expressions like {{header.X-Request-Id}}
var expressionPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// maxRandomString bounds random.string(n)
const maxRandomString = 256

// HasExpressions reports whether s contains any {{...}} expression
func HasExpressions(s string) bool {
	return strings.Contains(s, "{{") && expressionPattern.MatchString(s)
}

// Expand replaces every expression in value. Unknown expressions are left
// as written.
func (e *Engine) Expand(value string, ctx *Context) string {
	if !strings.Contains(value, "{{") {
		return value
	}
	if ctx == nil {
		ctx = &Context{}
	}
	return expressionPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := e.resolve(name, ctx); ok {
			return v
		}
		return match
	})
}

// Render fills a rule's header value. Expressions and :name placeholders
// are resolved in one pass over the rule's own text, so values copied in
// from the request are never expanded again.
func (e *Engine) Render(value string, params pattern.Params, captures map[string]string, ctx *Context) string {
	if !HasExpressions(value) {
		return ApplyParams(value, params, captures)
	}

	var b strings.Builder
	last := 0
	for _, loc := range expressionPattern.FindAllStringIndex(value, -1) {
		b.WriteString(ApplyParams(value[last:loc[0]], params, captures))
		b.WriteString(e.Expand(value[loc[0]:loc[1]], ctx))
		last = loc[1]
	}
	b.WriteString(ApplyParams(value[last:], params, captures))
	return b.String()
}

func (e *Engine) resolve(name string, ctx *Context) (string, bool) {
	// Both "header.x" and ".header.x" are accepted
	name = strings.TrimPrefix(name, ".")

	source, key, _ := strings.Cut(name, ".")

	switch source {
	case "param":
		if p, ok := ctx.Params[key]; ok {
			return p.String(), true
		}
		return "", true
	case "capture":
		return ctx.Captures[key], true
	case "query":
		return ctx.Query.Get(key), true
	case "header":
		if key == "" || ctx.Headers == nil {
			return "", true
		}
		return ctx.Headers.Get(key), true
	case "host":
		return ctx.Host, true
	case "random":
		return e.resolveRandom(key)
	case "timestamp":
		return e.resolveTimestamp(key), true
	}

	return "", false
}

// resolveRandom resolves random value generators
func (e *Engine) resolveRandom(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case key == "uuid":
		return uuid.New().String(), true
	case key == "int":
		return strconv.Itoa(e.rng.Intn(1000000)), true
	case strings.HasPrefix(key, "int("):
		if lo, hi, ok := intRange(parseParams(key, "int")); ok {
			return strconv.FormatInt(lo+e.rng.Int63n(hi-lo+1), 10), true
		}
		return strconv.Itoa(e.rng.Intn(1000000)), true
	case key == "hex":
		return fmt.Sprintf("%016x", e.rng.Uint64()), true
	case key == "string":
		return randomString(e.rng, 10), true
	case strings.HasPrefix(key, "string("):
		params := parseParams(key, "string")
		if len(params) == 1 {
			if n, err := strconv.Atoi(strings.TrimSpace(params[0])); err == nil && n > 0 {
				return randomString(e.rng, min(n, maxRandomString)), true
			}
		}
		return randomString(e.rng, 10), true
	}

	return "", false
}

// intRange parses an int(a,b) range. Ranges whose width overflows int64 are
// rejected.
func intRange(params []string) (lo, hi int64, ok bool) {
	if len(params) != 2 {
		return 0, 0, false
	}
	lo, err := strconv.ParseInt(strings.TrimSpace(params[0]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	hi, err = strconv.ParseInt(strings.TrimSpace(params[1]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	span := hi - lo
	if hi <= lo || span <= 0 || span == math.MaxInt64 {
		return 0, 0, false
	}
	return lo, hi, true
}

// resolveTimestamp resolves timestamp generators
func (e *Engine) resolveTimestamp(key string) string {
	now := e.now()

	switch {
	case key == "" || key == "unix":
		return strconv.FormatInt(now.Unix(), 10)
	case key == "unixMilli":
		return strconv.FormatInt(now.UnixMilli(), 10)
	case key == "iso":
		return now.Format(time.RFC3339)
	case key == "http":
		return now.UTC().Format(http.TimeFormat)
	case key == "date":
		return now.Format("2006-01-02")
	case strings.HasPrefix(key, "add("):
		// timestamp.add(1h) renders an HTTP date, for Expires style headers
		params := parseParams(key, "add")
		if len(params) == 1 {
			if d, err := time.ParseDuration(strings.TrimSpace(params[0])); err == nil {
				return now.Add(d).UTC().Format(http.TimeFormat)
			}
		}
	}

	return strconv.FormatInt(now.Unix(), 10)
}

// parseParams extracts parameters from a call like "func(a,b)"
func parseParams(key, funcName string) []string {
	prefix := funcName + "("
	if !strings.HasPrefix(key, prefix) {
		return nil
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ")")
	if inner == "" {
		return nil
	}
	return strings.Split(inner, ",")
}

// randomString generates a random alphanumeric string
func randomString(rng *rand.Rand, length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[rng.Intn(len(charset))]
	}
	return string(result)
}
