package rules

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/edgerules/internal/models"
)

func TestProcessHeaders_SingleRule(t *testing.T) {
	r := newTestResolver()
	rules := []models.HeaderRule{{
		Source:  "/api/:path*",
		Headers: []models.Header{{Key: "X-Custom-Header", Value: "test-value"}},
	}}

	result := r.ProcessHeaders(request(t, "/api/users", nil), rules)

	assert.Equal(t, []models.Header{{Key: "X-Custom-Header", Value: "test-value"}}, result.Headers)
	assert.Equal(t, rules, result.MatchedRules)
}

func TestProcessHeaders_AccumulatesAllMatches(t *testing.T) {
	r := newTestResolver()
	rules := []models.HeaderRule{
		{Source: "/:path*", Headers: []models.Header{{Key: "X-Frame-Options", Value: "DENY"}}},
		{Source: "/blog/:slug", Headers: []models.Header{
			{Key: "Cache-Control", Value: "public, max-age=60"},
			{Key: "X-Slug", Value: ":slug"},
		}},
		{Source: "/shop/:path*", Headers: []models.Header{{Key: "X-Shop", Value: "1"}}},
	}

	result := r.ProcessHeaders(request(t, "/blog/hello", nil), rules)

	assert.Equal(t, []models.Header{
		{Key: "X-Frame-Options", Value: "DENY"},
		{Key: "Cache-Control", Value: "public, max-age=60"},
		{Key: "X-Slug", Value: "hello"},
	}, result.Headers)
	assert.Len(t, result.MatchedRules, 2)
}

func TestProcessHeaders_NoMatch(t *testing.T) {
	r := newTestResolver()
	rules := []models.HeaderRule{{Source: "/api/:path+", Headers: []models.Header{{Key: "X", Value: "1"}}}}

	result := r.ProcessHeaders(request(t, "/api", nil), rules)
	assert.NotNil(t, result.Headers)
	assert.Empty(t, result.Headers)
	assert.Empty(t, result.MatchedRules)
}

func TestProcessHeaders_CapturesAndExpressions(t *testing.T) {
	r := newTestResolver()
	rules := []models.HeaderRule{{
		Source: "/t/:id",
		Has:    []models.Condition{{Type: "host", Value: "(?P<region>[a-z]+)\\.example\\.com"}},
		Headers: []models.Header{
			{Key: "X-Region", Value: ":region"},
			{Key: "X-Trace", Value: "{{header.X-Request-Id}}-:id"},
			{Key: "", Value: "dropped"},
		},
	}}

	result := r.ProcessHeaders(request(t, "http://eu.example.com/t/9", http.Header{"X-Request-Id": {"abc"}}), rules)

	assert.Equal(t, []models.Header{
		{Key: "X-Region", Value: "eu"},
		{Key: "X-Trace", Value: "abc-9"},
	}, result.Headers)
}

func TestProcessHeaders_RequestTextIsNotExpanded(t *testing.T) {
	r := newTestResolver()
	rules := []models.HeaderRule{{
		Source:  "/echo/:slug",
		Headers: []models.Header{{Key: "X-Echo", Value: ":slug"}},
	}}

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"header lookup", "http://example.com/echo/%7B%7Bheader.Cookie%7D%7D", "{{header.Cookie}}"},
		{"huge random string", "http://example.com/echo/%7B%7Brandom.string(50000000)%7D%7D", "{{random.string(50000000)}}"},
		{
			"overflowing int range",
			"http://example.com/echo/%7B%7Brandom.int(-9223372036854775808,9223372036854775807)%7D%7D",
			"{{random.int(-9223372036854775808,9223372036854775807)}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(t, tt.url, http.Header{"Cookie": {"session=SECRET"}})
			result := r.ProcessHeaders(req, rules)
			require.Len(t, result.Headers, 1)
			assert.Equal(t, tt.want, result.Headers[0].Value)
		})
	}
}

func TestProcessHeaders_SkipsRulesWithoutHeaders(t *testing.T) {
	r := newTestResolver()
	rules := []models.HeaderRule{{Source: "/a"}}

	result := r.ProcessHeaders(request(t, "/a", nil), rules)
	assert.Empty(t, result.MatchedRules)
}

func TestMergeHeaderResults(t *testing.T) {
	static := []models.Header{
		{Key: "Cache-Control", Value: "no-store"},
		{Key: "X-Frame-Options", Value: "DENY"},
	}
	dynamic := []models.Header{
		{Key: "cache-control", Value: "public, max-age=60"},
		{Key: "X-Powered-By", Value: "edge"},
	}

	merged := MergeHeaderResults(static, dynamic)

	assert.Equal(t, []models.Header{
		{Key: "Cache-Control", Value: "public, max-age=60"},
		{Key: "X-Frame-Options", Value: "DENY"},
		{Key: "X-Powered-By", Value: "edge"},
	}, merged)
	assert.Equal(t, "no-store", static[0].Value)
}

func TestMergeHeaderResults_Empty(t *testing.T) {
	assert.Equal(t, []models.Header{}, MergeHeaderResults())
	assert.Equal(t, []models.Header{}, MergeHeaderResults(nil, nil))
}

func TestApplyHeaders_Clones(t *testing.T) {
	orig := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}, "X-Old": {"1"}},
	}

	out := ApplyHeaders(orig, []models.Header{
		{Key: "X-Old", Value: "2"},
		{Key: "X-New", Value: "3"},
	})

	require.NotSame(t, orig, out)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, "2", out.Header.Get("X-Old"))
	assert.Equal(t, "3", out.Header.Get("X-New"))
	assert.Equal(t, "text/plain", out.Header.Get("Content-Type"))

	assert.Equal(t, "1", orig.Header.Get("X-Old"))
	assert.Empty(t, orig.Header.Get("X-New"))
}

func TestApplyHeaders_NilHeaderAndResponse(t *testing.T) {
	out := ApplyHeaders(&http.Response{StatusCode: http.StatusNoContent}, []models.Header{{Key: "X", Value: "1"}})
	assert.Equal(t, "1", out.Header.Get("X"))

	assert.Nil(t, ApplyHeaders(nil, nil))
}

func TestCORSHeaders(t *testing.T) {
	headers := CORSHeaders(DefaultCORSOptions())
	byKey := make(map[string]string)
	for _, h := range headers {
		byKey[h.Key] = h.Value
	}

	assert.Equal(t, "*", byKey["Access-Control-Allow-Origin"])
	assert.Equal(t, "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS", byKey["Access-Control-Allow-Methods"])
	assert.Equal(t, "86400", byKey["Access-Control-Max-Age"])
	assert.NotContains(t, byKey, "Access-Control-Allow-Credentials")
	assert.NotContains(t, byKey, "Vary")
}

func TestCORSHeaders_SpecificOrigin(t *testing.T) {
	headers := CORSHeaders(CORSOptions{
		AllowOrigin:      "https://app.example.com",
		ExposeHeaders:    []string{"X-Total-Count"},
		AllowCredentials: true,
	})

	assert.Equal(t, []models.Header{
		{Key: "Access-Control-Allow-Origin", Value: "https://app.example.com"},
		{Key: "Access-Control-Expose-Headers", Value: "X-Total-Count"},
		{Key: "Access-Control-Allow-Credentials", Value: "true"},
		{Key: "Vary", Value: "Origin"},
	}, headers)
}

func TestSecurityHeaders(t *testing.T) {
	headers := SecurityHeaders()
	require.NotEmpty(t, headers)

	keys := make([]string, 0, len(headers))
	for _, h := range headers {
		keys = append(keys, h.Key)
	}
	assert.Contains(t, keys, "X-Content-Type-Options")
	assert.Contains(t, keys, "Strict-Transport-Security")
}

func TestPresetRule_Matches(t *testing.T) {
	r := newTestResolver()
	rule := PresetRule("/api/:path*", SecurityHeaders())

	result := r.ProcessHeaders(request(t, "/api/x", nil), []models.HeaderRule{rule})
	assert.Equal(t, SecurityHeaders(), result.Headers)
}
