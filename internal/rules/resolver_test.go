package rules

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/prasenjit/edgerules/internal/condition"
	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/pattern"
	"github.com/prasenjit/edgerules/internal/regexcache"
)

func newTestResolver(opts ...Option) *Resolver {
	opts = append([]Option{WithLogger(zap.NewNop()), WithCache(regexcache.New(100))}, opts...)
	return NewResolver(opts...)
}

func request(t *testing.T, target string, header http.Header) *condition.RequestData {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	return condition.NewRequestData(req)
}

func boolPtr(b bool) *bool {
	return &b
}

func TestProcessRedirects_Permanent(t *testing.T) {
	r := newTestResolver()
	rules := []models.RedirectRule{{Source: "/old", Destination: "/new", Permanent: true}}

	result := r.ProcessRedirects(request(t, "/old", nil), rules)

	require.True(t, result.Matched)
	require.NotNil(t, result.Response)
	assert.Equal(t, http.StatusPermanentRedirect, result.Response.StatusCode)
	assert.Equal(t, "/new", result.Response.Location)
	assert.Equal(t, &rules[0], result.Rule)
}

func TestProcessRedirects_Temporary(t *testing.T) {
	r := newTestResolver()
	rules := []models.RedirectRule{{Source: "/blog/:slug", Destination: "/news/:slug"}}

	result := r.ProcessRedirects(request(t, "/blog/hello", nil), rules)

	require.True(t, result.Matched)
	assert.Equal(t, http.StatusTemporaryRedirect, result.Response.StatusCode)
	assert.Equal(t, "/news/hello", result.Response.Location)
	assert.Equal(t, pattern.Params{"slug": pattern.StringParam("hello")}, result.Params)
}

func TestProcessRedirects_StatusCodeOverride(t *testing.T) {
	r := newTestResolver()
	rules := []models.RedirectRule{
		{Source: "/a", Destination: "/b", Permanent: true, StatusCode: http.StatusMovedPermanently},
		{Source: "/c", Destination: "/d", StatusCode: 200},
	}

	assert.Equal(t, http.StatusMovedPermanently, r.ProcessRedirects(request(t, "/a", nil), rules).Response.StatusCode)
	assert.Equal(t, http.StatusTemporaryRedirect, r.ProcessRedirects(request(t, "/c", nil), rules).Response.StatusCode)
}

func TestProcessRedirects_FirstMatchWins(t *testing.T) {
	r := newTestResolver()
	rules := []models.RedirectRule{
		{Source: "/docs/:slug*", Destination: "/first/:slug*"},
		{Source: "/docs/intro", Destination: "/second"},
	}

	result := r.ProcessRedirects(request(t, "/docs/intro", nil), rules)

	require.True(t, result.Matched)
	assert.Equal(t, "/first/intro", result.Response.Location)
	assert.Same(t, &rules[0], result.Rule)
}

func TestProcessRedirects_NoMatch(t *testing.T) {
	r := newTestResolver()
	rules := []models.RedirectRule{{Source: "/old", Destination: "/new"}}

	result := r.ProcessRedirects(request(t, "/other", nil), rules)
	assert.False(t, result.Matched)
	assert.Nil(t, result.Rule)
	assert.Nil(t, result.Response)

	assert.False(t, r.ProcessRedirects(request(t, "/old", nil), nil).Matched)
	assert.False(t, r.ProcessRedirects(nil, rules).Matched)
}

func TestProcessRedirects_DefectiveRulesNeverMatch(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(WithLogger(zap.New(core)), WithCache(regexcache.New(10)))

	rules := []models.RedirectRule{
		{Source: "", Destination: "/x"},
		{Source: "/old", Destination: ""},
		{Source: "/docs/:slug*/edit", Destination: "/x"},
		{Source: "/old", Destination: "/ok", Has: []models.Condition{{Type: "method", Value: "GET"}}},
		{Source: "/old", Destination: "/new"},
	}

	var result RedirectResult
	assert.NotPanics(t, func() {
		result = r.ProcessRedirects(request(t, "/old", nil), rules)
	})
	require.True(t, result.Matched)
	assert.Equal(t, "/new", result.Response.Location)
	assert.Equal(t, 1, logs.FilterMessage("unknown condition type").Len())
}

func TestProcessRedirects_Conditions(t *testing.T) {
	r := newTestResolver()
	rules := []models.RedirectRule{
		{
			Source:      "/account",
			Destination: "/login",
			Missing:     []models.Condition{{Type: "cookie", Key: "session"}},
		},
		{
			Source:      "/account",
			Destination: "/users/:user/account",
			Has:         []models.Condition{{Type: "header", Key: "X-User", Value: "(?P<user>[a-z]+)"}},
		},
	}

	anonymous := r.ProcessRedirects(request(t, "/account", nil), rules)
	require.True(t, anonymous.Matched)
	assert.Equal(t, "/login", anonymous.Response.Location)

	loggedIn := r.ProcessRedirects(request(t, "/account", http.Header{
		"Cookie": {"session=x"},
		"X-User": {"alice"},
	}), rules)
	require.True(t, loggedIn.Matched)
	assert.Equal(t, "/users/alice/account", loggedIn.Response.Location)
	assert.Equal(t, map[string]string{"user": "alice"}, loggedIn.Captures)

	neither := r.ProcessRedirects(request(t, "/account", http.Header{"Cookie": {"session=x"}}), rules)
	assert.False(t, neither.Matched)
}

func TestProcessRedirects_BasePath(t *testing.T) {
	r := newTestResolver(WithBasePath("/docs"))
	rules := []models.RedirectRule{
		{Source: "/old", Destination: "/docs/new"},
		{Source: "/legacy", Destination: "/new", BasePath: boolPtr(false)},
	}

	assert.True(t, r.ProcessRedirects(request(t, "/docs/old", nil), rules).Matched)
	assert.False(t, r.ProcessRedirects(request(t, "/old", nil), rules).Matched)
	assert.True(t, r.ProcessRedirects(request(t, "/legacy", nil), rules).Matched)
	assert.False(t, r.ProcessRedirects(request(t, "/docs/legacy", nil), rules).Matched)
}

func TestProcessRedirects_TrailingSlash(t *testing.T) {
	r := newTestResolver(WithRouteConfig(&models.RouteConfig{TrailingSlash: true}))
	rules := []models.RedirectRule{
		{Source: "/a", Destination: "/b"},
		{Source: "/c", Destination: "/d?x=1"},
		{Source: "/e", Destination: "/feed.xml"},
		{Source: "/f", Destination: "https://example.com/g"},
	}

	assert.Equal(t, "/b/", r.ProcessRedirects(request(t, "/a/", nil), rules).Response.Location)
	assert.Equal(t, "/d/?x=1", r.ProcessRedirects(request(t, "/c", nil), rules).Response.Location)
	assert.Equal(t, "/feed.xml", r.ProcessRedirects(request(t, "/e", nil), rules).Response.Location)
	assert.Equal(t, "https://example.com/g", r.ProcessRedirects(request(t, "/f", nil), rules).Response.Location)
}

func TestRedirectResponse_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	(&RedirectResponse{StatusCode: http.StatusPermanentRedirect, Location: "/new"}).Write(rec)

	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/new", rec.Header().Get("Location"))
}

func TestProcessRewrites_BeforeFiles(t *testing.T) {
	r := newTestResolver()
	cfg := models.RewritesConfig{
		BeforeFiles: []models.RewriteRule{{Source: "/api/v1/:path*", Destination: "/api/v2/:path*"}},
	}

	result := r.ProcessRewrites(request(t, "/api/v1/users", nil), cfg, PhaseBeforeFiles)

	require.True(t, result.Matched)
	assert.False(t, result.IsExternal)
	assert.Equal(t, "/api/v2/users", result.Pathname)
	assert.Equal(t, PhaseBeforeFiles, result.Phase)
}

func TestProcessRewrites_PhaseIsolation(t *testing.T) {
	r := newTestResolver()
	cfg := models.RewritesConfig{
		AfterFiles: []models.RewriteRule{{Source: "/a", Destination: "/b"}},
	}

	assert.False(t, r.ProcessRewrites(request(t, "/a", nil), cfg, PhaseBeforeFiles).Matched)
	assert.False(t, r.ProcessRewrites(request(t, "/a", nil), cfg, PhaseFallback).Matched)
	assert.True(t, r.ProcessRewrites(request(t, "/a", nil), cfg, PhaseAfterFiles).Matched)
}

func TestProcessRewrites_All(t *testing.T) {
	r := newTestResolver()
	cfg := models.RewritesConfig{
		BeforeFiles: []models.RewriteRule{{Source: "/shared", Destination: "/from-before"}},
		AfterFiles: []models.RewriteRule{
			{Source: "/shared", Destination: "/from-after"},
			{Source: "/after-only", Destination: "/after"},
		},
		Fallback: []models.RewriteRule{{Source: "/:path*", Destination: "/fallback/:path*"}},
	}

	tests := []struct {
		path     string
		phase    Phase
		pathname string
	}{
		{"/shared", PhaseBeforeFiles, "/from-before"},
		{"/after-only", PhaseAfterFiles, "/after"},
		{"/anything/else", PhaseFallback, "/fallback/anything/else"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := r.ProcessRewrites(request(t, tt.path, nil), cfg, PhaseAll)
			require.True(t, result.Matched)
			assert.Equal(t, tt.phase, result.Phase)
			assert.Equal(t, tt.pathname, result.Pathname)
		})
	}

	assert.False(t, r.ProcessRewrites(request(t, "/x", nil), models.RewritesConfig{}, PhaseAll).Matched)
}

func TestProcessRewrites_ExternalQueryMerge(t *testing.T) {
	r := newTestResolver()
	cfg := models.RewritesConfig{
		AfterFiles: []models.RewriteRule{
			{Source: "/proxy/:path*", Destination: "https://upstream.example.com/:path*?source=edge"},
			{Source: "/plain", Destination: "http://upstream.example.com/plain"},
		},
	}

	result := r.ProcessRewrites(request(t, "/proxy/users/42?page=2&source=client", nil), cfg, PhaseAfterFiles)
	require.True(t, result.Matched)
	assert.True(t, result.IsExternal)
	assert.Empty(t, result.Pathname)

	u, err := url.Parse(result.ExternalURL)
	require.NoError(t, err)
	assert.Equal(t, "upstream.example.com", u.Host)
	assert.Equal(t, "/users/42", u.Path)
	assert.Equal(t, "2", u.Query().Get("page"))
	assert.Equal(t, []string{"edge"}, u.Query()["source"])

	noQuery := r.ProcessRewrites(request(t, "/plain", nil), cfg, PhaseAfterFiles)
	assert.Equal(t, "http://upstream.example.com/plain", noQuery.ExternalURL)
}

func TestProcessRewrites_UnknownPhase(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(WithLogger(zap.New(core)), WithCache(regexcache.New(10)))
	cfg := models.RewritesConfig{AfterFiles: []models.RewriteRule{{Source: "/a", Destination: "/b"}}}

	assert.False(t, r.ProcessRewrites(request(t, "/a", nil), cfg, Phase("middle")).Matched)
	assert.Equal(t, 1, logs.FilterMessage("unknown rewrite phase").Len())
}

func TestParsePhase(t *testing.T) {
	p, ok := ParsePhase("fallback")
	assert.True(t, ok)
	assert.Equal(t, PhaseFallback, p)

	_, ok = ParsePhase("later")
	assert.False(t, ok)
}
