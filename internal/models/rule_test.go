package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestUsesBasePath(t *testing.T) {
	off := false
	on := true

	assert.True(t, (&RedirectRule{}).UsesBasePath())
	assert.True(t, (&RewriteRule{BasePath: &on}).UsesBasePath())
	assert.False(t, (&HeaderRule{BasePath: &off}).UsesBasePath())
}

func TestRewritesConfig_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  RewritesConfig
		err   bool
	}{
		{
			name:  "plain list is afterFiles",
			input: `[{"source":"/a","destination":"/b"}]`,
			want:  RewritesConfig{AfterFiles: []RewriteRule{{Source: "/a", Destination: "/b"}}},
		},
		{
			name:  "phased object",
			input: `{"beforeFiles":[{"source":"/x","destination":"/y"}],"fallback":[{"source":"/:p*","destination":"/index.html"}]}`,
			want: RewritesConfig{
				BeforeFiles: []RewriteRule{{Source: "/x", Destination: "/y"}},
				Fallback:    []RewriteRule{{Source: "/:p*", Destination: "/index.html"}},
			},
		},
		{name: "null", input: `null`, want: RewritesConfig{}},
		{name: "string", input: `"nope"`, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got RewritesConfig
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewritesConfig_UnmarshalYAML(t *testing.T) {
	var cfg RouteConfig
	err := yaml.Unmarshal([]byte(`
rewrites:
  beforeFiles:
    - source: /old
      destination: /new
`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Rewrites.Len())
	assert.Equal(t, "/new", cfg.Rewrites.BeforeFiles[0].Destination)

	err = yaml.Unmarshal([]byte("rewrites: 3\n"), &cfg)
	assert.Error(t, err)
}

func TestRouteConfig_Counts(t *testing.T) {
	var nilCfg *RouteConfig
	assert.Equal(t, RuleCounts{}, nilCfg.Counts())

	cfg := &RouteConfig{
		Redirects: []RedirectRule{{}, {}},
		Rewrites: RewritesConfig{
			BeforeFiles: []RewriteRule{{}},
			Fallback:    []RewriteRule{{}, {}, {}},
		},
		Headers: []HeaderRule{{}},
	}
	assert.Equal(t, RuleCounts{Redirects: 2, BeforeFiles: 1, Fallback: 3, Headers: 1}, cfg.Counts())
}

func TestTrace_HasKind(t *testing.T) {
	trace := &Trace{Decisions: []Decision{{Kind: DecisionHeaders}, {Kind: DecisionRewrite}}}

	assert.True(t, trace.HasKind(DecisionRewrite))
	assert.False(t, trace.HasKind(DecisionRedirect))
}

func TestAtomicRuleStat_ToRuleStat(t *testing.T) {
	stat := &AtomicRuleStat{Kind: DecisionRedirect, Source: "/old"}
	assert.Empty(t, stat.ToRuleStat().LastHitTime)

	hit := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stat.Hits.Add(3)
	stat.LastHitTime.Store(hit)

	got := stat.ToRuleStat()
	assert.Equal(t, int64(3), got.Hits)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.LastHitTime)
}
