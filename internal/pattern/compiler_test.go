package pattern

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegments_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		template string
		expected []Segment
	}{
		{
			name:     "static only",
			template: "/about/team",
			expected: []Segment{StaticSegment("about"), StaticSegment("team")},
		},
		{
			name:     "colon param",
			template: "/users/:id",
			expected: []Segment{StaticSegment("users"), ParamSegment(":id", "id")},
		},
		{
			name:     "bracket param is required",
			template: "/users/[id]",
			expected: []Segment{StaticSegment("users"), ParamSegment("[id]", "id")},
		},
		{
			name:     "optional param",
			template: "/:lang?/docs",
			expected: []Segment{OptionalParamSegment(":lang?", "lang"), StaticSegment("docs")},
		},
		{
			name:     "colon optional catch-all",
			template: "/docs/:slug*",
			expected: []Segment{StaticSegment("docs"), OptionalCatchAllSegment(":slug*", "slug")},
		},
		{
			name:     "bracket optional catch-all",
			template: "/products/[[...cat]]",
			expected: []Segment{StaticSegment("products"), OptionalCatchAllSegment("[[...cat]]", "cat")},
		},
		{
			name:     "bracket catch-all",
			template: "/docs/[...slug]",
			expected: []Segment{StaticSegment("docs"), CatchAllSegment("[...slug]", "slug")},
		},
		{
			name:     "one or more",
			template: "/files/:path+",
			expected: []Segment{StaticSegment("files"), OneOrMoreSegment(":path+", "path")},
		},
		{
			name:     "group",
			template: "/(marketing)/login",
			expected: []Segment{GroupSegment("(marketing)", "marketing"), StaticSegment("login")},
		},
		{
			name:     "empty pieces dropped",
			template: "//a///b/",
			expected: []Segment{StaticSegment("a"), StaticSegment("b")},
		},
		{
			name:     "root",
			template: "/",
			expected: []Segment{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := ParseSegments(tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, segments)
		})
	}
}

func TestParseSegments_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{name: "segment after catch-all", template: "/docs/:slug*/edit"},
		{name: "segment after bracket catch-all", template: "/docs/[...slug]/edit"},
		{name: "two catch-alls", template: "/a/:x+/:y*"},
		{name: "empty param name", template: "/users/:"},
		{name: "invalid param name", template: "/users/:user-id"},
		{name: "empty bracket catch-all", template: "/docs/[...]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := ParseSegments(tt.template)
			assert.Nil(t, segments)

			var perr *PatternError
			require.True(t, errors.As(err, &perr), "expected PatternError, got %v", err)
			assert.Equal(t, tt.template, perr.Pattern)
		})
	}
}

func TestParseSegments_GroupAfterCatchAllAllowed(t *testing.T) {
	segments, err := ParseSegments("/docs/:slug*/(meta)")
	require.NoError(t, err)
	assert.Len(t, segments, 3)
	assert.Equal(t, KindGroup, segments[2].Kind)
}

func TestSegment_FragmentEscapesStatic(t *testing.T) {
	seg := StaticSegment("file.v1+(beta)")
	assert.Equal(t, `file\.v1\+\(beta\)`, seg.Fragment(""))
}

func TestCompile_Expr(t *testing.T) {
	tests := []struct {
		template string
		expr     string
	}{
		{"/", "^$"},
		{"/users/:id", `^/users/(?P<p0>[^/]+)$`},
		{"/docs/:slug*", `^/docs(?:/(?P<p0>.*))?$`},
		{"/docs/[...slug]", `^/docs/(?P<p0>.+)$`},
		{"/:lang?/about", `^(?:/(?P<p0>[^/]+))?/about$`},
		{"/(group)/login", `^/login$`},
		{"/a.b", `^/a\.b$`},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			p, err := Compile(tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, p.Expr())
		})
	}
}

func TestCompile_NamesAndGroups(t *testing.T) {
	p, err := Compile("/(shop)/:category/[id]/:rest*")
	require.NoError(t, err)

	assert.Equal(t, []string{"category", "id", "rest"}, p.Names())
	assert.True(t, p.HasGroups())
	assert.Equal(t, "/(shop)/:category/[id]/:rest*", p.Source())
	assert.Len(t, p.Segments(), 4)
}

func TestCompile_TrailingSlashNormalized(t *testing.T) {
	p, err := Compile("/users/:id/")
	require.NoError(t, err)
	assert.Equal(t, "/users/:id", p.Source())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "static", KindStatic.String())
	assert.Equal(t, "optionalCatchAll", KindOptionalCatchAll.String())
	assert.Equal(t, "group", KindGroup.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestKind_TerminalAndCaptures(t *testing.T) {
	for _, k := range []Kind{KindCatchAll, KindOptionalCatchAll, KindOneOrMore} {
		assert.True(t, k.Terminal(), k.String())
		assert.True(t, k.Captures(), k.String())
	}
	for _, k := range []Kind{KindParam, KindOptionalParam} {
		assert.False(t, k.Terminal(), k.String())
		assert.True(t, k.Captures(), k.String())
	}
	for _, k := range []Kind{KindStatic, KindGroup} {
		assert.False(t, k.Terminal(), k.String())
		assert.False(t, k.Captures(), k.String())
	}
}

func TestPatternError_Message(t *testing.T) {
	err := &PatternError{Pattern: "/x", Reason: "bad"}
	assert.Equal(t, `invalid pattern "/x": bad`, err.Error())

	wrapped := &PatternError{Pattern: "/x", Reason: "regex construction failed", Err: errors.New("boom")}
	assert.Contains(t, wrapped.Error(), "boom")
	assert.EqualError(t, errors.Unwrap(wrapped), "boom")
}
