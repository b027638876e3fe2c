// Package pattern compiles path templates such as /users/:id, /docs/:slug*,
// /docs/[...slug] or /(marketing)/about into anchored regular expressions
// and matches request paths against them.
package pattern

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/prasenjit/edgerules/internal/regexcache"
)

// PatternError reports a path template that cannot be compiled
type PatternError struct {
	Pattern string
	Reason  string
	Err     error
}

// Error implements the error interface
func (e *PatternError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid pattern %q: %s: %v", e.Pattern, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Reason)
}

// Unwrap returns the underlying error
func (e *PatternError) Unwrap() error {
	return e.Err
}

var paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSegments splits a path template into typed segments. Empty pieces
// are discarded. At most one catch-all class segment is allowed and it must
// be the last segment that consumes path.
func ParseSegments(template string) ([]Segment, error) {
	pieces := strings.Split(template, "/")
	segments := make([]Segment, 0, len(pieces))
	terminal := ""

	for _, piece := range pieces {
		if piece == "" {
			continue
		}

		seg, err := classify(piece)
		if err != nil {
			return nil, &PatternError{Pattern: template, Reason: err.Error()}
		}

		if terminal != "" && seg.Kind != KindGroup {
			return nil, &PatternError{
				Pattern: template,
				Reason:  fmt.Sprintf("segment %q follows catch-all %q", piece, terminal),
			}
		}
		if seg.Kind.Terminal() {
			terminal = piece
		}

		segments = append(segments, seg)
	}

	return segments, nil
}

// classify determines the kind of a single non-empty piece. The checks run
// in precedence order; the first one that matches wins.
func classify(piece string) (Segment, error) {
	switch {
	case len(piece) > 2 && strings.HasPrefix(piece, "(") && strings.HasSuffix(piece, ")"):
		return GroupSegment(piece, piece[1:len(piece)-1]), nil

	case strings.HasPrefix(piece, "[[...") && strings.HasSuffix(piece, "]]"):
		return named(piece, piece[5:len(piece)-2], OptionalCatchAllSegment)
	case strings.HasPrefix(piece, ":") && strings.HasSuffix(piece, "*"):
		return named(piece, piece[1:len(piece)-1], OptionalCatchAllSegment)

	case strings.HasPrefix(piece, ":") && strings.HasSuffix(piece, "+"):
		return named(piece, piece[1:len(piece)-1], OneOrMoreSegment)
	case strings.HasPrefix(piece, "[...") && strings.HasSuffix(piece, "]"):
		return named(piece, piece[4:len(piece)-1], CatchAllSegment)

	case strings.HasPrefix(piece, ":") && strings.HasSuffix(piece, "?"):
		return named(piece, piece[1:len(piece)-1], OptionalParamSegment)

	// Single brackets are a required dynamic segment, not an optional one
	case strings.HasPrefix(piece, "[") && !strings.HasPrefix(piece, "[[") && strings.HasSuffix(piece, "]"):
		return named(piece, piece[1:len(piece)-1], ParamSegment)
	case strings.HasPrefix(piece, ":"):
		return named(piece, piece[1:], ParamSegment)

	default:
		return StaticSegment(piece), nil
	}
}

func named(piece, name string, build func(raw, name string) Segment) (Segment, error) {
	if !paramNamePattern.MatchString(name) {
		return Segment{}, fmt.Errorf("invalid parameter name %q in segment %q", name, piece)
	}
	return build(piece, name), nil
}

// capture ties a regex capture group to a declared parameter
type capture struct {
	group    string
	name     string
	list     bool
	required bool
}

// Pattern is a compiled path template
type Pattern struct {
	source   string
	segments []Segment
	expr     string
	regex    *regexp.Regexp
	captures []capture
	names    []string
}

// Compile parses and compiles a path template using the default regex cache
func Compile(template string) (*Pattern, error) {
	return compileWith(regexcache.Default(), template)
}

func compileWith(cache *regexcache.Cache, template string) (*Pattern, error) {
	source := normalize(template)

	segments, err := ParseSegments(source)
	if err != nil {
		return nil, err
	}

	expr, captures := assemble(segments)

	regex, err := cache.Compile(expr)
	if err != nil {
		return nil, &PatternError{Pattern: template, Reason: "regex construction failed", Err: err}
	}

	names := make([]string, 0, len(captures))
	seen := make(map[string]bool, len(captures))
	for _, c := range captures {
		if !seen[c.name] {
			seen[c.name] = true
			names = append(names, c.name)
		}
	}

	return &Pattern{
		source:   source,
		segments: segments,
		expr:     expr,
		regex:    regex,
		captures: captures,
		names:    names,
	}, nil
}

// assemble builds the anchored regex for the segments. Groups contribute
// nothing; a catch-all class segment ends the expression.
func assemble(segments []Segment) (string, []capture) {
	var b strings.Builder
	var captures []capture

	b.WriteString("^")
	terminated := false

	for _, seg := range segments {
		group := ""
		if seg.Kind.Captures() {
			group = "p" + strconv.Itoa(len(captures))
			captures = append(captures, capture{
				group:    group,
				name:     seg.Name,
				list:     seg.Kind.Terminal(),
				required: seg.Kind == KindCatchAll || seg.Kind == KindOneOrMore,
			})
		}

		switch seg.Kind {
		case KindGroup:
			continue
		case KindStatic, KindParam:
			b.WriteString("/")
			b.WriteString(seg.Fragment(group))
		case KindOptionalParam:
			b.WriteString("(?:/")
			b.WriteString(seg.Fragment(group))
			b.WriteString(")?")
		case KindCatchAll, KindOneOrMore:
			b.WriteString("/")
			b.WriteString(seg.Fragment(group))
			b.WriteString("$")
			terminated = true
		case KindOptionalCatchAll:
			b.WriteString("(?:/")
			b.WriteString(seg.Fragment(group))
			b.WriteString(")?$")
			terminated = true
		}

		if terminated {
			break
		}
	}

	if !terminated {
		b.WriteString("$")
	}

	return b.String(), captures
}

// Match matches an already normalized or raw path against the pattern
func (p *Pattern) Match(pathname string) MatchResult {
	subject := normalize(pathname)
	// The root path is matched as the empty string so that patterns made
	// only of optional segments (and "/" itself) accept it
	if subject == "/" {
		subject = ""
	}

	m := p.regex.FindStringSubmatch(subject)
	if m == nil {
		return MatchResult{}
	}

	params := make(Params, len(p.names))
	for _, c := range p.captures {
		idx := p.regex.SubexpIndex(c.group)
		value := ""
		if idx > 0 && idx < len(m) {
			value = m[idx]
		}

		if c.list {
			pieces := splitPieces(value)
			// A capture made only of slashes leaves nothing to bind
			if c.required && len(pieces) == 0 {
				return MatchResult{}
			}
			params[c.name] = ListParam(pieces)
		} else {
			params[c.name] = StringParam(value)
		}
	}

	return MatchResult{Matched: true, Params: params}
}

// Source returns the normalized template
func (p *Pattern) Source() string {
	return p.source
}

// Expr returns the assembled regular expression
func (p *Pattern) Expr() string {
	return p.expr
}

// Segments returns a copy of the parsed segments
func (p *Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Names returns the declared parameter names in order of appearance
func (p *Pattern) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// HasGroups reports whether the template contains organizational groups
func (p *Pattern) HasGroups() bool {
	for _, seg := range p.segments {
		if seg.Kind == KindGroup {
			return true
		}
	}
	return false
}

// splitPieces splits a catch-all capture on "/" dropping empty pieces
func splitPieces(value string) []string {
	pieces := make([]string, 0)
	for _, piece := range strings.Split(value, "/") {
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}

// normalize strips a single trailing slash; the root stays "/"
func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return p[:len(p)-1]
	}
	return p
}
