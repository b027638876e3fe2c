package pattern

import (
	"fmt"
	"regexp"
)

// Kind identifies the type of a path segment
type Kind int

// Segment kinds
const (
	KindStatic Kind = iota
	KindParam
	KindOptionalParam
	KindCatchAll
	KindOptionalCatchAll
	KindOneOrMore
	KindGroup
)

// String returns the name of the segment kind
func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindParam:
		return "param"
	case KindOptionalParam:
		return "optionalParam"
	case KindCatchAll:
		return "catchAll"
	case KindOptionalCatchAll:
		return "optionalCatchAll"
	case KindOneOrMore:
		return "oneOrMore"
	case KindGroup:
		return "group"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Terminal reports whether the segment consumes the rest of the path
func (k Kind) Terminal() bool {
	switch k {
	case KindCatchAll, KindOptionalCatchAll, KindOneOrMore:
		return true
	case KindStatic, KindParam, KindOptionalParam, KindGroup:
		return false
	default:
		return false
	}
}

// Captures reports whether the segment produces a named parameter
func (k Kind) Captures() bool {
	switch k {
	case KindParam, KindOptionalParam, KindCatchAll, KindOptionalCatchAll, KindOneOrMore:
		return true
	case KindStatic, KindGroup:
		return false
	default:
		return false
	}
}

// Segment is one piece of a compiled path template
type Segment struct {
	Kind Kind   `json:"kind"`
	Raw  string `json:"raw"`
	Name string `json:"name,omitempty"`
}

// StaticSegment creates a literal segment
func StaticSegment(raw string) Segment {
	return Segment{Kind: KindStatic, Raw: raw}
}

// ParamSegment creates a required single-segment parameter
func ParamSegment(raw, name string) Segment {
	return Segment{Kind: KindParam, Raw: raw, Name: name}
}

// OptionalParamSegment creates an optional single-segment parameter
func OptionalParamSegment(raw, name string) Segment {
	return Segment{Kind: KindOptionalParam, Raw: raw, Name: name}
}

// CatchAllSegment creates a required catch-all capturing one or more pieces
func CatchAllSegment(raw, name string) Segment {
	return Segment{Kind: KindCatchAll, Raw: raw, Name: name}
}

// OptionalCatchAllSegment creates a catch-all capturing zero or more pieces
func OptionalCatchAllSegment(raw, name string) Segment {
	return Segment{Kind: KindOptionalCatchAll, Raw: raw, Name: name}
}

// OneOrMoreSegment creates a `:name+` segment capturing one or more pieces
func OneOrMoreSegment(raw, name string) Segment {
	return Segment{Kind: KindOneOrMore, Raw: raw, Name: name}
}

// GroupSegment creates an organizational segment that matches nothing
func GroupSegment(raw, name string) Segment {
	return Segment{Kind: KindGroup, Raw: raw, Name: name}
}

// Fragment returns the regex fragment for the segment, using group as the
// capture group name. The separating slash is not included.
func (s Segment) Fragment(group string) string {
	switch s.Kind {
	case KindStatic:
		return regexp.QuoteMeta(s.Raw)
	case KindParam, KindOptionalParam:
		return "(?P<" + group + ">[^/]+)"
	case KindCatchAll, KindOneOrMore:
		return "(?P<" + group + ">.+)"
	case KindOptionalCatchAll:
		return "(?P<" + group + ">.*)"
	case KindGroup:
		return ""
	default:
		return ""
	}
}
