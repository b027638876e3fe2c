package template

import (
	"regexp"

	"github.com/prasenjit/edgerules/internal/pattern"
)

// placeholderPattern matches :name and :name* placeholders. Names must start
// with a letter or underscore, so ports such as :8080 are left alone.
var placeholderPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)\*?`)

// ApplyParams substitutes placeholders in a destination template. Condition
// captures are applied first, then path params over the result. A name
// present in both resolves to the path param. List params are joined with
// "/". Unknown placeholders are kept as written.
func ApplyParams(template string, params pattern.Params, captures map[string]string) string {
	out := template

	if len(captures) > 0 {
		out = replacePlaceholders(out, func(name string) (string, bool) {
			if _, shadowed := params[name]; shadowed {
				return "", false
			}
			v, ok := captures[name]
			return v, ok
		})
	}

	if len(params) > 0 {
		out = replacePlaceholders(out, func(name string) (string, bool) {
			p, ok := params[name]
			if !ok {
				return "", false
			}
			return p.String(), true
		})
	}

	return out
}

func replacePlaceholders(s string, lookup func(name string) (string, bool)) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if v, ok := lookup(sub[1]); ok {
			return v
		}
		return match
	})
}

// Placeholders returns the placeholder names referenced by template, in order
// of first appearance
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
