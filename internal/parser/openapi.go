// Package parser imports OpenAPI 3 documents as rewrite rules
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/prasenjit/edgerules/internal/models"
)

var templateParam = regexp.MustCompile(`\{([^}]+)\}`)

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Parser handles OpenAPI 3 specification parsing
type Parser struct{}

// NewParser creates a new OpenAPI parser
func NewParser() *Parser {
	return &Parser{}
}

// ImportResult contains the rewrite rules generated from a document
type ImportResult struct {
	Title    string               `json:"title"`
	Version  string               `json:"version"`
	Upstream string               `json:"upstream"`
	Rules    []models.RewriteRule `json:"rules"`
	Methods  map[string][]string  `json:"methods"` // Rule source -> HTTP methods declared for it
}

// ImportRewrites converts every path of an OpenAPI 3 document into a rewrite
// rule forwarding to upstream. Path templates such as /users/{id} become
// /users/:id. When upstream is empty the first absolute server URL of the
// document is used.
func (p *Parser) ImportRewrites(content, upstream, basePath string) (*ImportResult, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromData([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	if upstream == "" {
		upstream = serverURL(doc)
	}
	if upstream == "" {
		return nil, fmt.Errorf("no upstream given and the document declares no absolute server url")
	}
	u, err := url.Parse(upstream)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q: must be an absolute http(s) url", upstream)
	}
	upstream = strings.TrimSuffix(upstream, "/")
	basePath = normalizeBasePath(basePath)

	result := &ImportResult{
		Upstream: upstream,
		Rules:    []models.RewriteRule{},
		Methods:  make(map[string][]string),
	}
	if doc.Info != nil {
		result.Title = doc.Info.Title
		result.Version = doc.Info.Version
	}

	items := doc.Paths.Map()
	paths := make([]string, 0, len(items))
	for pathPattern := range items {
		paths = append(paths, pathPattern)
	}
	sortPaths(paths)

	for _, pathPattern := range paths {
		pathItem := items[pathPattern]
		if pathItem == nil {
			continue
		}

		converted := ConvertPath(pathPattern)
		source := basePath + converted
		if source == "" {
			source = "/"
		}

		result.Rules = append(result.Rules, models.RewriteRule{
			Source:      source,
			Destination: upstream + converted,
		})
		result.Methods[source] = methods(pathItem)
	}

	return result, nil
}

// ConvertPath rewrites OpenAPI path templates into rule placeholders.
// Parameter names that are not identifiers have their invalid characters
// replaced with underscores.
func ConvertPath(pathPattern string) string {
	return templateParam.ReplaceAllStringFunc(pathPattern, func(match string) string {
		name := invalidNameChars.ReplaceAllString(match[1:len(match)-1], "_")
		if name == "" || (name[0] >= '0' && name[0] <= '9') {
			name = "p" + name
		}
		return ":" + name
	})
}

// serverURL returns the first absolute server URL declared by doc
func serverURL(doc *openapi3.T) string {
	for _, server := range doc.Servers {
		if server == nil {
			continue
		}
		if strings.HasPrefix(server.URL, "http://") || strings.HasPrefix(server.URL, "https://") {
			return server.URL
		}
	}
	return ""
}

// methods lists the HTTP methods a path item declares
func methods(item *openapi3.PathItem) []string {
	out := []string{}
	for _, m := range []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"} {
		if item.GetOperation(m) != nil {
			out = append(out, m)
		}
	}
	return out
}

// sortPaths sorts paths by specificity: paths with fewer parameters come
// first, then longer paths
func sortPaths(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		iParams := strings.Count(paths[i], "{")
		jParams := strings.Count(paths[j], "{")

		if iParams != jParams {
			return iParams < jParams
		}
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return paths[i] < paths[j]
	})
}

// normalizeBasePath ensures the base path is properly formatted
func normalizeBasePath(basePath string) string {
	if basePath == "" {
		return ""
	}

	// Ensure it starts with /
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	return strings.TrimSuffix(basePath, "/")
}
