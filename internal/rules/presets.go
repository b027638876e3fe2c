package rules

import (
	"strconv"
	"strings"

	"github.com/prasenjit/edgerules/internal/models"
)

// CORSOptions configures the CORS header preset
type CORSOptions struct {
	AllowOrigin      string   `yaml:"allowOrigin" json:"allowOrigin"`
	AllowMethods     []string `yaml:"allowMethods" json:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders" json:"allowHeaders"`
	ExposeHeaders    []string `yaml:"exposeHeaders" json:"exposeHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials" json:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge" json:"maxAge"`
}

// DefaultCORSOptions returns a permissive CORS configuration
func DefaultCORSOptions() CORSOptions {
	return CORSOptions{
		AllowOrigin:  "*",
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		MaxAge:       86400,
	}
}

// CORSHeaders builds the CORS response headers for opts. An empty origin
// allows any origin.
func CORSHeaders(opts CORSOptions) []models.Header {
	origin := opts.AllowOrigin
	if origin == "" {
		origin = "*"
	}

	headers := []models.Header{{Key: "Access-Control-Allow-Origin", Value: origin}}

	if len(opts.AllowMethods) > 0 {
		headers = append(headers, models.Header{Key: "Access-Control-Allow-Methods", Value: strings.Join(opts.AllowMethods, ", ")})
	}
	if len(opts.AllowHeaders) > 0 {
		headers = append(headers, models.Header{Key: "Access-Control-Allow-Headers", Value: strings.Join(opts.AllowHeaders, ", ")})
	}
	if len(opts.ExposeHeaders) > 0 {
		headers = append(headers, models.Header{Key: "Access-Control-Expose-Headers", Value: strings.Join(opts.ExposeHeaders, ", ")})
	}
	// Credentials are never allowed together with a wildcard origin
	if opts.AllowCredentials && origin != "*" {
		headers = append(headers, models.Header{Key: "Access-Control-Allow-Credentials", Value: "true"})
	}
	if opts.MaxAge > 0 {
		headers = append(headers, models.Header{Key: "Access-Control-Max-Age", Value: strconv.Itoa(opts.MaxAge)})
	}
	if origin != "*" {
		headers = append(headers, models.Header{Key: "Vary", Value: "Origin"})
	}

	return headers
}

// SecurityHeaders returns a conservative set of security response headers
func SecurityHeaders() []models.Header {
	return []models.Header{
		{Key: "X-Content-Type-Options", Value: "nosniff"},
		{Key: "X-Frame-Options", Value: "DENY"},
		{Key: "Referrer-Policy", Value: "strict-origin-when-cross-origin"},
		{Key: "Strict-Transport-Security", Value: "max-age=63072000; includeSubDomains; preload"},
		{Key: "Permissions-Policy", Value: "camera=(), microphone=(), geolocation=()"},
		{Key: "X-DNS-Prefetch-Control", Value: "on"},
	}
}

// PresetRule wraps preset headers in a header rule for source
func PresetRule(source string, headers []models.Header) models.HeaderRule {
	return models.HeaderRule{Source: source, Headers: headers}
}
