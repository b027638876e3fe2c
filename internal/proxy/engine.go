// Package proxy serves requests at the edge: it applies the loaded header,
// redirect and rewrite rules, serves static files and forwards everything
// else to an origin.
package proxy

import (
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/condition"
	"github.com/prasenjit/edgerules/internal/config"
	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/rules"
	"github.com/prasenjit/edgerules/internal/stats"
	"github.com/prasenjit/edgerules/internal/storage"
	"github.com/prasenjit/edgerules/internal/tracing"
)

// Options configures an Engine
type Options struct {
	Origin    string // Base URL requests fall through to; empty means 404
	PublicDir string // Directory of static files; empty disables file serving
	Presets   []models.HeaderRule
	Upstream  config.UpstreamConfig
	Logger    *zap.Logger
}

// Engine applies edge rules to incoming requests
type Engine struct {
	store          storage.Store
	statsCollector *stats.Collector
	tracingService *tracing.Service
	logger         *zap.Logger
	origin         *url.URL
	publicDir      string
	presets        []models.HeaderRule
	upstream       *Upstream
	metrics        *engineMetrics

	resolver atomic.Pointer[cachedResolver]
}

// cachedResolver is the resolver built for one snapshot version
type cachedResolver struct {
	version  uint64
	resolver *rules.Resolver
}

// NewEngine creates a new edge engine. tracingService may be nil to disable
// tracing.
func NewEngine(store storage.Store, statsCollector *stats.Collector, tracingService *tracing.Service, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}

	e := &Engine{
		store:          store,
		statsCollector: statsCollector,
		tracingService: tracingService,
		logger:         logger,
		publicDir:      opts.PublicDir,
		presets:        opts.Presets,
		upstream:       NewUpstream(opts.Upstream, logger),
		metrics:        getEngineMetrics(),
	}

	if opts.Origin != "" {
		u, err := url.Parse(opts.Origin)
		if err != nil {
			return nil, fmt.Errorf("invalid origin url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("invalid origin url %q: scheme must be http or https", opts.Origin)
		}
		e.origin = u
	}

	return e, nil
}

// PresetRules builds the preset header rules enabled in cfg
func PresetRules(cfg config.PresetsConfig) []models.HeaderRule {
	source := cfg.Source
	if source == "" {
		source = "/:path*"
	}

	var presets []models.HeaderRule
	if cfg.Security {
		presets = append(presets, rules.PresetRule(source, rules.SecurityHeaders()))
	}
	if cfg.CORS.Enabled {
		opts := rules.DefaultCORSOptions()
		if cfg.CORS.AllowOrigin != "" {
			opts.AllowOrigin = cfg.CORS.AllowOrigin
		}
		if len(cfg.CORS.AllowMethods) > 0 {
			opts.AllowMethods = cfg.CORS.AllowMethods
		}
		if len(cfg.CORS.AllowHeaders) > 0 {
			opts.AllowHeaders = cfg.CORS.AllowHeaders
		}
		if len(cfg.CORS.ExposeHeaders) > 0 {
			opts.ExposeHeaders = cfg.CORS.ExposeHeaders
		}
		if cfg.CORS.MaxAge > 0 {
			opts.MaxAge = cfg.CORS.MaxAge
		}
		opts.AllowCredentials = cfg.CORS.AllowCredentials
		presets = append(presets, rules.PresetRule(source, rules.CORSHeaders(opts)))
	}
	return presets
}

// Resolver returns the resolver for snap, reusing the one built for the
// same snapshot version
func (e *Engine) Resolver(snap *storage.Snapshot) *rules.Resolver {
	if cached := e.resolver.Load(); cached != nil && cached.version == snap.Version {
		return cached.resolver
	}

	r := rules.NewResolver(rules.WithRouteConfig(snap.Config), rules.WithLogger(e.logger))
	e.resolver.Store(&cachedResolver{version: snap.Version, resolver: r})
	return r
}

// ServeHTTP handles incoming requests
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	rec := newStatusRecorder(w)
	snap := e.store.Snapshot()

	decisions := make([]models.Decision, 0, 4)
	outcome := e.serve(rec, r, snap, &decisions)

	duration := time.Since(startTime)
	e.statsCollector.RecordRequest(decisions, duration)
	e.metrics.requestsTotal.WithLabelValues(outcome, strconv.Itoa(rec.status)).Inc()

	if e.tracingService != nil {
		e.tracingService.RecordTrace(&models.Trace{
			Timestamp: startTime,
			Duration:  duration.Nanoseconds(),
			Request: models.TraceRequest{
				Method:  r.Method,
				URL:     r.URL.String(),
				Path:    r.URL.Path,
				Host:    r.Host,
				Headers: redactHeaders(r.Header),
			},
			Decisions: decisions,
			Response: models.TraceResponse{
				StatusCode: rec.status,
				Headers:    redactHeaders(rec.Header()),
			},
		})
	}
}

// sensitiveHeaders are masked in recorded traces
var sensitiveHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie", "Set-Cookie"}

// redactHeaders returns a copy of h with credential headers masked
func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, name := range sensitiveHeaders {
		if _, ok := out[name]; ok {
			out[name] = []string{"[REDACTED]"}
		}
	}
	return out
}

// serve runs the resolution pipeline and returns the kind of the final
// decision
func (e *Engine) serve(w http.ResponseWriter, r *http.Request, snap *storage.Snapshot, decisions *[]models.Decision) string {
	cfg := snap.Config
	res := e.Resolver(snap)
	req := condition.NewRequestData(r)

	// Headers are resolved against the original request path
	presets := res.ProcessHeaders(req, e.presets)
	ruled := res.ProcessHeaders(req, cfg.Headers)
	headers := rules.MergeHeaderResults(presets.Headers, ruled.Headers)
	for _, rule := range ruled.MatchedRules {
		*decisions = append(*decisions, models.Decision{Kind: models.DecisionHeaders, Source: rule.Source, Headers: rule.Headers})
	}

	redirect := res.ProcessRedirects(req, cfg.Redirects)
	if redirect.Matched {
		*decisions = append(*decisions, models.Decision{
			Kind:        models.DecisionRedirect,
			Source:      redirect.Rule.Source,
			Destination: redirect.Response.Location,
			StatusCode:  redirect.Response.StatusCode,
		})
		rules.SetHeaders(w.Header(), headers)
		redirect.Response.Write(w)
		return models.DecisionRedirect
	}

	before := res.ProcessRewrites(req, cfg.Rewrites, rules.PhaseBeforeFiles)
	if before.Matched {
		*decisions = append(*decisions, rewriteDecision(before))
		if before.IsExternal {
			e.forwardExternal(w, r, before.ExternalURL, headers)
			return models.DecisionRewrite
		}
		r = e.rewriteRequest(r, before.Pathname)
		req = condition.NewRequestData(r)
	}

	if e.serveStatic(w, r, headers) {
		*decisions = append(*decisions, models.Decision{Kind: models.DecisionStatic, Destination: r.URL.Path})
		return models.DecisionStatic
	}

	// Fallback rewrites apply only when no afterFiles rewrite matched
	late := res.ProcessRewrites(req, cfg.Rewrites, rules.PhaseAfterFiles)
	if !late.Matched {
		late = res.ProcessRewrites(req, cfg.Rewrites, rules.PhaseFallback)
	}
	if late.Matched {
		*decisions = append(*decisions, rewriteDecision(late))
		if late.IsExternal {
			e.forwardExternal(w, r, late.ExternalURL, headers)
			return models.DecisionRewrite
		}
		r = e.rewriteRequest(r, late.Pathname)

		if e.serveStatic(w, r, headers) {
			*decisions = append(*decisions, models.Decision{Kind: models.DecisionStatic, Destination: r.URL.Path})
			return models.DecisionStatic
		}
	}

	if e.origin != nil {
		*decisions = append(*decisions, models.Decision{Kind: models.DecisionOrigin, Destination: e.origin.String()})
		e.upstream.Forward(w, r, e.origin, false, headers)
		return models.DecisionOrigin
	}

	*decisions = append(*decisions, models.Decision{Kind: models.DecisionNotFound, StatusCode: http.StatusNotFound})
	rules.SetHeaders(w.Header(), headers)
	http.NotFound(w, r)
	return models.DecisionNotFound
}

func rewriteDecision(result rules.RewriteResult) models.Decision {
	d := models.Decision{
		Kind:     models.DecisionRewrite,
		Phase:    string(result.Phase),
		External: result.IsExternal,
	}
	if result.Rule != nil {
		d.Source = result.Rule.Source
	}
	if result.IsExternal {
		d.Destination = result.ExternalURL
	} else {
		d.Destination = result.Pathname
	}
	return d
}

func (e *Engine) forwardExternal(w http.ResponseWriter, r *http.Request, dest string, headers []models.Header) {
	target, err := url.Parse(dest)
	if err != nil {
		e.logger.Warn("invalid rewrite destination", zap.String("destination", dest), zap.Error(err))
		rules.SetHeaders(w.Header(), headers)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	e.upstream.Forward(w, r, target, true, headers)
}

// rewriteRequest returns a copy of r pointing at dest. Query parameters in
// dest override those of the request.
func (e *Engine) rewriteRequest(r *http.Request, dest string) *http.Request {
	u, err := url.Parse(dest)
	if err != nil {
		e.logger.Warn("invalid rewrite destination", zap.String("destination", dest), zap.Error(err))
		return r
	}

	out := r.Clone(r.Context())
	out.URL.Path = u.Path
	out.URL.RawPath = ""
	if u.RawQuery != "" {
		query := r.URL.Query()
		for key, values := range u.Query() {
			query[key] = values
		}
		out.URL.RawQuery = query.Encode()
	}
	return out
}

// serveStatic serves r.URL.Path from the public directory if such a file
// exists. Directories are served through their index.html.
func (e *Engine) serveStatic(w http.ResponseWriter, r *http.Request, headers []models.Header) bool {
	if e.publicDir == "" {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	root := http.Dir(e.publicDir)
	name := path.Clean("/" + r.URL.Path)

	f, info, ok := openFile(root, name)
	if !ok {
		return false
	}
	if info.IsDir() {
		f.Close()
		if f, info, ok = openFile(root, path.Join(name, "index.html")); !ok || info.IsDir() {
			if ok {
				f.Close()
			}
			return false
		}
	}
	defer f.Close()

	rules.SetHeaders(w.Header(), headers)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

func openFile(root http.FileSystem, name string) (http.File, fs.FileInfo, bool) {
	f, err := root.Open(name)
	if err != nil {
		return nil, nil, false
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, false
	}
	return f, info, true
}

// Resolution is a dry run of the rule pipeline for a request
type Resolution struct {
	Headers         []models.Header       `json:"headers"`
	HeaderRules     []models.HeaderRule   `json:"headerRules"`
	Redirect        *rules.RedirectResult `json:"redirect,omitempty"`
	Rewrites        []rules.RewriteResult `json:"rewrites"`
	FinalPath       string                `json:"finalPath"`
	SnapshotVersion uint64                `json:"snapshotVersion"`
}

// Resolve evaluates the loaded rules against r without serving it. Rewrites
// are chained the way ServeHTTP chains them, ignoring static files.
func (e *Engine) Resolve(r *http.Request) *Resolution {
	snap := e.store.Snapshot()
	cfg := snap.Config
	res := e.Resolver(snap)
	req := condition.NewRequestData(r)

	presets := res.ProcessHeaders(req, e.presets)
	ruled := res.ProcessHeaders(req, cfg.Headers)

	out := &Resolution{
		Headers:         rules.MergeHeaderResults(presets.Headers, ruled.Headers),
		HeaderRules:     ruled.MatchedRules,
		Rewrites:        []rules.RewriteResult{},
		FinalPath:       r.URL.Path,
		SnapshotVersion: snap.Version,
	}

	if redirect := res.ProcessRedirects(req, cfg.Redirects); redirect.Matched {
		out.Redirect = &redirect
		return out
	}

	for _, phase := range rules.Phases() {
		if phase == rules.PhaseFallback && len(out.Rewrites) > 0 && out.Rewrites[len(out.Rewrites)-1].Phase == rules.PhaseAfterFiles {
			break
		}
		result := res.ProcessRewrites(req, cfg.Rewrites, phase)
		if !result.Matched {
			continue
		}
		out.Rewrites = append(out.Rewrites, result)
		if result.IsExternal {
			out.FinalPath = ""
			break
		}
		r = e.rewriteRequest(r, result.Pathname)
		req = condition.NewRequestData(r)
		out.FinalPath = r.URL.Path
	}

	return out
}
