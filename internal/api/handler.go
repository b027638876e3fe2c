package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/parser"
	"github.com/prasenjit/edgerules/internal/pattern"
	"github.com/prasenjit/edgerules/internal/proxy"
	"github.com/prasenjit/edgerules/internal/regexcache"
	"github.com/prasenjit/edgerules/internal/stats"
	"github.com/prasenjit/edgerules/internal/storage"
	"github.com/prasenjit/edgerules/internal/tracing"
)

// reloader is implemented by stores backed by a file
type reloader interface {
	Reload() ([]error, error)
}

// Handler handles API requests
type Handler struct {
	store          storage.Store
	statsCollector *stats.Collector
	tracingService *tracing.Service
	proxyEngine    *proxy.Engine
	matcher        *pattern.Matcher
	parser         *parser.Parser
	logger         *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(store storage.Store, statsCollector *stats.Collector, tracingService *tracing.Service, proxyEngine *proxy.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.L()
	}
	return &Handler{
		store:          store,
		statsCollector: statsCollector,
		tracingService: tracingService,
		proxyEngine:    proxyEngine,
		matcher:        pattern.NewMatcher(logger, nil),
		parser:         parser.NewParser(),
		logger:         logger,
	}
}

// GetRules returns the active rule snapshot
func (h *Handler) GetRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// ReplaceRules swaps in a rule set posted as JSON
func (h *Handler) ReplaceRules(c *gin.Context) {
	var cfg models.RouteConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	errs := h.store.Replace(&cfg)
	snap := h.store.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"version":  snap.Version,
		"rules":    snap.Config.Counts(),
		"rejected": errorStrings(errs),
	})
}

// ReloadRules reloads rules from the backing file
func (h *Handler) ReloadRules(c *gin.Context) {
	r, ok := h.store.(reloader)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "Rules are not backed by a file"})
		return
	}

	rejected, err := r.Reload()
	if err != nil {
		h.logger.Error("rules reload failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":  snap.Version,
		"rules":    snap.Config.Counts(),
		"rejected": errorStrings(rejected),
	})
}

// matchInput is the body of POST /_api/match
type matchInput struct {
	Path          string `json:"path"`
	Pattern       string `json:"pattern" binding:"required"`
	BasePath      string `json:"basePath"`
	TrailingSlash bool   `json:"trailingSlash"`
}

// MatchPath matches a path against a pattern
func (h *Handler) MatchPath(c *gin.Context) {
	var input matchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := pattern.Options{BasePath: input.BasePath, TrailingSlash: input.TrailingSlash}
	p, err := h.matcher.Compile(input.Pattern, opts)
	if err != nil {
		var perr *pattern.PatternError
		if errors.As(err, &perr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error(), "pattern": perr.Pattern})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := p.Match(input.Path)
	c.JSON(http.StatusOK, gin.H{
		"matched":   result.Matched,
		"params":    result.Params,
		"regex":     p.Expr(),
		"hasGroups": p.HasGroups(),
	})
}

// resolveInput is the body of POST /_api/resolve
type resolveInput struct {
	Method  string            `json:"method"`
	URL     string            `json:"url" binding:"required"`
	Host    string            `json:"host"`
	Headers map[string]string `json:"headers"`
}

// ResolveRequest runs the loaded rules against a described request
func (h *Handler) ResolveRequest(c *gin.Context) {
	var input resolveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	method := strings.ToUpper(input.Method)
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), method, input.URL, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid url: " + err.Error()})
		return
	}
	if input.Host != "" {
		req.Host = input.Host
	}
	for key, value := range input.Headers {
		req.Header.Set(key, value)
	}

	c.JSON(http.StatusOK, h.proxyEngine.Resolve(req))
}

// importInput is the body of POST /_api/import
type importInput struct {
	Content  string `json:"content" binding:"required"`
	Upstream string `json:"upstream"`
	BasePath string `json:"basePath"`
}

// ImportOpenAPI converts an OpenAPI document into rewrite rules
func (h *Handler) ImportOpenAPI(c *gin.Context) {
	var input importInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.parser.ImportRewrites(input.Content, input.Upstream, input.BasePath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetGlobalStats returns global statistics
func (h *Handler) GetGlobalStats(c *gin.Context) {
	counts := h.store.Snapshot().Config.Counts()
	c.JSON(http.StatusOK, h.statsCollector.GetGlobalStats(counts))
}

// GetRuleStats returns per-rule statistics
func (h *Handler) GetRuleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.statsCollector.GetRuleStats())
}

// ResetStats resets all statistics
func (h *Handler) ResetStats(c *gin.Context) {
	h.statsCollector.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Statistics reset"})
}

// ListTraces returns traces
func (h *Handler) ListTraces(c *gin.Context) {
	if !h.tracingEnabled(c) {
		return
	}

	filter := &models.TraceFilter{
		Kind:   c.Query("kind"),
		Method: c.Query("method"),
		Path:   c.Query("path"),
		Limit:  100, // Default limit
	}

	if v := c.Query("status"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		filter.StatusCode = code
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = limit
	}
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since"})
			return
		}
		filter.StartTime = time.Now().Add(-d)
	}

	c.JSON(http.StatusOK, h.tracingService.GetTraces(filter))
}

// GetTrace returns a single trace
func (h *Handler) GetTrace(c *gin.Context) {
	if !h.tracingEnabled(c) {
		return
	}

	trace := h.tracingService.GetTrace(c.Param("id"))
	if trace == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trace not found"})
		return
	}

	c.JSON(http.StatusOK, trace)
}

// ClearTraces clears all traces
func (h *Handler) ClearTraces(c *gin.Context) {
	if !h.tracingEnabled(c) {
		return
	}

	h.tracingService.ClearTraces()
	c.JSON(http.StatusOK, gin.H{"message": "Traces cleared"})
}

func (h *Handler) tracingEnabled(c *gin.Context) bool {
	if h.tracingService == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tracing is disabled"})
		return false
	}
	return true
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"timestamp":    time.Now().Format(time.RFC3339),
		"rulesVersion": snap.Version,
		"rulesLoaded":  snap.LoadedAt.Format(time.RFC3339),
		"regexCache":   regexcache.Default().Len(),
	})
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
