package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/proxy"
	"github.com/prasenjit/edgerules/internal/stats"
	"github.com/prasenjit/edgerules/internal/storage"
	"github.com/prasenjit/edgerules/internal/tracing"
)

// Router builds the two HTTP surfaces: the admin API (/_api and /metrics),
// served on its own listener, and the public edge handler.
type Router struct {
	admin          *gin.Engine
	edge           *gin.Engine
	tracingService *tracing.Service
	proxyEngine    *proxy.Engine
	logger         *zap.Logger
	handler        *Handler
	adminToken     string
}

// Option configures a Router
type Option func(*Router)

// WithAdminToken requires "Authorization: Bearer <token>" on every admin
// endpoint except health
func WithAdminToken(token string) Option {
	return func(r *Router) {
		r.adminToken = token
	}
}

// NewRouter creates a new router. tracingService may be nil when tracing is
// disabled.
func NewRouter(store storage.Store, statsCollector *stats.Collector, tracingService *tracing.Service, proxyEngine *proxy.Engine, logger *zap.Logger, opts ...Option) *Router {
	gin.SetMode(gin.ReleaseMode)

	if logger == nil {
		logger = zap.L()
	}

	r := &Router{
		admin:          gin.New(),
		edge:           gin.New(),
		tracingService: tracingService,
		proxyEngine:    proxyEngine,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.handler = NewHandler(store, statsCollector, tracingService, proxyEngine, logger)

	for _, e := range []*gin.Engine{r.admin, r.edge} {
		e.Use(gin.Recovery())
		e.Use(requestID())
		e.Use(requestLogger(logger))
	}

	r.setupAdminRoutes()
	r.setupEdgeRoutes()

	return r
}

// setupAdminRoutes configures the admin API
func (r *Router) setupAdminRoutes() {
	api := r.admin.Group("/_api")
	api.Use(corsMiddleware())

	api.GET("/health", r.handler.HealthCheck)

	api.Use(bearerAuth(r.adminToken))
	{
		// Rules
		api.GET("/rules", r.handler.GetRules)
		api.PUT("/rules", r.handler.ReplaceRules)
		api.POST("/rules/reload", r.handler.ReloadRules)

		// Diagnostics
		api.POST("/match", r.handler.MatchPath)
		api.POST("/resolve", r.handler.ResolveRequest)
		api.POST("/import", r.handler.ImportOpenAPI)

		// Statistics
		api.GET("/stats", r.handler.GetGlobalStats)
		api.GET("/stats/rules", r.handler.GetRuleStats)
		api.POST("/stats/reset", r.handler.ResetStats)

		// Tracing
		api.GET("/traces", r.handler.ListTraces)
		api.GET("/traces/:id", r.handler.GetTrace)
		api.DELETE("/traces", r.handler.ClearTraces)

		// WebSocket for live tracing
		if r.tracingService != nil {
			wsHandler := tracing.NewWebSocketHandler(r.tracingService, r.logger)
			api.GET("/traces/stream", gin.WrapH(wsHandler))
		}
	}

	r.admin.GET("/metrics", bearerAuth(r.adminToken), gin.WrapH(promhttp.Handler()))
}

// setupEdgeRoutes sends every request to the edge engine
func (r *Router) setupEdgeRoutes() {
	r.edge.NoRoute(func(c *gin.Context) {
		r.proxyEngine.ServeHTTP(c.Writer, c.Request)
	})
}

// Handler returns the admin API handler
func (r *Router) Handler() http.Handler {
	return r.admin
}

// EdgeHandler returns the public edge handler
func (r *Router) EdgeHandler() http.Handler {
	return r.edge
}
