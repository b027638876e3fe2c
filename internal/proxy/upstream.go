package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/config"
	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/rules"
)

// errServerError marks a 5xx upstream response as a breaker failure
var errServerError = errors.New("upstream server error")

type forwardKey struct{}

// forward describes where a single request is sent
type forward struct {
	target  *url.URL
	exact   bool // target is the full URL; otherwise the request path is joined onto it
	headers []models.Header
}

// Upstream forwards requests to external hosts. Each host gets its own
// circuit breaker.
type Upstream struct {
	logger    *zap.Logger
	threshold uint32
	timeout   time.Duration
	metrics   *engineMetrics
	proxy     *httputil.ReverseProxy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewUpstream creates an upstream forwarder
func NewUpstream(cfg config.UpstreamConfig, logger *zap.Logger) *Upstream {
	if logger == nil {
		logger = zap.L()
	}
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}

	u := &Upstream{
		logger:    logger,
		threshold: threshold,
		timeout:   cfg.BreakerTimeout,
		metrics:   getEngineMetrics(),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Timeout > 0 {
		transport.ResponseHeaderTimeout = cfg.Timeout
	}

	u.proxy = &httputil.ReverseProxy{
		Rewrite:        u.rewrite,
		Transport:      &breakerTransport{upstream: u, next: transport},
		ModifyResponse: u.modifyResponse,
		ErrorHandler:   u.handleError,
	}
	return u
}

// Forward proxies r to target. When exact is false the request path and
// query are appended to target.
func (u *Upstream) Forward(w http.ResponseWriter, r *http.Request, target *url.URL, exact bool, headers []models.Header) {
	ctx := context.WithValue(r.Context(), forwardKey{}, &forward{target: target, exact: exact, headers: headers})
	u.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (u *Upstream) rewrite(pr *httputil.ProxyRequest) {
	fw, _ := pr.In.Context().Value(forwardKey{}).(*forward)
	if fw == nil {
		return
	}

	if fw.exact {
		out := *fw.target
		pr.Out.URL = &out
		pr.Out.Host = ""
	} else {
		pr.SetURL(fw.target)
	}
	pr.SetXForwarded()
}

func (u *Upstream) modifyResponse(resp *http.Response) error {
	if resp.Request == nil {
		return nil
	}
	if fw, _ := resp.Request.Context().Value(forwardKey{}).(*forward); fw != nil {
		rules.SetHeaders(resp.Header, fw.headers)
	}
	return nil
}

func (u *Upstream) handleError(w http.ResponseWriter, r *http.Request, err error) {
	host := ""
	if fw, _ := r.Context().Value(forwardKey{}).(*forward); fw != nil {
		host = fw.target.Host
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		u.metrics.breakerRejections.WithLabelValues(host).Inc()
		u.logger.Warn("circuit breaker rejected request",
			zap.String("host", host),
			zap.String("path", r.URL.Path),
		)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	if errors.Is(err, context.Canceled) {
		return
	}

	u.logger.Error("upstream request failed", zap.String("host", host), zap.Error(err))
	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}

// breaker returns the circuit breaker for host, creating it on first use
func (u *Upstream) breaker(host string) *gobreaker.CircuitBreaker {
	u.mu.Lock()
	defer u.mu.Unlock()

	if cb, ok := u.breakers[host]; ok {
		return cb
	}

	threshold := u.threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: u.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			u.logger.Info("circuit breaker state change",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			u.metrics.breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	u.breakers[host] = cb
	return cb
}

// BreakerState returns the state of the breaker for host. Hosts that have
// not been contacted report closed.
func (u *Upstream) BreakerState(host string) gobreaker.State {
	u.mu.Lock()
	cb, ok := u.breakers[host]
	u.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// breakerTransport runs every round trip through the host's breaker
type breakerTransport struct {
	upstream *Upstream
	next     http.RoundTripper
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cb := t.upstream.breaker(req.URL.Host)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerError
		}
		return resp, nil
	})

	resp, _ := result.(*http.Response)
	if errors.Is(err, errServerError) && resp != nil {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
