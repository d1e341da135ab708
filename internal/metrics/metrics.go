package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmgmail_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crmgmail_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmgmail_correspondence_cache_total",
		Help: "Correspondence cache lookups by result.",
	}, []string{"result"})

	accountFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmgmail_account_failures_total",
		Help: "Per-account failures skipped during aggregation.",
	}, []string{"account", "stage"})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmgmail_token_refreshes_total",
		Help: "Access token refresh attempts by outcome.",
	}, []string{"outcome"})

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crmgmail_provider_latency_seconds",
		Help:    "Histogram of mail provider call latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	oauthOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmgmail_oauth_callbacks_total",
		Help: "OAuth callback and disconnect outcomes by status code.",
	}, []string{"status"})
)

// Middleware records request counts and latencies labelled by chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := strconv.Itoa(ww.Status())
			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CacheHit counts a correspondence lookup served from cache.
func CacheHit() { cacheLookups.WithLabelValues("hit").Inc() }

// CacheMiss counts a correspondence lookup that queried the provider.
func CacheMiss() { cacheLookups.WithLabelValues("miss").Inc() }

// AccountFailure counts an account skipped at stage ("token", "list" or "get").
func AccountFailure(accountID, stage string) {
	accountFailures.WithLabelValues(accountID, stage).Inc()
}

// TokenRefresh counts a refresh attempt.
func TokenRefresh(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	tokenRefreshes.WithLabelValues(outcome).Inc()
}

// ObserveProvider records the latency of a provider call started at start.
func ObserveProvider(operation string, start time.Time) {
	providerLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// OAuthOutcome counts an OAuth flow status code.
func OAuthOutcome(status string) {
	oauthOutcomes.WithLabelValues(status).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
