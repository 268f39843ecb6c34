package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/gateway"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	RateLimitRejects  *prometheus.CounterVec
	GenerationCalls   *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
	SummaryCache      *prometheus.CounterVec
}

// NewMetrics registers the instruments with reg. A nil reg uses the default
// registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimitRejects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter, by tier.",
		}, []string{"tier"}),
		GenerationCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Text generation calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		GenerationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Text generation latency by purpose.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"purpose"}),
		SummaryCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_cache_lookups_total",
			Help:      "Summary cache lookups by result (hit|miss).",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveRateLimitReject(tier string) {
	m.RateLimitRejects.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveSummaryCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SummaryCache.WithLabelValues(result).Inc()
}

// InstrumentGenerator counts and times every call made through next.
func (m *Metrics) InstrumentGenerator(purpose string, next gateway.Generator) gateway.Generator {
	return gateway.GeneratorFunc(func(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedText, error) {
		start := time.Now()
		out, err := next.Generate(ctx, req)
		m.GenerationLatency.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
		m.GenerationCalls.WithLabelValues(purpose, outcome(err)).Inc()
		return out, err
	})
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var pe *gateway.ProviderError
	if errors.As(err, &pe) && pe.Timeout() {
		return "timeout"
	}
	return "error"
}

// MetricsHandler serves the registry behind g. A nil g serves the default
// gatherer.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
