// Package metrics provides Prometheus metrics for token acquisition.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/walkabout/corebe/internal/oauth2client"
)

// Result labels for metrics.
const (
	ResultSuccess  = "success"
	ResultRedirect = "redirect"
	ResultFailure  = "failure"
)

const namespace = "corebe"

// TokenMetrics records token cache and acquisition events. It implements
// oauth2client.Observer.
type TokenMetrics struct {
	// cacheHits counts requests served with a cached token.
	cacheHits *prometheus.CounterVec

	// acquisitions counts token acquisitions by result.
	acquisitions *prometheus.CounterVec

	// acquisitionDuration observes how long acquisitions take.
	acquisitionDuration *prometheus.HistogramVec
}

// Compile-time check to ensure TokenMetrics implements oauth2client.Observer
var _ oauth2client.Observer = (*TokenMetrics)(nil)

// NewTokenMetrics creates the token metrics and registers them with reg.
func NewTokenMetrics(reg prometheus.Registerer) (*TokenMetrics, error) {
	m := &TokenMetrics{
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "cache_hits_total",
				Help:      "Total number of requests served with a cached access token",
			},
			[]string{"resource"},
		),
		acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "acquisitions_total",
				Help:      "Total number of access token acquisitions",
			},
			[]string{"resource", "result"},
		),
		acquisitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "acquisition_duration_seconds",
				Help:      "Duration of access token acquisitions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
	}

	for _, c := range []prometheus.Collector{m.cacheHits, m.acquisitions, m.acquisitionDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *TokenMetrics) TokenCacheHit(resourceID string) {
	m.cacheHits.WithLabelValues(resourceID).Inc()
}

func (m *TokenMetrics) TokenAcquired(resourceID string, duration time.Duration, err error) {
	m.acquisitions.WithLabelValues(resourceID, result(err)).Inc()
	m.acquisitionDuration.WithLabelValues(resourceID).Observe(duration.Seconds())
}

func result(err error) string {
	if err == nil {
		return ResultSuccess
	}
	var redirect *oauth2client.RedirectRequiredError
	if errors.As(err, &redirect) {
		return ResultRedirect
	}
	return ResultFailure
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
