package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "neo_radar"

// Metrics holds the Prometheus collectors for the NEO feed service.
type Metrics struct {
	// Refresh cycle metrics.
	RefreshTotal    *prometheus.CounterVec // labels: outcome={success,failure,rejected}, stage={fetch,parse,commit} or empty
	RefreshDuration prometheus.Histogram
	RefreshInFlight prometheus.Gauge
	RecordsUpserted prometheus.Counter
	LastRefresh     prometheus.Gauge

	// Picture of the day results as seen by callers.
	PictureFetches *prometheus.CounterVec // labels: outcome={image,other_media,unavailable}

	// Remote API metrics.
	APIRequests *prometheus.CounterVec   // labels: endpoint={feed,apod}, outcome={success,error}
	APIDuration *prometheus.HistogramVec // labels: endpoint={feed,apod}

	// Cache metrics.
	CachedObjects     prometheus.Gauge
	LiveObservations  prometheus.Gauge
	PublishedMessages *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RefreshTotal,
		m.RefreshDuration,
		m.RefreshInFlight,
		m.RecordsUpserted,
		m.LastRefresh,
		m.PictureFetches,
		m.APIRequests,
		m.APIDuration,
		m.CachedObjects,
		m.LiveObservations,
		m.PublishedMessages,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh cycles by outcome and failing stage.",
		}, []string{"outcome", "stage"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-parse-commit refresh cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RefreshInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_in_flight",
			Help:      "1 while a refresh cycle is running, 0 otherwise.",
		}),
		RecordsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Total NEO records written to the cache.",
		}),
		LastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		PictureFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picture_fetches_total",
			Help:      "Picture of the day fetches by outcome.",
		}, []string{"outcome"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "NASA API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_duration_seconds",
			Help:      "NASA API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		CachedObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_objects",
			Help:      "Rows in the NEO cache after the last commit.",
		}),
		LiveObservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_observations",
			Help:      "Open reactive views over the NEO cache.",
		}),
		PublishedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_messages_total",
			Help:      "NEO records published to Kafka by outcome.",
		}, []string{"outcome"}),
	}
}
