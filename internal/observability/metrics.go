package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the engine.
type Metrics struct {
	ReportsSubmitted prometheus.Counter
	CommentsCreated  prometheus.Counter
	CommentsDeleted  prometheus.Counter
	RatingsUpserted  prometheus.Counter

	// Score aggregation metrics.
	ScoreRecomputes       prometheus.Counter
	ScoreRecomputeSeconds prometheus.Histogram

	// Notification fan-out metrics.
	NotificationsCreated  prometheus.Counter
	FanoutFailures        prometheus.Counter
	FanoutCandidates      prometheus.Histogram
	FanoutDuration        prometheus.Histogram

	// Incident correlation metrics.
	CorrelationLookups *prometheus.CounterVec // labels: outcome={linked,unlinked}
	DiscussionsCreated prometheus.Counter

	// Feed metrics.
	FeedRequests *prometheus.CounterVec // labels: outcome={ok,error}
	FeedPageSize prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={ok,not_found,error}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.ReportsSubmitted,
		m.CommentsCreated,
		m.CommentsDeleted,
		m.RatingsUpserted,
		m.ScoreRecomputes,
		m.ScoreRecomputeSeconds,
		m.NotificationsCreated,
		m.FanoutFailures,
		m.FanoutCandidates,
		m.FanoutDuration,
		m.CorrelationLookups,
		m.DiscussionsCreated,
		m.FeedRequests,
		m.FeedPageSize,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "reports_submitted_total",
			Help:      "Total community reports accepted.",
		}),
		CommentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "comments_created_total",
			Help:      "Total comments inserted.",
		}),
		CommentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "comments_deleted_total",
			Help:      "Total comments deleted.",
		}),
		RatingsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "ratings_upserted_total",
			Help:      "Total rating inserts and replacements.",
		}),
		ScoreRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "score_recomputes_total",
			Help:      "Total post score recomputations.",
		}),
		ScoreRecomputeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_engine",
			Name:      "score_recompute_duration_seconds",
			Help:      "Duration of one serialized mutate-and-recompute cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		NotificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "notifications_created_total",
			Help:      "Total proximity notifications stored.",
		}),
		FanoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "notification_fanout_failures_total",
			Help:      "Per-candidate notification creation failures (isolated, logged, skipped).",
		}),
		FanoutCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_engine",
			Name:      "notification_fanout_candidates",
			Help:      "Number of notifiable users scanned per dispatch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_engine",
			Name:      "notification_fanout_duration_seconds",
			Help:      "Duration of a complete notification fan-out.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		CorrelationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "correlation_lookups_total",
			Help:      "Incident-to-discussion resolutions by outcome.",
		}, []string{"outcome"}),
		DiscussionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "discussions_created_total",
			Help:      "Synthetic discussion posts created for feed incidents.",
		}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "feed_requests_total",
			Help:      "NYC Open Data feed page fetches by outcome.",
		}, []string{"outcome"}),
		FeedPageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_engine",
			Name:      "feed_page_size",
			Help:      "Usable incident records per fetched feed page.",
			Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_engine",
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_engine",
			Name:      "geocode_enabled",
			Help:      "1 when address geocoding is enabled, 0 otherwise.",
		}),
	}
}
