// Package metrics holds the Prometheus collectors of an audit run.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors on a dedicated registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry      *prometheus.Registry
	FeedsTotal    *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	FetchRetries  prometheus.Counter
	FetchDuration prometheus.Histogram
	OffersTotal   prometheus.Counter
	OfferIssues   *prometheus.CounterVec
	LastRun       prometheus.Gauge
}

// New constructs and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	feeds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedaudit_feeds_total",
			Help: "Configured feeds audited, by result.",
		},
		[]string{"result"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedaudit_fetch_failures_total",
			Help: "Feed and sub-feed fetches that failed, by kind.",
		},
		[]string{"kind"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedaudit_fetch_retries_total",
			Help: "Fetch attempts repeated after a network failure.",
		},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedaudit_fetch_duration_seconds",
			Help:    "Latency of a fetch including retries.",
			Buckets: prometheus.DefBuckets,
		},
	)
	offers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedaudit_offers_total",
			Help: "Offers validated.",
		},
	)
	issues := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedaudit_offer_issues_total",
			Help: "Validation issues found, by field.",
		},
		[]string{"field"},
	)
	lastRun := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedaudit_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		},
	)

	registry.MustRegister(feeds, failures, retries, duration, offers, issues, lastRun)

	return &Metrics{
		Registry:      registry,
		FeedsTotal:    feeds,
		FetchFailures: failures,
		FetchRetries:  retries,
		FetchDuration: duration,
		OffersTotal:   offers,
		OfferIssues:   issues,
		LastRun:       lastRun,
	}
}

// IncFeed counts one audited feed; withErrors selects the result label.
func (m *Metrics) IncFeed(withErrors bool) {
	if m == nil {
		return
	}
	result := "ok"
	if withErrors {
		result = "error"
	}
	m.FeedsTotal.WithLabelValues(result).Inc()
}

// IncFetchFailure counts a failed fetch of the given kind.
func (m *Metrics) IncFetchFailure(kind string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(kind).Inc()
}

// IncRetry counts a repeated fetch attempt.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.FetchRetries.Inc()
}

// ObserveFetch records the duration of a fetch.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// AddOffers counts validated offers.
func (m *Metrics) AddOffers(n int) {
	if m == nil {
		return
	}
	m.OffersTotal.Add(float64(n))
}

// IncIssue counts a validation issue on field.
func (m *Metrics) IncIssue(field string) {
	if m == nil {
		return
	}
	m.OfferIssues.WithLabelValues(field).Inc()
}

// MarkRunFinished stamps the end of a run.
func (m *Metrics) MarkRunFinished(t time.Time) {
	if m == nil {
		return
	}
	m.LastRun.Set(float64(t.Unix()))
}

// WriteTextfile writes the registry in the text exposition format for the node_exporter
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create metrics directory for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
