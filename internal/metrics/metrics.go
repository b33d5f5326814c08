// Package metrics exposes Prometheus collectors for the scrape pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal            *prometheus.CounterVec
	fetchRetriesTotal       prometheus.Counter
	recordsTotal            *prometheus.CounterVec
	recordQualityTotal      *prometheus.CounterVec
	companyCacheTotal       *prometheus.CounterVec
	checkpointWritesTotal   prometheus.Counter
	extractionFailuresTotal *prometheus.CounterVec
	rateLimitDelaySeconds   prometheus.Histogram

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetches_total",
				Help: "Total HTTP fetches, labeled by kind (search, job, company) and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_fetch_retries_total",
				Help: "Total fetch attempts beyond the first.",
			},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_records_total",
				Help: "Total raw records produced, labeled by type (job, company).",
			},
			[]string{"type"},
		)

		recordQualityTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_record_quality_total",
				Help: "Raw records by extraction quality rating.",
			},
			[]string{"quality"},
		)

		companyCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_company_cache_total",
				Help: "Company cache lookups, labeled hit or miss.",
			},
			[]string{"result"},
		)

		checkpointWritesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_checkpoint_writes_total",
				Help: "Interim checkpoint file rewrites.",
			},
		)

		extractionFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extraction_failures_total",
				Help: "Per-record extraction failures, labeled by error class.",
			},
			[]string{"class"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the host rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one completed fetch.
func ObserveFetch(kind, outcome string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRetry counts one retried fetch attempt.
func ObserveRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// ObserveRecord counts one produced record and its quality rating.
func ObserveRecord(recordType, quality string) {
	if recordsTotal == nil {
		return
	}
	recordsTotal.WithLabelValues(recordType).Inc()
	recordQualityTotal.WithLabelValues(quality).Inc()
}

// ObserveCacheLookup counts a company cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if companyCacheTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	companyCacheTotal.WithLabelValues(result).Inc()
}

// ObserveCheckpoint counts one interim checkpoint rewrite.
func ObserveCheckpoint() {
	if checkpointWritesTotal == nil {
		return
	}
	checkpointWritesTotal.Inc()
}

// ObserveExtractionFailure counts a per-record failure by class.
func ObserveExtractionFailure(class string) {
	if extractionFailuresTotal == nil {
		return
	}
	extractionFailuresTotal.WithLabelValues(class).Inc()
}

// ObserveRateLimitDelay records time spent blocked on the limiter.
func ObserveRateLimitDelay(d time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.Observe(d.Seconds())
}
