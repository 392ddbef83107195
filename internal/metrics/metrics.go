package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for the crawler and the API.
// All methods are nil-receiver safe so metrics stay optional everywhere.
type Metrics struct {
	Registry        *prometheus.Registry
	FetchesTotal    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	OutcomesTotal   *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	RecordsStored   *prometheus.CounterVec
	EventsPublished prometheus.Counter
	LookupsTotal    *prometheus.CounterVec
	CacheHitsTotal  prometheus.Counter
	CacheMissTotal  prometheus.Counter
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seller_scraper_fetches_total",
			Help: "Total profile fetch attempts by result.",
		},
		[]string{"result"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seller_scraper_fetch_duration_seconds",
			Help:    "Profile fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seller_scraper_crawl_outcomes_total",
			Help: "Terminal crawl outcomes per seller ID.",
		},
		[]string{"status"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seller_scraper_fetch_retries_total",
			Help: "Fetch attempts rescheduled after a retryable failure.",
		},
	)
	stored := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seller_scraper_records_stored_total",
			Help: "Seller records appended per sink.",
		},
		[]string{"sink"},
	)
	events := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seller_scraper_events_published_total",
			Help: "Seller record events delivered to the stream.",
		},
	)
	lookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seller_scraper_lookups_total",
			Help: "On-demand API lookups by result.",
		},
		[]string{"result"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seller_scraper_cache_hits_total",
			Help: "Record cache hits.",
		},
	)
	cacheMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seller_scraper_cache_misses_total",
			Help: "Record cache misses.",
		},
	)

	registry.MustRegister(fetches, fetchDuration, outcomes, retries, stored, events, lookups, cacheHits, cacheMisses)

	return &Metrics{
		Registry:        registry,
		FetchesTotal:    fetches,
		FetchDuration:   fetchDuration,
		OutcomesTotal:   outcomes,
		RetriesTotal:    retries,
		RecordsStored:   stored,
		EventsPublished: events,
		LookupsTotal:    lookups,
		CacheHitsTotal:  cacheHits,
		CacheMissTotal:  cacheMisses,
	}
}

// IncFetch increments the fetch counter for a result label.
func (m *Metrics) IncFetch(result string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(result).Inc()
}

// ObserveFetchDuration records one fetch latency.
func (m *Metrics) ObserveFetchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncOutcome increments the outcome counter for a status label.
func (m *Metrics) IncOutcome(status string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(status).Inc()
}

// IncRetry increments the retry counter.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncStored increments the stored-records counter for a sink label.
func (m *Metrics) IncStored(sink string) {
	if m == nil {
		return
	}
	m.RecordsStored.WithLabelValues(sink).Inc()
}

// IncEventPublished increments the published-events counter.
func (m *Metrics) IncEventPublished() {
	if m == nil {
		return
	}
	m.EventsPublished.Inc()
}

// IncLookup increments the API lookup counter for a result label.
func (m *Metrics) IncLookup(result string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(result).Inc()
}

// IncCacheHit increments the cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// IncCacheMiss increments the cache miss counter.
func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissTotal.Inc()
}
