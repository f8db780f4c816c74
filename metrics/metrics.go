// Package metrics exposes prefetch engine statistics as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	prefetch "github.com/xelixdev/memoized-prefetch"
)

// Collector implements prometheus.Collector over an engine's stats. Register
// it on a registry of your choice; it reads counter snapshots at scrape time
// and is safe to scrape while chunks are being processed.
type Collector struct {
	engine *prefetch.Engine

	hits            *prometheus.Desc
	misses          *prometheus.Desc
	keysFetched     *prometheus.Desc
	entitiesFetched *prometheus.Desc
	evictions       *prometheus.Desc
	associationRows *prometheus.Desc
	cacheEntries    *prometheus.Desc
	cacheCapacity   *prometheus.Desc
}

var relationLabels = []string{"relation"}

// NewCollector builds a Collector for engine.
func NewCollector(engine *prefetch.Engine) *Collector {
	return &Collector{
		engine: engine,
		hits: prometheus.NewDesc(
			"prefetch_cache_hits_total",
			"Distinct keys per chunk satisfied from the relation cache.",
			relationLabels, nil,
		),
		misses: prometheus.NewDesc(
			"prefetch_cache_misses_total",
			"Distinct keys per chunk that required a data-source read.",
			relationLabels, nil,
		),
		keysFetched: prometheus.NewDesc(
			"prefetch_keys_fetched_total",
			"Keys sent to the data source in bulk reads.",
			relationLabels, nil,
		),
		entitiesFetched: prometheus.NewDesc(
			"prefetch_entities_fetched_total",
			"Entities returned by data-source bulk reads.",
			relationLabels, nil,
		),
		evictions: prometheus.NewDesc(
			"prefetch_cache_evictions_total",
			"Entries evicted from the relation cache.",
			relationLabels, nil,
		),
		associationRows: prometheus.NewDesc(
			"prefetch_association_rows_total",
			"Association rows read for multivalued relations.",
			relationLabels, nil,
		),
		cacheEntries: prometheus.NewDesc(
			"prefetch_cache_entries",
			"Entries currently held in the relation cache.",
			relationLabels, nil,
		),
		cacheCapacity: prometheus.NewDesc(
			"prefetch_cache_capacity",
			"Configured capacity of the relation cache.",
			relationLabels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.keysFetched
	ch <- c.entitiesFetched
	ch <- c.evictions
	ch <- c.associationRows
	ch <- c.cacheEntries
	ch <- c.cacheCapacity
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.engine.Stats() {
		counter := func(desc *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), s.Name)
		}
		gauge := func(desc *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), s.Name)
		}
		counter(c.hits, s.CacheHits)
		counter(c.misses, s.CacheMisses)
		counter(c.keysFetched, s.KeysFetched)
		counter(c.entitiesFetched, s.EntitiesFetched)
		counter(c.evictions, s.Evictions)
		counter(c.associationRows, s.AssociationRows)
		gauge(c.cacheEntries, s.CacheLen)
		gauge(c.cacheCapacity, s.CacheCap)
	}
}
