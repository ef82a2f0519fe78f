// Package metrics exposes prometheus collectors for ledger, embedding,
// import and search activity. A nil *Metrics is valid and records
// nothing, so services never need to check for it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skald/internal/money"
)

type Metrics struct {
	registry *prometheus.Registry

	charges           *prometheus.CounterVec
	chargedUSD        *prometheus.CounterVec
	rejections        prometheus.Counter
	embeddingRequests *prometheus.CounterVec
	importItems       *prometheus.CounterVec
	searchDuration    prometheus.Histogram
	dimensionMismatch prometheus.Counter
}

// New builds the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skald_ledger_charges_total",
			Help: "Settled ledger charges by category.",
		}, []string{"category"}),
		chargedUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skald_ledger_charged_usd_total",
			Help: "Dollars settled against tenant ledgers by category.",
		}, []string{"category"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_ledger_rejections_total",
			Help: "Operations refused for insufficient balance.",
		}),
		embeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skald_embedding_requests_total",
			Help: "Embedding provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		importItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skald_import_items_total",
			Help: "Bulk import rows by outcome.",
		}, []string{"outcome"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skald_search_duration_seconds",
			Help:    "End to end semantic search latency.",
			Buckets: prometheus.DefBuckets,
		}),
		dimensionMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_ranker_dimension_mismatch_total",
			Help: "Catalog embeddings skipped because their length differed from the query.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.charges, m.chargedUSD, m.rejections, m.embeddingRequests,
		m.importItems, m.searchDuration, m.dimensionMismatch,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Charge(category string, amount money.Amount) {
	if m == nil {
		return
	}
	m.charges.WithLabelValues(category).Inc()
	m.chargedUSD.WithLabelValues(category).Add(amount.Float64())
}

func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

func (m *Metrics) EmbeddingRequest(provider string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.embeddingRequests.WithLabelValues(provider, outcome).Inc()
}

// ImportItem records one bulk row: "added", "invalid", "duplicate",
// "unaffordable", "failed" or "cancelled".
func (m *Metrics) ImportItem(outcome string) {
	if m == nil {
		return
	}
	m.importItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSearch(start time.Time) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) DimensionMismatch() {
	if m == nil {
		return
	}
	m.dimensionMismatch.Inc()
}
