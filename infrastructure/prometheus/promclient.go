// Package promclient implements the engine's Metrics interface on top of
// prometheus and serves the /metrics endpoint.
package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Metrics struct {
	registry *prometheus.Registry

	syncedBooks    *prometheus.GaugeVec
	resyncs        *prometheus.CounterVec
	appliedUpdates *prometheus.CounterVec
	snapshotFetch  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		syncedBooks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bookbridge_synced_books",
			Help: "order books currently in SYNCED state",
		}, []string{"exchange"}),

		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookbridge_resyncs_total",
			Help: "resyncs triggered by gaps, checksum failures and buffer overflows",
		}, []string{"exchange", "symbol"}),

		appliedUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookbridge_updates_applied_total",
			Help: "incremental depth updates merged into local books",
		}, []string{"exchange", "symbol"}),

		snapshotFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookbridge_snapshot_fetches_total",
			Help: "REST snapshot fetches by result",
		}, []string{"exchange", "symbol", "result"}),
	}

	m.registry.MustRegister(
		m.syncedBooks,
		m.resyncs,
		m.appliedUpdates,
		m.snapshotFetch,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) BookSynced(exchange, symbol string, synced bool) {
	if synced {
		m.syncedBooks.WithLabelValues(exchange).Inc()
	} else {
		m.syncedBooks.WithLabelValues(exchange).Dec()
	}
}

func (m *Metrics) ResyncTriggered(exchange, symbol string) {
	m.resyncs.WithLabelValues(exchange, symbol).Inc()
}

func (m *Metrics) UpdateApplied(exchange, symbol string) {
	m.appliedUpdates.WithLabelValues(exchange, symbol).Inc()
}

func (m *Metrics) SnapshotFetch(exchange, symbol string, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	m.snapshotFetch.WithLabelValues(exchange, symbol, result).Inc()
}

// Serve blocks on the metrics HTTP listener.
func (m *Metrics) Serve(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
