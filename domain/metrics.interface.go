package domain

// Metrics decouples the synchronization engine from the metrics backend.
// The prometheus implementation lives in infrastructure/prometheus.
type Metrics interface {
	BookSynced(exchange, symbol string, synced bool)
	ResyncTriggered(exchange, symbol string)
	UpdateApplied(exchange, symbol string)
	SnapshotFetch(exchange, symbol string, failed bool)
}

type nopMetrics struct{}

func (nopMetrics) BookSynced(string, string, bool)    {}
func (nopMetrics) ResyncTriggered(string, string)     {}
func (nopMetrics) UpdateApplied(string, string)       {}
func (nopMetrics) SnapshotFetch(string, string, bool) {}

// NopMetrics is used when no metrics backend is wired in.
var NopMetrics Metrics = nopMetrics{}
