package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotLimiter is the permit side of the REST rate limiter; the
// implementation lives in the ratelimit package.
type SnapshotLimiter interface {
	// Wait blocks until a permit for one snapshot request is granted, or
	// the context is cancelled.
	Wait(ctx context.Context, symbol string, cost int) error
	RecordError()
	RecordSuccess()
}

type ManagerConfig struct {
	DepthLimit     int
	BufferCap      int
	MaxErrorCount  int
	RequestTimeout time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.DepthLimit <= 0 {
		c.DepthLimit = 1000
	}
	if c.BufferCap <= 0 {
		c.BufferCap = DefaultUpdateBufferCap
	}
	if c.MaxErrorCount <= 0 {
		c.MaxErrorCount = DefaultMaxErrorCount
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}

// bookWorker ties one symbol's state to its two goroutines. The consumption
// goroutine is the sole mutator of the state; the refresh goroutine only
// fetches snapshots and hands them over through the snapshots channel.
type bookWorker struct {
	st  *OrderBookState
	rec *Reconciler
	sub *Subscription[*OrderBookUpdate]

	snapshots chan *OrderBookSnapshot
	resync    chan struct{}
	reads     chan chan *OrderBookSnapshot
	stats     chan chan SymbolStats
}

// requestResync schedules exactly one snapshot fetch. Only the consumption
// goroutine (or Start, before the goroutines run) may call it.
func (w *bookWorker) requestResync() {
	w.st.State = StateSyncing
	w.st.SyncInProgress = true
	select {
	case w.resync <- struct{}{}:
	default:
	}
}

// OrderBookManager supervises one state, one snapshot-refresh goroutine and
// one update-consumption goroutine per symbol. Symbols fail independently: a
// permanently unreachable endpoint leaves its books degraded but never takes
// the manager down.
type OrderBookManager struct {
	adapter   ExchangeAdapter
	syncAPI   SyncAPI
	streamAPI StreamAPI
	limiter   SnapshotLimiter
	onBook    BookCallback
	metrics   Metrics
	cfg       ManagerConfig
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*bookWorker
	started bool
	stopped bool
}

func NewOrderBookManager(
	adapter ExchangeAdapter,
	syncAPI SyncAPI,
	streamAPI StreamAPI,
	limiter SnapshotLimiter,
	onBook BookCallback,
	metrics Metrics,
	cfg ManagerConfig,
	log zerolog.Logger,
) *OrderBookManager {
	if metrics == nil {
		metrics = NopMetrics
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &OrderBookManager{
		adapter:   adapter,
		syncAPI:   syncAPI,
		streamAPI: streamAPI,
		limiter:   limiter,
		onBook:    onBook,
		metrics:   metrics,
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("exchange", adapter.Exchange()).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		workers:   make(map[string]*bookWorker),
	}
}

// Start registers every symbol and spawns its goroutine pair. It fails when
// a stream subscription cannot be established; workers created up to that
// point are torn down again.
func (m *OrderBookManager) Start(symbols []*MarketSymbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("order book manager already started")
	}
	if m.stopped {
		return errors.New("order book manager already stopped")
	}

	for _, symbol := range symbols {
		sub, err := m.streamAPI.DepthDiffStream(symbol)
		if err != nil {
			for _, w := range m.workers {
				w.sub.Unsubscribe()
			}
			m.cancel()
			return fmt.Errorf("subscribing depth stream for %s: %w", symbol.String(), err)
		}

		st := NewOrderBookState(m.adapter.Exchange(), symbol, m.cfg.BufferCap)
		w := &bookWorker{
			st:        st,
			rec:       NewReconciler(st, m.adapter, m.onBook, m.metrics, m.cfg.MaxErrorCount, m.log),
			sub:       sub,
			snapshots: make(chan *OrderBookSnapshot, 1),
			resync:    make(chan struct{}, 1),
			reads:     make(chan chan *OrderBookSnapshot),
			stats:     make(chan chan SymbolStats),
		}
		w.requestResync()
		m.workers[symbol.String()] = w

		m.wg.Add(2)
		go m.runConsumer(w)
		go m.runRefresher(w)
	}

	m.started = true
	m.log.Info().Int("symbols", len(symbols)).Msg("order book manager started")
	return nil
}

// Stop cancels every per-symbol goroutine, waits for them and closes the
// stream subscriptions. Safe to call more than once.
func (m *OrderBookManager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	workers := make([]*bookWorker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	m.cancel()
	for _, w := range workers {
		w.sub.Unsubscribe()
	}
	m.wg.Wait()
	m.log.Info().Msg("order book manager stopped")
}

// GetSnapshot returns a copy of the current merged book, or nil while the
// symbol is unknown or not synced. The copy is produced by the owning
// goroutine, so no lock on the book itself is needed.
func (m *OrderBookManager) GetSnapshot(symbol *MarketSymbol) *OrderBookSnapshot {
	w := m.worker(symbol.String())
	if w == nil {
		return nil
	}

	reply := make(chan *OrderBookSnapshot, 1)
	select {
	case w.reads <- reply:
	case <-m.ctx.Done():
		return nil
	}
	select {
	case snapshot := <-reply:
		return snapshot
	case <-m.ctx.Done():
		return nil
	}
}

// Status reports the sync state and counters of one symbol.
func (m *OrderBookManager) Status(symbol *MarketSymbol) (SymbolStats, error) {
	w := m.worker(symbol.String())
	if w == nil {
		return SymbolStats{}, fmt.Errorf("symbol %s is not managed", symbol.String())
	}

	reply := make(chan SymbolStats, 1)
	select {
	case w.stats <- reply:
	case <-m.ctx.Done():
		return SymbolStats{}, context.Canceled
	}
	select {
	case stats := <-reply:
		return stats, nil
	case <-m.ctx.Done():
		return SymbolStats{}, context.Canceled
	}
}

// Symbols lists the managed symbols.
func (m *OrderBookManager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbols := make([]string, 0, len(m.workers))
	for s := range m.workers {
		symbols = append(symbols, s)
	}
	return symbols
}

func (m *OrderBookManager) worker(symbol string) *bookWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workers[symbol]
}

// runConsumer is the sole mutator of the symbol's state. It applies streamed
// diffs, merges fetched snapshots, serves reads and fires the periodic
// safety resync where the adapter asks for one.
func (m *OrderBookManager) runConsumer(w *bookWorker) {
	defer m.wg.Done()

	var resyncTick <-chan time.Time
	if interval := m.adapter.ResyncInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		resyncTick = ticker.C
	}

	log := m.log.With().Str("symbol", w.st.Symbol.String()).Logger()

	for {
		select {
		case <-m.ctx.Done():
			return

		case update, ok := <-w.sub.Stream:
			if !ok {
				log.Warn().Msg("depth stream closed, symbol degraded")
				if w.st.IsSynced() {
					m.metrics.BookSynced(w.st.Exchange, w.st.Symbol.String(), false)
				}
				w.st.State = StateUnsynced
				m.serveDegraded(w)
				return
			}
			if w.rec.HandleUpdate(update) {
				w.requestResync()
			}

		case snapshot := <-w.snapshots:
			if err := w.rec.MergeSnapshot(snapshot); err != nil {
				w.requestResync()
			}

		case <-resyncTick:
			if w.st.SyncInProgress {
				continue
			}
			log.Debug().Msg("periodic full resync")
			w.requestResync()

		case reply := <-w.reads:
			if w.st.IsSynced() {
				reply <- w.st.Book.Snapshot(0)
			} else {
				reply <- nil
			}

		case reply := <-w.stats:
			reply <- w.st.Stats()
		}
	}
}

// serveDegraded keeps reads and status queries answerable after the symbol's
// stream is gone for good. Reads report not-synced; counters stay visible.
func (m *OrderBookManager) serveDegraded(w *bookWorker) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case reply := <-w.reads:
			reply <- nil
		case reply := <-w.stats:
			reply <- w.st.Stats()
		}
	}
}

// runRefresher waits for resync requests and answers each with exactly one
// successfully fetched snapshot, retrying transient failures under the rate
// limiter's backoff.
func (m *OrderBookManager) runRefresher(w *bookWorker) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-w.resync:
		}
		m.fetchAndDeliver(w)
	}
}

func (m *OrderBookManager) fetchAndDeliver(w *bookWorker) {
	symbol := w.st.Symbol.String()
	log := m.log.With().Str("symbol", symbol).Logger()

	for {
		if err := m.limiter.Wait(m.ctx, symbol, m.syncAPI.SnapshotWeight()); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.RequestTimeout)
		snapshot, err := m.syncAPI.OrderBookSnapshot(ctx, w.st.Symbol, m.cfg.DepthLimit)
		cancel()

		if err != nil {
			m.limiter.RecordError()
			m.metrics.SnapshotFetch(w.st.Exchange, symbol, true)
			log.Warn().Err(err).Msg("snapshot fetch failed")
			if m.ctx.Err() != nil {
				return
			}
			continue
		}

		m.limiter.RecordSuccess()
		m.metrics.SnapshotFetch(w.st.Exchange, symbol, false)

		select {
		case w.snapshots <- snapshot:
		case <-m.ctx.Done():
		}
		return
	}
}
