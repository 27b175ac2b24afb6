package domain

import (
	"errors"

	"github.com/rs/zerolog"
)

const DefaultMaxErrorCount = 5

// Reconciler implements the merge state machine for one symbol:
//
//	UNSYNCED -> SYNCING -> SYNCED -> (gap/checksum failure) -> SYNCING
//
// It combines an authoritative REST snapshot with buffered and live diffs,
// validates continuity through the exchange adapter and detects gaps and
// checksum failures. It mutates OrderBookState and must only ever be called
// from the goroutine owning that state.
type Reconciler struct {
	st            *OrderBookState
	adapter       ExchangeAdapter
	onBook        BookCallback
	metrics       Metrics
	maxErrorCount int
	log           zerolog.Logger

	// gaugeSynced mirrors the synced-books gauge so resyncs while already
	// counted do not double-increment it.
	gaugeSynced bool
}

func NewReconciler(
	st *OrderBookState,
	adapter ExchangeAdapter,
	onBook BookCallback,
	metrics Metrics,
	maxErrorCount int,
	log zerolog.Logger,
) *Reconciler {
	if maxErrorCount <= 0 {
		maxErrorCount = DefaultMaxErrorCount
	}
	if metrics == nil {
		metrics = NopMetrics
	}
	return &Reconciler{
		st:            st,
		adapter:       adapter,
		onBook:        onBook,
		metrics:       metrics,
		maxErrorCount: maxErrorCount,
		log:           log.With().Str("exchange", st.Exchange).Str("symbol", st.Symbol.String()).Logger(),
	}
}

// HandleUpdate processes one streamed diff. While the book is not synced the
// diff is buffered for the next merge; once synced it is applied directly.
// The return value reports whether a resync must be scheduled.
func (r *Reconciler) HandleUpdate(update *OrderBookUpdate) (resyncRequired bool) {
	r.st.TotalUpdates++
	if r.st.FirstUpdateIDSeen == 0 {
		r.st.FirstUpdateIDSeen = update.FirstUpdateID
	}

	if !r.st.IsSynced() {
		wasOverflowed := r.st.Buffer.Overflowed()
		r.st.Buffer.Push(update)
		if r.st.Buffer.Overflowed() && !wasOverflowed {
			// a buffer that dropped diffs can never merge gap-free
			return r.fail(ErrBufferOverflow)
		}
		return false
	}

	return r.applyLive(update)
}

// MergeSnapshot merges a freshly fetched snapshot with the buffered diffs:
// diffs fully covered by the snapshot are discarded, the first retained diff
// has to bridge the snapshot's sequence anchor, and every following diff has
// to chain without a gap. A non-nil return means the caller must fetch a
// fresh snapshot.
func (r *Reconciler) MergeSnapshot(snapshot *OrderBookSnapshot) error {
	if r.st.Buffer.Overflowed() {
		// restart with a clean buffer; the snapshot in hand predates the drop
		r.st.Buffer.Reset()
		return ErrBufferOverflow
	}

	book := NewOrderBook(snapshot)
	pending := r.st.Buffer.Items()

	dropped := 0
	for dropped < len(pending) && pending[dropped].LastUpdateID <= snapshot.LastUpdateID {
		dropped++
	}
	pending = pending[dropped:]

	if len(pending) > 0 && !r.adapter.BridgesSnapshot(pending[0], snapshot.LastUpdateID) {
		r.log.Debug().
			Uint64("snapshot_id", snapshot.LastUpdateID).
			Uint64("first_buffered", pending[0].FirstUpdateID).
			Msg("snapshot does not bridge onto the buffer, refetching")
		return ErrStaleSnapshot
	}

	for i, update := range pending {
		if i > 0 {
			err := r.adapter.ValidateContinuity(update, book.LastUpdateID)
			if errors.Is(err, ErrUpdateOutdated) {
				continue
			}
			if err != nil {
				r.fail(err)
				return err
			}
		}
		book.ApplyUpdate(update)
		if err := r.adapter.VerifyChecksum(book, update); err != nil {
			r.fail(err)
			return err
		}
	}

	r.st.Book = book
	r.st.Buffer.Reset()
	r.st.State = StateSynced
	r.st.SyncInProgress = false
	r.st.ErrorCount = 0

	if !r.gaugeSynced {
		r.metrics.BookSynced(r.st.Exchange, r.st.Symbol.String(), true)
		r.gaugeSynced = true
	}
	r.log.Info().
		Uint64("last_update_id", book.LastUpdateID).
		Int("bids", len(book.Bids)).
		Int("asks", len(book.Asks)).
		Msg("order book synced")

	r.emit(UpdateTypeFull)
	return nil
}

func (r *Reconciler) applyLive(update *OrderBookUpdate) bool {
	err := r.adapter.ValidateContinuity(update, r.st.Book.LastUpdateID)
	switch {
	case errors.Is(err, ErrUpdateOutdated):
		return false
	case err != nil:
		return r.fail(err)
	}

	r.st.Book.ApplyUpdate(update)

	if err := r.adapter.VerifyChecksum(r.st.Book, update); err != nil {
		return r.fail(err)
	}

	r.metrics.UpdateApplied(r.st.Exchange, r.st.Symbol.String())
	r.emit(UpdateTypeDelta)
	return false
}

// fail invalidates the local book, counts the error and reports that exactly
// one resync has to be scheduled. Past the error threshold the entire local
// state is cleared so a corrupted ladder cannot be compounded.
func (r *Reconciler) fail(cause error) bool {
	r.st.ErrorCount++
	r.st.State = StateUnsynced

	if r.gaugeSynced {
		r.metrics.BookSynced(r.st.Exchange, r.st.Symbol.String(), false)
		r.gaugeSynced = false
	}
	r.metrics.ResyncTriggered(r.st.Exchange, r.st.Symbol.String())
	r.log.Warn().Err(cause).Int("error_count", r.st.ErrorCount).Msg("order book invalidated")

	if r.st.ErrorCount >= r.maxErrorCount {
		r.log.Warn().Msg("error threshold reached, clearing local order book state")
		r.st.Clear()
	}
	return true
}

func (r *Reconciler) emit(updateType UpdateType) {
	if r.onBook == nil {
		return
	}
	r.onBook(r.st.Book.Snapshot(0), updateType)
}
