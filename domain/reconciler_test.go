package domain_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorlov/go-bookbridge/domain"
	"github.com/dorlov/go-bookbridge/provider/binance"
	"github.com/dorlov/go-bookbridge/provider/okx"
)

type bookRecorder struct {
	snapshots []*domain.OrderBookSnapshot
	types     []domain.UpdateType
}

func (r *bookRecorder) callback() domain.BookCallback {
	return func(snapshot *domain.OrderBookSnapshot, updateType domain.UpdateType) {
		r.snapshots = append(r.snapshots, snapshot)
		r.types = append(r.types, updateType)
	}
}

func newBinanceReconciler(t *testing.T, maxErrors int) (*domain.Reconciler, *domain.OrderBookState, *bookRecorder) {
	t.Helper()
	st := domain.NewOrderBookState("binance", mustSymbol(t), 0)
	rec := &bookRecorder{}
	r := domain.NewReconciler(st, binance.NewAdapter(), rec.callback(), nil, maxErrors, zerolog.Nop())
	return r, st, rec
}

func TestMergeAdoptsSnapshotWithEmptyBuffer(t *testing.T) {
	r, st, rec := newBinanceReconciler(t, 0)

	err := r.MergeSnapshot(snapshot(t, 100,
		[][]string{{"100", "1"}},
		[][]string{{"101", "1"}},
	))
	require.NoError(t, err)

	assert.True(t, st.IsSynced())
	assert.Equal(t, uint64(100), st.Book.LastUpdateID)
	require.Len(t, rec.types, 1)
	assert.Equal(t, domain.UpdateTypeFull, rec.types[0])
}

func TestMergeGapFreeBuffer(t *testing.T) {
	// snapshot anchored at 100 with buffered ranges [95,99] [100,105]
	// [106,110]: the first is discarded, the others applied in order
	r, st, _ := newBinanceReconciler(t, 0)

	require.False(t, r.HandleUpdate(update(t, 95, 99, [][]string{{"90", "1"}}, nil)))
	require.False(t, r.HandleUpdate(update(t, 100, 105, [][]string{{"95", "2"}}, nil)))
	require.False(t, r.HandleUpdate(update(t, 106, 110, [][]string{{"96", "3"}}, nil)))
	assert.Equal(t, 3, st.Buffer.Len())

	err := r.MergeSnapshot(snapshot(t, 100,
		[][]string{{"100", "1"}},
		[][]string{{"101", "1"}},
	))
	require.NoError(t, err)

	assert.True(t, st.IsSynced())
	assert.Equal(t, uint64(110), st.Book.LastUpdateID)
	// levels of the two applied diffs are present, the discarded one is not
	assert.Equal(t, []string{"100", "96", "95"}, prices(st.Book.Bids))
	assert.Equal(t, 0, st.Buffer.Len())
}

func TestMergeRejectsStaleSnapshot(t *testing.T) {
	r, st, _ := newBinanceReconciler(t, 0)

	// buffered diffs start past the snapshot anchor: nothing bridges 100+1
	r.HandleUpdate(update(t, 105, 106, nil, nil))

	err := r.MergeSnapshot(snapshot(t, 100,
		[][]string{{"100", "1"}},
		[][]string{{"101", "1"}},
	))
	assert.ErrorIs(t, err, domain.ErrStaleSnapshot)
	assert.False(t, st.IsSynced())
	// the buffer is retained for the next attempt
	assert.Equal(t, 1, st.Buffer.Len())
}

func TestMergeDetectsGapInsideBuffer(t *testing.T) {
	r, st, _ := newBinanceReconciler(t, 0)

	r.HandleUpdate(update(t, 101, 103, nil, nil))
	r.HandleUpdate(update(t, 106, 108, nil, nil)) // 104..105 missing

	err := r.MergeSnapshot(snapshot(t, 100,
		[][]string{{"100", "1"}},
		[][]string{{"101", "1"}},
	))
	assert.ErrorIs(t, err, domain.ErrContinuityGap)
	assert.False(t, st.IsSynced())
	assert.Equal(t, 1, st.ErrorCount)
}

func TestContinuityViolationRequestsResyncOnce(t *testing.T) {
	r, st, rec := newBinanceReconciler(t, 0)
	require.NoError(t, r.MergeSnapshot(snapshot(t, 100,
		[][]string{{"100", "1"}},
		[][]string{{"101", "1"}},
	)))

	// 101 applies, then 103 skips 102
	assert.False(t, r.HandleUpdate(update(t, 101, 101, [][]string{{"99", "1"}}, nil)))
	assert.True(t, r.HandleUpdate(update(t, 103, 103, [][]string{{"98", "1"}}, nil)))

	assert.False(t, st.IsSynced())
	assert.Equal(t, 1, st.ErrorCount)

	// further updates are buffered, not treated as fresh violations
	assert.False(t, r.HandleUpdate(update(t, 104, 104, nil, nil)))
	assert.Equal(t, 1, st.ErrorCount)
	assert.Equal(t, 1, st.Buffer.Len())

	// one FULL merge and one DELTA made it downstream before the gap
	require.Equal(t, []domain.UpdateType{domain.UpdateTypeFull, domain.UpdateTypeDelta}, rec.types)
}

func TestOutdatedLiveUpdateIsNoop(t *testing.T) {
	r, st, rec := newBinanceReconciler(t, 0)
	require.NoError(t, r.MergeSnapshot(snapshot(t, 100,
		[][]string{{"100", "1"}},
		[][]string{{"101", "1"}},
	)))

	assert.False(t, r.HandleUpdate(update(t, 95, 100, [][]string{{"1", "1"}}, nil)))

	assert.True(t, st.IsSynced())
	assert.Equal(t, uint64(100), st.Book.LastUpdateID)
	assert.Equal(t, []string{"100"}, prices(st.Book.Bids))
	require.Len(t, rec.types, 1) // only the FULL merge
}

func TestErrorThresholdClearsState(t *testing.T) {
	r, st, _ := newBinanceReconciler(t, 2)

	require.NoError(t, r.MergeSnapshot(snapshot(t, 100,
		[][]string{{"100", "1"}},
		[][]string{{"101", "1"}},
	)))
	require.True(t, r.HandleUpdate(update(t, 150, 150, nil, nil)))
	require.Equal(t, 1, st.ErrorCount)
	require.NotNil(t, st.Book)

	// second violation crosses the threshold: the whole local state goes
	require.NoError(t, r.MergeSnapshot(snapshot(t, 200,
		[][]string{{"100", "1"}},
		[][]string{{"101", "1"}},
	)))
	require.True(t, r.HandleUpdate(update(t, 300, 300, nil, nil)))

	assert.Nil(t, st.Book)
	assert.Equal(t, 0, st.Buffer.Len())
	assert.Equal(t, 0, st.ErrorCount)
	assert.Equal(t, domain.StateUnsynced, st.State)
}

func TestBufferOverflowForcesFreshResync(t *testing.T) {
	symbol := mustSymbol(t)
	st := domain.NewOrderBookState("binance", symbol, 2)
	r := domain.NewReconciler(st, binance.NewAdapter(), nil, nil, 0, zerolog.Nop())

	assert.False(t, r.HandleUpdate(update(t, 1, 1, nil, nil)))
	assert.False(t, r.HandleUpdate(update(t, 2, 2, nil, nil)))
	// the drop itself must request a resync, exactly once
	assert.True(t, r.HandleUpdate(update(t, 3, 3, nil, nil)))
	assert.False(t, r.HandleUpdate(update(t, 4, 4, nil, nil)))

	// the snapshot fetched before the drop cannot be merged
	err := r.MergeSnapshot(snapshot(t, 1, [][]string{{"100", "1"}}, [][]string{{"101", "1"}}))
	assert.ErrorIs(t, err, domain.ErrBufferOverflow)

	// after the rejection the buffer is clean and the next snapshot lands
	require.NoError(t, r.MergeSnapshot(snapshot(t, 10, [][]string{{"100", "1"}}, [][]string{{"101", "1"}})))
	assert.True(t, st.IsSynced())
}

func okxUpdate(t *testing.T, prev, seq uint64, bids, asks [][]string, checksum uint32) *domain.OrderBookUpdate {
	t.Helper()
	u := update(t, seq, seq, bids, asks)
	u.Exchange = "okx"
	u.PrevUpdateID = prev
	u.Checksum = checksum
	return u
}

func TestOKXChecksumMismatchForcesResync(t *testing.T) {
	symbol := mustSymbol(t)
	st := domain.NewOrderBookState("okx", symbol, 0)
	r := domain.NewReconciler(st, okx.NewAdapter(0), nil, nil, 0, zerolog.Nop())

	snap := snapshot(t, 100, [][]string{{"100", "1"}}, [][]string{{"101", "1"}})
	snap.Exchange = "okx"
	require.NoError(t, r.MergeSnapshot(snap))

	// a diff whose checksum matches the resulting book applies cleanly
	good := levels(t, [][]string{{"99", "2"}})
	wantBids := append(levels(t, [][]string{{"100", "1"}}), good...)
	wantChecksum := okx.Checksum(wantBids, st.Book.Asks)
	assert.False(t, r.HandleUpdate(okxUpdate(t, 100, 101, [][]string{{"99", "2"}}, nil, wantChecksum)))
	assert.True(t, st.IsSynced())

	// corrupting one bid price invalidates the book
	assert.True(t, r.HandleUpdate(okxUpdate(t, 101, 102, [][]string{{"98.5", "1"}}, nil, wantChecksum)))
	assert.False(t, st.IsSynced())
	assert.Equal(t, 1, st.ErrorCount)
}

func TestOKXContinuityIsLinkedList(t *testing.T) {
	adapter := okx.NewAdapter(0)

	ok := okxUpdate(t, 100, 105, nil, nil, 0)
	assert.NoError(t, adapter.ValidateContinuity(ok, 100))

	stale := okxUpdate(t, 90, 100, nil, nil, 0)
	assert.ErrorIs(t, adapter.ValidateContinuity(stale, 100), domain.ErrUpdateOutdated)

	gap := okxUpdate(t, 101, 105, nil, nil, 0)
	assert.ErrorIs(t, adapter.ValidateContinuity(gap, 100), domain.ErrContinuityGap)
}
