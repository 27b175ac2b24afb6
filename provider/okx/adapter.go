package okx

import (
	"time"

	"github.com/dorlov/go-bookbridge/domain"
)

const Exchange = "okx"

const defaultResyncInterval = 5 * time.Minute

// Adapter implements the OKX continuity rules: diffs chain linked-list
// style (prevSeqId of a diff equals the seqId of the one before it) and
// every diff carries a CRC32 checksum over the top 25 levels of the merged
// book. A periodic unconditional resync guards against undetected checksum
// collisions.
type Adapter struct {
	resyncInterval time.Duration
}

func NewAdapter(resyncInterval time.Duration) *Adapter {
	if resyncInterval <= 0 {
		resyncInterval = defaultResyncInterval
	}
	return &Adapter{resyncInterval: resyncInterval}
}

func (a *Adapter) Exchange() string {
	return Exchange
}

func (a *Adapter) ValidateContinuity(update *domain.OrderBookUpdate, lastUpdateID uint64) error {
	if update.LastUpdateID <= lastUpdateID {
		return domain.ErrUpdateOutdated
	}
	if update.PrevUpdateID != lastUpdateID {
		return domain.ErrContinuityGap
	}
	return nil
}

func (a *Adapter) BridgesSnapshot(update *domain.OrderBookUpdate, snapshotID uint64) bool {
	return update.PrevUpdateID <= snapshotID && update.LastUpdateID > snapshotID
}

func (a *Adapter) VerifyChecksum(book *domain.OrderBook, update *domain.OrderBookUpdate) error {
	if update.Checksum == 0 {
		return nil
	}
	if Checksum(book.Bids, book.Asks) != update.Checksum {
		return domain.ErrChecksumMismatch
	}
	return nil
}

func (a *Adapter) ResyncInterval() time.Duration {
	return a.resyncInterval
}
