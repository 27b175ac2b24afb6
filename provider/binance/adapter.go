package binance

import (
	"time"

	"github.com/dorlov/go-bookbridge/domain"
)

const Exchange = "binance"

// Adapter implements the Binance continuity rules: every diff carries a
// [U, u] update-id range, the first diff applied on a snapshot with anchor
// U0 must satisfy U <= U0+1 <= u, and each following diff must start exactly
// one past the previous one. Binance publishes no checksum.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Exchange() string {
	return Exchange
}

func (a *Adapter) ValidateContinuity(update *domain.OrderBookUpdate, lastUpdateID uint64) error {
	if update.LastUpdateID <= lastUpdateID {
		return domain.ErrUpdateOutdated
	}
	if update.FirstUpdateID != lastUpdateID+1 {
		return domain.ErrContinuityGap
	}
	return nil
}

func (a *Adapter) BridgesSnapshot(update *domain.OrderBookUpdate, snapshotID uint64) bool {
	return update.FirstUpdateID <= snapshotID+1 && update.LastUpdateID >= snapshotID+1
}

func (a *Adapter) VerifyChecksum(*domain.OrderBook, *domain.OrderBookUpdate) error {
	return nil
}

func (a *Adapter) ResyncInterval() time.Duration {
	return 0
}
