package domain

import "time"

// ExchangeAdapter encapsulates the continuity and checksum rules that
// differ between exchanges, so the reconciler never branches on an exchange
// name. Binance chains diffs by numeric update-id adjacency; OKX chains them
// linked-list style via prevSeqId and signs the top levels with a CRC32.
type ExchangeAdapter interface {
	Exchange() string

	// ValidateContinuity reports whether the update chains onto the last
	// applied sequence id. Returns nil, ErrUpdateOutdated (skip it) or
	// ErrContinuityGap (the book must be resynced).
	ValidateContinuity(update *OrderBookUpdate, lastUpdateID uint64) error

	// BridgesSnapshot reports whether the update is a valid first diff on
	// top of a freshly fetched snapshot with the given sequence anchor.
	BridgesSnapshot(update *OrderBookUpdate, snapshotID uint64) bool

	// VerifyChecksum is called after the update has been applied. Returns
	// nil or ErrChecksumMismatch.
	VerifyChecksum(book *OrderBook, update *OrderBookUpdate) error

	// ResyncInterval is the period of the unconditional full resync used
	// as a safety net against silent corruption; zero disables it.
	ResyncInterval() time.Duration
}
