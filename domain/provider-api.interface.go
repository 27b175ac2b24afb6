package domain

import "context"

// Subscription is one fan-out stream of a multiplexed transport.
type Subscription[T any] struct {
	Stream      <-chan T
	Unsubscribe func()
	Topic       string
}

// SyncAPI is the authoritative REST side of a provider. Implementations
// return a typed *SnapshotFetchError on any failure and never partial data.
type SyncAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*OrderBookSnapshot, error)

	// SnapshotWeight is the request-weight cost of one snapshot call, as
	// declared by the exchange for the configured depth limit.
	SnapshotWeight() int
}

// StreamAPI is the incremental websocket side of a provider.
type StreamAPI interface {
	DepthDiffStream(symbol *MarketSymbol) (*Subscription[*OrderBookUpdate], error)
}

// BookCallback receives every merged snapshot, at most once per merge and in
// merge order. It is the sole interface to the downstream publisher.
type BookCallback func(snapshot *OrderBookSnapshot, updateType UpdateType)
