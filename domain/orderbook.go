package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type UpdateType string

const (
	UpdateTypeFull  UpdateType = "FULL"
	UpdateTypeDelta UpdateType = "DELTA"
)

// PriceLevel is one rung of the price ladder. A zero quantity only ever
// appears inside an update, where it marks the level for removal; a merged
// book never stores resting zero-quantity levels.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func NewPriceLevel(price, quantity string) (PriceLevel, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return PriceLevel{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return PriceLevel{}, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	return PriceLevel{Price: p, Quantity: q}, nil
}

// ParsePriceLevels converts the wire format [[price, qty, ...], ...] used by
// every exchange REST and stream payload. Extra columns (OKX sends four) are
// ignored.
func ParsePriceLevels(raw [][]string) ([]PriceLevel, error) {
	levels := make([]PriceLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("price level must have at least 2 columns, got %d", len(entry))
		}
		level, err := NewPriceLevel(entry[0], entry[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// OrderBookSnapshot is a complete book state at one instant, anchored by a
// monotonically increasing update/sequence id.
type OrderBookSnapshot struct {
	Exchange     string
	Symbol       *MarketSymbol
	LastUpdateID uint64
	Bids         []PriceLevel // descending by price
	Asks         []PriceLevel // ascending by price
	Checksum     uint32
	Timestamp    time.Time
}

func (s *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

func (s *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// OrderBookUpdate is one incremental diff pushed by an exchange stream.
// Binance identifies it by a [FirstUpdateID, LastUpdateID] range; OKX chains
// updates linked-list style via PrevUpdateID and attaches a CRC32 checksum
// of the top levels.
type OrderBookUpdate struct {
	Exchange      string
	Symbol        *MarketSymbol
	FirstUpdateID uint64
	LastUpdateID  uint64
	PrevUpdateID  uint64
	Bids          []PriceLevel
	Asks          []PriceLevel
	Checksum      uint32
	Timestamp     time.Time
}

// OrderBook is the locally merged replica for one symbol. It is owned by
// exactly one goroutine (the update-consumption loop) and therefore carries
// no locks; snapshots handed out to other goroutines are deep copies.
type OrderBook struct {
	Exchange       string
	Symbol         *MarketSymbol
	Bids           []PriceLevel // descending by price
	Asks           []PriceLevel // ascending by price
	LastUpdateID   uint64
	LastUpdateTime time.Time
}

func NewOrderBook(snapshot *OrderBookSnapshot) *OrderBook {
	return &OrderBook{
		Exchange:       snapshot.Exchange,
		Symbol:         snapshot.Symbol,
		Bids:           normalizeDepth(snapshot.Bids, false),
		Asks:           normalizeDepth(snapshot.Asks, true),
		LastUpdateID:   snapshot.LastUpdateID,
		LastUpdateTime: snapshot.Timestamp,
	}
}

// ApplyUpdate merges one diff into the ladder. Updates at or below the
// current sequence id are a no-op, which makes replays idempotent.
// Continuity must be validated by the caller before this point.
func (ob *OrderBook) ApplyUpdate(update *OrderBookUpdate) {
	if update.LastUpdateID <= ob.LastUpdateID {
		return
	}

	ob.Bids = applyDepth(ob.Bids, update.Bids, false)
	ob.Asks = applyDepth(ob.Asks, update.Asks, true)
	ob.LastUpdateID = update.LastUpdateID
	ob.LastUpdateTime = update.Timestamp
}

// Snapshot returns a deep copy limited to the given number of levels per
// side; limit <= 0 copies the whole ladder.
func (ob *OrderBook) Snapshot(limit int) *OrderBookSnapshot {
	return &OrderBookSnapshot{
		Exchange:     ob.Exchange,
		Symbol:       ob.Symbol,
		LastUpdateID: ob.LastUpdateID,
		Bids:         copyDepth(ob.Bids, limit),
		Asks:         copyDepth(ob.Asks, limit),
		Timestamp:    ob.LastUpdateTime,
	}
}

func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	if len(ob.Bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.Bids[0], true
}

func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(ob.Asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.Asks[0], true
}

func copyDepth(depth []PriceLevel, limit int) []PriceLevel {
	if limit <= 0 || limit > len(depth) {
		limit = len(depth)
	}
	out := make([]PriceLevel, limit)
	copy(out, depth[:limit])
	return out
}

// applyDepth upserts or removes levels while keeping the side sorted, so no
// re-sort is ever needed after a diff.
func applyDepth(depth []PriceLevel, changes []PriceLevel, ascending bool) []PriceLevel {
	for _, change := range changes {
		i := searchLevel(depth, change.Price, ascending)
		found := i < len(depth) && depth[i].Price.Equal(change.Price)

		switch {
		case change.Quantity.IsZero():
			if found {
				depth = append(depth[:i], depth[i+1:]...)
			}
		case found:
			depth[i].Quantity = change.Quantity
		default:
			depth = append(depth, PriceLevel{})
			copy(depth[i+1:], depth[i:])
			depth[i] = change
		}
	}
	return depth
}

func searchLevel(depth []PriceLevel, price decimal.Decimal, ascending bool) int {
	return sort.Search(len(depth), func(i int) bool {
		if ascending {
			return depth[i].Price.Cmp(price) >= 0
		}
		return depth[i].Price.Cmp(price) <= 0
	})
}

// normalizeDepth sorts, de-duplicates by price and drops zero-quantity
// entries. Snapshots fetched over REST are not trusted to be canonical.
func normalizeDepth(levels []PriceLevel, ascending bool) []PriceLevel {
	depth := make([]PriceLevel, 0, len(levels))
	for _, level := range levels {
		if level.Quantity.IsZero() {
			continue
		}
		depth = append(depth, level)
	}

	sort.SliceStable(depth, func(i, j int) bool {
		if ascending {
			return depth[i].Price.Cmp(depth[j].Price) < 0
		}
		return depth[i].Price.Cmp(depth[j].Price) > 0
	})

	deduped := depth[:0]
	for _, level := range depth {
		if len(deduped) > 0 && deduped[len(deduped)-1].Price.Equal(level.Price) {
			deduped[len(deduped)-1] = level
			continue
		}
		deduped = append(deduped, level)
	}
	return deduped
}
