package domain

type SyncState string

const (
	StateUnsynced SyncState = "UNSYNCED"
	StateSyncing  SyncState = "SYNCING"
	StateSynced   SyncState = "SYNCED"
)

// OrderBookState is the mutable per-symbol aggregate: the merged book, the
// pre-sync buffer, synchronization flags and counters. It is created when a
// symbol is registered and owned exclusively by that symbol's
// update-consumption goroutine; nothing else may write to it.
type OrderBookState struct {
	Exchange string
	Symbol   *MarketSymbol

	Book   *OrderBook // nil until the first merge completes
	Buffer *UpdateBuffer

	State          SyncState
	SyncInProgress bool

	ErrorCount        int
	TotalUpdates      uint64
	FirstUpdateIDSeen uint64
}

func NewOrderBookState(exchange string, symbol *MarketSymbol, bufferCap int) *OrderBookState {
	return &OrderBookState{
		Exchange: exchange,
		Symbol:   symbol,
		Buffer:   NewUpdateBuffer(bufferCap),
		State:    StateUnsynced,
	}
}

func (s *OrderBookState) IsSynced() bool {
	return s.State == StateSynced
}

// Clear drops the merged book and everything buffered, returning the symbol
// to a blank unsynced state. Used after repeated resync failures so a
// corrupted ladder is never compounded.
func (s *OrderBookState) Clear() {
	s.Book = nil
	s.Buffer.Reset()
	s.State = StateUnsynced
	s.ErrorCount = 0
	s.FirstUpdateIDSeen = 0
}

// SymbolStats is a copy of the state's counters, safe to hand across
// goroutines.
type SymbolStats struct {
	Exchange          string
	Symbol            string
	State             SyncState
	LastUpdateID      uint64
	ErrorCount        int
	TotalUpdates      uint64
	FirstUpdateIDSeen uint64
	BufferLen         int
	BidLevels         int
	AskLevels         int
}

func (s *OrderBookState) Stats() SymbolStats {
	stats := SymbolStats{
		Exchange:          s.Exchange,
		Symbol:            s.Symbol.String(),
		State:             s.State,
		ErrorCount:        s.ErrorCount,
		TotalUpdates:      s.TotalUpdates,
		FirstUpdateIDSeen: s.FirstUpdateIDSeen,
		BufferLen:         s.Buffer.Len(),
	}
	if s.Book != nil {
		stats.LastUpdateID = s.Book.LastUpdateID
		stats.BidLevels = len(s.Book.Bids)
		stats.AskLevels = len(s.Book.Asks)
	}
	return stats
}
