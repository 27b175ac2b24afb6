package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dorlov/go-bookbridge/domain"
)

// StreamAPI converts books-channel frames into domain updates. The engine
// anchors on REST snapshots, so the snapshot push OKX sends right after a
// subscribe is skipped; only incremental diffs flow downstream.
type StreamAPI struct {
	client *StreamClient
	log    zerolog.Logger
}

// bookData mirrors one element of a books-channel data array:
// {bids, asks, ts, seqId, prevSeqId, checksum}.
type bookData struct {
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	Ts        string     `json:"ts"`
	SeqID     int64      `json:"seqId"`
	PrevSeqID int64      `json:"prevSeqId"`
	Checksum  int32      `json:"checksum"`
}

func NewStreamAPI(client *StreamClient, log zerolog.Logger) *StreamAPI {
	return &StreamAPI{
		client: client,
		log:    log.With().Str("exchange", Exchange).Str("component", "stream-api").Logger(),
	}
}

func (s *StreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	arg := wsArg{Channel: "books", InstID: instID(symbol)}

	frames, unsubscribe, err := s.client.Subscribe(arg)
	if err != nil {
		return nil, err
	}

	updates := make(chan *domain.OrderBookUpdate, 64)
	go func() {
		defer close(updates)
		for frame := range frames {
			for _, update := range s.parseFrame(symbol, frame) {
				updates <- update
			}
		}
	}()

	return &domain.Subscription[*domain.OrderBookUpdate]{
		Stream:      updates,
		Unsubscribe: unsubscribe,
		Topic:       subscriptionKey(arg),
	}, nil
}

func (s *StreamAPI) parseFrame(symbol *domain.MarketSymbol, frame wsFrame) []*domain.OrderBookUpdate {
	var items []bookData
	if err := json.Unmarshal(frame.Data, &items); err != nil {
		s.log.Warn().Err(err).Msg("unparsable books data")
		return nil
	}

	updates := make([]*domain.OrderBookUpdate, 0, len(items))
	for _, item := range items {
		// the post-subscribe snapshot push carries prevSeqId -1
		if item.PrevSeqID < 0 || item.SeqID < 0 {
			continue
		}

		bids, err := domain.ParsePriceLevels(item.Bids)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed books diff")
			continue
		}
		asks, err := domain.ParsePriceLevels(item.Asks)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed books diff")
			continue
		}

		ts, _ := strconv.ParseInt(item.Ts, 10, 64)

		updates = append(updates, &domain.OrderBookUpdate{
			Exchange:      Exchange,
			Symbol:        symbol,
			FirstUpdateID: uint64(item.SeqID),
			LastUpdateID:  uint64(item.SeqID),
			PrevUpdateID:  uint64(item.PrevSeqID),
			Bids:          bids,
			Asks:          asks,
			Checksum:      uint32(item.Checksum),
			Timestamp:     time.UnixMilli(ts),
		})
	}
	return updates
}
