package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dorlov/go-bookbridge/domain"
)

// StreamAPI converts raw depth frames into domain updates, preserving the
// exchange delivery order.
type StreamAPI struct {
	client *StreamClient
	log    zerolog.Logger
}

// depthUpdateEvent mirrors the wire diff:
// {"e":"depthUpdate","U":first,"u":last,"b":[[price,qty]],"a":[[price,qty]]}.
type depthUpdateEvent struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID uint64     `json:"U"`
	FinalUpdateID uint64     `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

func NewStreamAPI(client *StreamClient, log zerolog.Logger) *StreamAPI {
	return &StreamAPI{
		client: client,
		log:    log.With().Str("exchange", Exchange).Str("component", "stream-api").Logger(),
	}
}

func (s *StreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	topic := fmt.Sprintf("%s@depth@100ms", symbol.Join(""))

	frames, unsubscribe, err := s.client.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	updates := make(chan *domain.OrderBookUpdate, 64)
	go func() {
		defer close(updates)
		for frame := range frames {
			update, err := s.parseUpdate(symbol, frame)
			if err != nil {
				s.log.Warn().Err(err).Str("topic", topic).Msg("dropping malformed depth update")
				continue
			}
			updates <- update
		}
	}()

	return &domain.Subscription[*domain.OrderBookUpdate]{
		Stream:      updates,
		Unsubscribe: unsubscribe,
		Topic:       topic,
	}, nil
}

func (s *StreamAPI) parseUpdate(symbol *domain.MarketSymbol, frame json.RawMessage) (*domain.OrderBookUpdate, error) {
	var event depthUpdateEvent
	if err := json.Unmarshal(frame, &event); err != nil {
		return nil, err
	}

	bids, err := domain.ParsePriceLevels(event.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := domain.ParsePriceLevels(event.Asks)
	if err != nil {
		return nil, err
	}

	return &domain.OrderBookUpdate{
		Exchange:      Exchange,
		Symbol:        symbol,
		FirstUpdateID: event.FirstUpdateID,
		LastUpdateID:  event.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
		Timestamp:     time.UnixMilli(event.EventTime),
	}, nil
}
