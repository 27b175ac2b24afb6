package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dorlov/go-bookbridge/domain"
)

const defaultRestEndpoint = "https://www.okx.com"

// SyncAPI fetches full books over REST:
// GET /api/v5/market/books?instId=BTC-USDT&sz=N.
type SyncAPI struct {
	endpoint string
	client   *http.Client
}

func NewSyncAPI(endpoint string) *SyncAPI {
	if endpoint == "" {
		endpoint = defaultRestEndpoint
	}
	return &SyncAPI{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type booksResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Asks  [][]string `json:"asks"`
		Bids  [][]string `json:"bids"`
		Ts    string     `json:"ts"`
		SeqID *int64     `json:"seqId"`
	} `json:"data"`
}

func (api *SyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	url := fmt.Sprintf("%s/api/v5/market/books?instId=%s&sz=%d",
		api.endpoint, instID(symbol), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fetchErr(symbol, err)
	}

	resp, err := api.client.Do(req)
	if err != nil {
		return nil, fetchErr(symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fetchErr(symbol, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body))
	}

	var payload booksResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fetchErr(symbol, fmt.Errorf("decoding books payload: %w", err))
	}
	if payload.Code != "0" {
		return nil, fetchErr(symbol, fmt.Errorf("api error code=%s msg=%s", payload.Code, payload.Msg))
	}
	if len(payload.Data) == 0 {
		return nil, fetchErr(symbol, fmt.Errorf("books payload contains no data"))
	}

	book := payload.Data[0]
	bids, err := domain.ParsePriceLevels(book.Bids)
	if err != nil {
		return nil, fetchErr(symbol, err)
	}
	asks, err := domain.ParsePriceLevels(book.Asks)
	if err != nil {
		return nil, fetchErr(symbol, err)
	}

	ts, err := strconv.ParseInt(book.Ts, 10, 64)
	if err != nil {
		return nil, fetchErr(symbol, fmt.Errorf("invalid ts %q: %w", book.Ts, err))
	}

	// seqId anchors the ws diff chain; older gateway versions omit it and
	// the ts-in-ms anchor then only holds until the next periodic resync.
	anchor := uint64(ts)
	if book.SeqID != nil && *book.SeqID >= 0 {
		anchor = uint64(*book.SeqID)
	}

	return &domain.OrderBookSnapshot{
		Exchange:     Exchange,
		Symbol:       symbol,
		LastUpdateID: anchor,
		Bids:         bids,
		Asks:         asks,
		Timestamp:    time.UnixMilli(ts),
	}, nil
}

func (api *SyncAPI) SnapshotWeight() int {
	return 1
}

func instID(symbol *domain.MarketSymbol) string {
	return strings.ToUpper(symbol.Join("-"))
}

func fetchErr(symbol *domain.MarketSymbol, cause error) *domain.SnapshotFetchError {
	return &domain.SnapshotFetchError{
		Exchange: Exchange,
		Symbol:   symbol.String(),
		Cause:    cause,
	}
}
