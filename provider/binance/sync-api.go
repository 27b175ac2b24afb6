package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dorlov/go-bookbridge/domain"
)

const defaultRestEndpoint = "https://api.binance.com"

// SyncAPI fetches authoritative depth snapshots over REST. Callers are
// expected to hold a rate-limit permit before calling; the declared weight
// of the endpoint is exposed through SnapshotWeight.
type SyncAPI struct {
	endpoint   string
	depthLimit int
	client     *http.Client
}

func NewSyncAPI(endpoint string, depthLimit int) *SyncAPI {
	if endpoint == "" {
		endpoint = defaultRestEndpoint
	}
	return &SyncAPI{
		endpoint:   endpoint,
		depthLimit: depthLimit,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type depthResponse struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

func (api *SyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d",
		api.endpoint, strings.ToUpper(symbol.Join("")), limit)

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

	var payload depthResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fetchErr(symbol, fmt.Errorf("decoding depth payload: %w", err))
	}

	bids, err := domain.ParsePriceLevels(payload.Bids)
	if err != nil {
		return nil, fetchErr(symbol, err)
	}
	asks, err := domain.ParsePriceLevels(payload.Asks)
	if err != nil {
		return nil, fetchErr(symbol, err)
	}

	return &domain.OrderBookSnapshot{
		Exchange:     Exchange,
		Symbol:       symbol,
		LastUpdateID: payload.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Timestamp:    time.Now(),
	}, nil
}

// SnapshotWeight follows the published weight table of GET /api/v3/depth.
func (api *SyncAPI) SnapshotWeight() int {
	switch {
	case api.depthLimit <= 100:
		return 5
	case api.depthLimit <= 500:
		return 25
	case api.depthLimit <= 1000:
		return 50
	default:
		return 250
	}
}

func fetchErr(symbol *domain.MarketSymbol, cause error) *domain.SnapshotFetchError {
	return &domain.SnapshotFetchError{
		Exchange: Exchange,
		Symbol:   symbol.String(),
		Cause:    cause,
	}
}
