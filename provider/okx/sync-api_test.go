package okx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorlov/go-bookbridge/domain"
	"github.com/dorlov/go-bookbridge/provider/okx"
)

func testSymbol(t *testing.T) *domain.MarketSymbol {
	t.Helper()
	symbol, err := domain.NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)
	return symbol
}

func TestOrderBookSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/books", r.URL.Path)
		assert.Equal(t, "BTC-USDT", r.URL.Query().Get("instId"))
		assert.Equal(t, "400", r.URL.Query().Get("sz"))
		w.Write([]byte(`{
			"code": "0",
			"msg": "",
			"data": [{
				"asks": [["41006.8", "0.60038921", "0", "1"]],
				"bids": [["41006.3", "0.30178218", "0", "2"]],
				"ts": "1629966436396",
				"seqId": 123456
			}]
		}`))
	}))
	defer server.Close()

	api := okx.NewSyncAPI(server.URL)
	snap, err := api.OrderBookSnapshot(context.Background(), testSymbol(t), 400)
	require.NoError(t, err)

	assert.Equal(t, "okx", snap.Exchange)
	assert.Equal(t, uint64(123456), snap.LastUpdateID)
	assert.Equal(t, time.UnixMilli(1629966436396), snap.Timestamp)
	require.Len(t, snap.Bids, 1)
	// the 3rd and 4th columns of a level are not price or size
	assert.Equal(t, "41006.3", snap.Bids[0].Price.String())
	assert.Equal(t, "0.30178218", snap.Bids[0].Quantity.String())
}

func TestOrderBookSnapshotFallsBackToTimestampAnchor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"code": "0",
			"msg": "",
			"data": [{"asks": [], "bids": [], "ts": "1629966436396"}]
		}`))
	}))
	defer server.Close()

	api := okx.NewSyncAPI(server.URL)
	snap, err := api.OrderBookSnapshot(context.Background(), testSymbol(t), 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(1629966436396), snap.LastUpdateID)
}

func TestOrderBookSnapshotAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": "51001", "msg": "Instrument ID does not exist", "data": []}`))
	}))
	defer server.Close()

	api := okx.NewSyncAPI(server.URL)
	_, err := api.OrderBookSnapshot(context.Background(), testSymbol(t), 400)

	var fetchErr *domain.SnapshotFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "okx", fetchErr.Exchange)
	assert.Contains(t, fetchErr.Error(), "51001")
}

func TestOrderBookSnapshotEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": "0", "msg": "", "data": []}`))
	}))
	defer server.Close()

	api := okx.NewSyncAPI(server.URL)
	_, err := api.OrderBookSnapshot(context.Background(), testSymbol(t), 400)

	var fetchErr *domain.SnapshotFetchError
	assert.ErrorAs(t, err, &fetchErr)
}
