package binance

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorlov/go-bookbridge/domain"
)

func TestParseUpdate(t *testing.T) {
	symbol, err := domain.NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)

	api := &StreamAPI{log: zerolog.Nop()}
	frame := json.RawMessage(`{
		"e": "depthUpdate",
		"E": 1672515782136,
		"s": "BTCUSDT",
		"U": 157,
		"u": 160,
		"b": [["0.0024", "10"]],
		"a": [["0.0026", "100"], ["0.0027", "0"]]
	}`)

	update, err := api.parseUpdate(symbol, frame)
	require.NoError(t, err)

	assert.Equal(t, Exchange, update.Exchange)
	assert.Equal(t, uint64(157), update.FirstUpdateID)
	assert.Equal(t, uint64(160), update.LastUpdateID)
	require.Len(t, update.Bids, 1)
	require.Len(t, update.Asks, 2)
	// zero-quantity levels stay in the diff, removal happens on apply
	assert.True(t, update.Asks[1].Quantity.IsZero())
	assert.Equal(t, int64(1672515782136), update.Timestamp.UnixMilli())
}

func TestParseUpdateRejectsMalformedLevels(t *testing.T) {
	symbol, err := domain.NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)

	api := &StreamAPI{log: zerolog.Nop()}
	_, err = api.parseUpdate(symbol, json.RawMessage(`{"U":1,"u":2,"b":[["x","1"]],"a":[]}`))
	assert.Error(t, err)

	_, err = api.parseUpdate(symbol, json.RawMessage(`not json`))
	assert.Error(t, err)
}
