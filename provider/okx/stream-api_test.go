package okx

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorlov/go-bookbridge/domain"
)

func TestParseFrame(t *testing.T) {
	symbol, err := domain.NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)

	api := &StreamAPI{log: zerolog.Nop()}
	frame := wsFrame{Data: json.RawMessage(`[{
		"bids": [["8476.98", "415", "0", "13"]],
		"asks": [["8476.99", "0", "0", "0"]],
		"ts": "1597026383085",
		"seqId": 123457,
		"prevSeqId": 123456,
		"checksum": -855196043
	}]`)}

	updates := api.parseFrame(symbol, frame)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, Exchange, u.Exchange)
	assert.Equal(t, uint64(123457), u.LastUpdateID)
	assert.Equal(t, uint64(123456), u.PrevUpdateID)
	// negative wire checksums reinterpret as the unsigned CRC32
	assert.Equal(t, uint32(0xCD06BE75), u.Checksum)
	require.Len(t, u.Bids, 1)
	assert.Equal(t, "415", u.Bids[0].Quantity.String())
}

func TestParseFrameSkipsSnapshotPush(t *testing.T) {
	symbol, err := domain.NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)

	api := &StreamAPI{log: zerolog.Nop()}
	frame := wsFrame{Data: json.RawMessage(`[
		{"bids": [], "asks": [], "ts": "1", "seqId": 10, "prevSeqId": -1, "checksum": 0},
		{"bids": [], "asks": [], "ts": "2", "seqId": 11, "prevSeqId": 10, "checksum": 0}
	]`)}

	updates := api.parseFrame(symbol, frame)
	// the post-subscribe snapshot is dropped, the real diff survives
	require.Len(t, updates, 1)
	assert.Equal(t, uint64(11), updates[0].LastUpdateID)
}

func TestParseFrameUnparsableData(t *testing.T) {
	symbol, err := domain.NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)

	api := &StreamAPI{log: zerolog.Nop()}
	assert.Empty(t, api.parseFrame(symbol, wsFrame{Data: json.RawMessage(`{"not":"an array"}`)}))
}
