package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCombinedDepth(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth","data":{"s":"BTCUSDT","U":10,"u":12,"b":[["100.5","2.0"]],"a":[["100.6","1.5"]]}}`)
	symbol, delta, err := ParseCombinedDepth(raw)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", symbol)
	assert.EqualValues(t, 10, delta.FirstUpdateID)
	assert.EqualValues(t, 12, delta.LastUpdateID)
	require.Len(t, delta.Bids, 1)
	assert.True(t, delta.Bids[0].Price.Equal(decimal.RequireFromString("100.5")))
}

func TestParseCombinedDepthRejectsBadPrice(t *testing.T) {
	raw := []byte(`{"stream":"x","data":{"s":"BTCUSDT","b":[["not-a-number","1"]]}}`)
	_, _, err := ParseCombinedDepth(raw)
	assert.Error(t, err)
}

func TestParseSnapshot(t *testing.T) {
	raw := []byte(`{"lastUpdateId":100,"bids":[["99.0","3"]],"asks":[["99.5","4"]]}`)
	updateID, bids, asks, err := ParseSnapshot(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 100, updateID)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
}
