package orderbook

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maziin00/quotekeeper/venue"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func lvl(price, size string) venue.PriceLevel {
	return venue.PriceLevel{Price: dec(price), Size: dec(size)}
}

func fetcherAt(updateID int64, bids, asks []venue.PriceLevel) SnapshotFetcher {
	return func(ctx context.Context, marketID string) (int64, []venue.PriceLevel, []venue.PriceLevel, error) {
		return updateID, bids, asks, nil
	}
}

func TestConnectAppliesBufferedDeltasPastSnapshot(t *testing.T) {
	book := New("BTC-PERP", fetcherAt(100, []venue.PriceLevel{lvl("100.0", "1")}, []venue.PriceLevel{lvl("100.5", "1")}))

	// Deltas arriving before Connect finishes are buffered. 98 is at/below
	// the snapshot and must be dropped; 101 and 103 must be replayed.
	require.NoError(t, book.ApplyDelta(context.Background(), Delta{FirstUpdateID: 98, LastUpdateID: 98, Bids: []venue.PriceLevel{lvl("99.0", "1")}}))
	require.NoError(t, book.ApplyDelta(context.Background(), Delta{FirstUpdateID: 101, LastUpdateID: 101, Bids: []venue.PriceLevel{lvl("100.1", "2")}}))
	require.NoError(t, book.ApplyDelta(context.Background(), Delta{FirstUpdateID: 102, LastUpdateID: 103, Asks: []venue.PriceLevel{lvl("100.4", "3")}}))

	require.NoError(t, book.Connect(context.Background()))

	bbo, ok := book.BBO()
	require.True(t, ok)
	assert.True(t, bbo.BestBid.Equal(dec("100.1")))
	assert.True(t, bbo.BestAsk.Equal(dec("100.4")))
}

func TestApplyDeltaDropsStaleUpdate(t *testing.T) {
	book := New("BTC-PERP", fetcherAt(100, []venue.PriceLevel{lvl("100.0", "1")}, []venue.PriceLevel{lvl("100.5", "1")}))
	require.NoError(t, book.Connect(context.Background()))

	require.NoError(t, book.ApplyDelta(context.Background(), Delta{FirstUpdateID: 90, LastUpdateID: 95, Bids: []venue.PriceLevel{lvl("200.0", "1")}}))

	bbo, ok := book.BBO()
	require.True(t, ok)
	assert.True(t, bbo.BestBid.Equal(dec("100.0")))
}

func TestApplyDeltaGapTriggersResync(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, marketID string) (int64, []venue.PriceLevel, []venue.PriceLevel, error) {
		calls++
		return int64(100 + calls), []venue.PriceLevel{lvl("100.0", "1")}, []venue.PriceLevel{lvl("100.5", "1")}, nil
	}
	book := New("BTC-PERP", fetch)
	require.NoError(t, book.Connect(context.Background()))
	require.Equal(t, 1, calls)

	// A gap (firstUpdateID far past lastUpdate+1) forces a fresh Connect.
	require.NoError(t, book.ApplyDelta(context.Background(), Delta{FirstUpdateID: 500, LastUpdateID: 501, Bids: []venue.PriceLevel{lvl("1.0", "1")}}))
	assert.Equal(t, 2, calls)
}

func TestZeroSizeRemovesLevel(t *testing.T) {
	book := New("BTC-PERP", fetcherAt(100,
		[]venue.PriceLevel{lvl("100.0", "1"), lvl("99.5", "1")},
		[]venue.PriceLevel{lvl("100.5", "1")}))
	require.NoError(t, book.Connect(context.Background()))

	require.NoError(t, book.ApplyDelta(context.Background(), Delta{FirstUpdateID: 101, LastUpdateID: 101, Bids: []venue.PriceLevel{lvl("100.0", "0")}}))

	bbo, ok := book.BBO()
	require.True(t, ok)
	assert.True(t, bbo.BestBid.Equal(dec("99.5")))
}
