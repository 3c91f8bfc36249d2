package position

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maziin00/quotekeeper/venue"
)

func fixedPrice(p string) func() decimal.Decimal {
	v := decimal.RequireFromString(p)
	return func() decimal.Decimal { return v }
}

func TestApplyFillUpdatesNetExposure(t *testing.T) {
	tr := New("BTC-PERP", nil, decimal.NewFromInt(10000), fixedPrice("100"))
	tr.ApplyFill(venue.FillEvent{Side: venue.SideBid, Quantity: decimal.NewFromInt(2)})
	tr.ApplyFill(venue.FillEvent{Side: venue.SideAsk, Quantity: decimal.NewFromInt(1)})

	st := tr.State()
	assert.True(t, st.SizeBase.Equal(decimal.NewFromInt(1)))
	assert.True(t, st.IsLong)
}

func TestCloseModeTriggersAboveThreshold(t *testing.T) {
	tr := New("BTC-PERP", nil, decimal.NewFromInt(500), fixedPrice("100"))
	tr.ApplyFill(venue.FillEvent{Side: venue.SideBid, Quantity: decimal.NewFromInt(10)})

	st := tr.State()
	require.True(t, st.SizeUSD.Equal(decimal.NewFromInt(1000)))
	assert.True(t, st.IsCloseMode)

	allowed := AllowedSides(st)
	assert.True(t, allowed[venue.SideAsk])
	assert.False(t, allowed[venue.SideBid])
}

func TestReconcileCorrectsDriftBeyondThreshold(t *testing.T) {
	fetch := func(ctx context.Context, marketID string) (venue.PositionSnapshot, error) {
		return venue.PositionSnapshot{MarketID: marketID, Size: decimal.NewFromFloat(5.0), IsLong: true}, nil
	}
	tr := New("BTC-PERP", fetch, decimal.NewFromInt(100000), fixedPrice("100"))
	tr.ApplyFill(venue.FillEvent{Side: venue.SideBid, Quantity: decimal.NewFromFloat(4.0)})

	tr.reconcile(context.Background())

	st := tr.State()
	assert.True(t, st.SizeBase.Equal(decimal.NewFromFloat(5.0)))
}

func TestReconcileLeavesSmallDriftAlone(t *testing.T) {
	fetch := func(ctx context.Context, marketID string) (venue.PositionSnapshot, error) {
		return venue.PositionSnapshot{MarketID: marketID, Size: decimal.NewFromFloat(4.00005), IsLong: true}, nil
	}
	tr := New("BTC-PERP", fetch, decimal.NewFromInt(100000), fixedPrice("100"))
	tr.ApplyFill(venue.FillEvent{Side: venue.SideBid, Quantity: decimal.NewFromFloat(4.0)})

	tr.reconcile(context.Background())

	st := tr.State()
	assert.True(t, st.SizeBase.Equal(decimal.NewFromFloat(4.0)))
}

func TestStartStopSyncRunsWithoutPanic(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, marketID string) (venue.PositionSnapshot, error) {
		calls++
		return venue.PositionSnapshot{Size: decimal.Zero, IsLong: true}, nil
	}
	tr := New("BTC-PERP", fetch, decimal.NewFromInt(100000), fixedPrice("100"))
	tr.StartSync(context.Background(), 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	tr.StopSync()
	assert.Greater(t, calls, 0)
}
