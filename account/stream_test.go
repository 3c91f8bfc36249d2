package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maziin00/quotekeeper/venue"
)

type fakeTransport struct {
	updates chan Update
	dials   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{updates: make(chan Update, 8)}
}

func (f *fakeTransport) Dial(ctx context.Context) error {
	f.dials++
	return nil
}
func (f *fakeTransport) Disconnect() error { return nil }
func (f *fakeTransport) Recv() (Update, error) {
	u := <-f.updates
	return u, nil
}

func emptySnapshot(ctx context.Context) (venue.UserSnapshot, error) {
	return venue.UserSnapshot{}, nil
}

func TestFillDeliveredExactlyOnce(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, emptySnapshot)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	var mu sync.Mutex
	fills := 0
	s.OnFill(func(f venue.FillEvent) {
		mu.Lock()
		fills++
		mu.Unlock()
	})

	order := venue.TrackedOrder{OrderID: "1", MarketID: "BTC-PERP", Remaining: decimal.NewFromInt(1)}
	fill := venue.FillEvent{OrderID: "1", Quantity: decimal.NewFromInt(1)}
	tr.updates <- Update{Order: order, Fill: &fill, EventSeq: 5}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fills == 1
	}, time.Second, 5*time.Millisecond)

	// A replay of the same (or an older) event sequence must not redeliver.
	tr.updates <- Update{Order: order, Fill: &fill, EventSeq: 5}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, fills)
	mu.Unlock()
}

func TestOrderFullyFilledIsRemovedFromTracking(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, emptySnapshot)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	tr.updates <- Update{
		Order:    venue.TrackedOrder{OrderID: "1", Remaining: decimal.Zero},
		EventSeq: 1,
	}

	require.Eventually(t, func() bool {
		return len(s.TrackedOrders()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestResyncSeedsFromSnapshot(t *testing.T) {
	tr := newFakeTransport()
	fetch := func(ctx context.Context) (venue.UserSnapshot, error) {
		return venue.UserSnapshot{OpenOrders: []venue.TrackedOrder{
			{OrderID: "42", Remaining: decimal.NewFromInt(3)},
		}}, nil
	}
	s := New(tr, fetch)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	orders := s.TrackedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "42", orders[0].OrderID)
}

func TestResyncReplacesTrackedOrdersWholesale(t *testing.T) {
	tr := newFakeTransport()
	var seed int
	fetch := func(ctx context.Context) (venue.UserSnapshot, error) {
		seed++
		if seed == 1 {
			return venue.UserSnapshot{OpenOrders: []venue.TrackedOrder{{OrderID: "1", Remaining: decimal.NewFromInt(1)}}}, nil
		}
		return venue.UserSnapshot{OpenOrders: []venue.TrackedOrder{{OrderID: "2", Remaining: decimal.NewFromInt(1)}}}, nil
	}
	s := New(tr, fetch)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	require.Len(t, s.TrackedOrders(), 1)
	assert.Equal(t, "1", s.TrackedOrders()[0].OrderID)

	require.NoError(t, s.Resync(context.Background()))
	require.Len(t, s.TrackedOrders(), 1)
	assert.Equal(t, "2", s.TrackedOrders()[0].OrderID)
}
