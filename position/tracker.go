// Package position tracks net exposure optimistically from fills and
// periodically reconciles against the venue's authoritative position,
// correcting for drift beyond a small tolerance.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/venue"
)

// DriftThreshold is the |local - authoritative| base-size difference a
// correction must exceed; differences at or below it are treated as
// rounding noise and left alone.
var DriftThreshold = decimal.NewFromFloat(0.0001)

// PositionFetcher fetches the authoritative position for marketID.
type PositionFetcher func(ctx context.Context, marketID string) (venue.PositionSnapshot, error)

// Tracker holds the current optimistic position for one market and its
// close-mode classification.
type Tracker struct {
	marketID      string
	fetch         PositionFetcher
	closeThresholdUSD decimal.Decimal
	fairPrice     func() decimal.Decimal

	mu       sync.RWMutex
	sizeBase decimal.Decimal
	isLong   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Tracker for marketID. closeThresholdUSD is the
// |position_notional| at or above which the market enters close (reduce-only)
// mode; fairPrice supplies the price used to convert base size to USD
// notional for that check.
func New(marketID string, fetch PositionFetcher, closeThresholdUSD decimal.Decimal, fairPrice func() decimal.Decimal) *Tracker {
	return &Tracker{
		marketID:          marketID,
		fetch:             fetch,
		closeThresholdUSD: closeThresholdUSD,
		fairPrice:         fairPrice,
	}
}

// ApplyFill optimistically adjusts the tracked position by a fill. The
// fill's price is not used for cost-basis accounting — the tracker holds
// exposure, not realized P&L.
func (t *Tracker) ApplyFill(fill venue.FillEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delta := fill.Quantity
	if fill.Side == venue.SideAsk {
		delta = delta.Neg()
	}
	t.sizeBase = t.sizeBase.Add(delta)
	t.isLong = t.sizeBase.IsPositive()
}

// State returns the tracker's current PositionState, including close-mode
// classification.
func (t *Tracker) State() venue.PositionState {
	t.mu.RLock()
	sizeBase := t.sizeBase
	isLong := t.isLong
	t.mu.RUnlock()

	sizeUSD := sizeBase.Abs().Mul(t.fairPrice())
	return venue.PositionState{
		SizeBase:    sizeBase,
		SizeUSD:     sizeUSD,
		IsLong:      isLong,
		IsCloseMode: sizeUSD.GreaterThanOrEqual(t.closeThresholdUSD),
	}
}

// StartSync launches a background loop that reconciles against the
// authoritative position every interval, correcting for drift beyond
// DriftThreshold.
func (t *Tracker) StartSync(ctx context.Context, interval time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				t.reconcile(runCtx)
			}
		}
	}()
}

// StopSync stops the background reconciliation loop.
func (t *Tracker) StopSync() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

func (t *Tracker) reconcile(ctx context.Context) {
	snap, err := t.fetch(ctx, t.marketID)
	if err != nil {
		return
	}
	authoritative := snap.Size
	if !snap.IsLong {
		authoritative = authoritative.Neg()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sizeBase.Sub(authoritative).Abs().GreaterThan(DriftThreshold) {
		t.sizeBase = authoritative
		t.isLong = authoritative.IsPositive()
	}
}

// AllowedSides returns which quote sides are permitted given the current
// close-mode classification: in close mode, only the side that reduces
// exposure is allowed.
func AllowedSides(st venue.PositionState) map[venue.Side]bool {
	if !st.IsCloseMode {
		return map[venue.Side]bool{venue.SideBid: true, venue.SideAsk: true}
	}
	if st.IsLong {
		return map[venue.Side]bool{venue.SideAsk: true}
	}
	return map[venue.Side]bool{venue.SideBid: true}
}
