// Package orderbook maintains a local order book synchronized against a
// venue's snapshot+delta depth stream, following the standard
// buffer-then-splice synchronization protocol: deltas are buffered while
// the snapshot is in flight, then replayed against it in sequence order.
package orderbook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/venue"
)

// MaxLevels bounds how many price levels per side are retained after each
// update; levels beyond this depth are trimmed.
const MaxLevels = 100

// Delta is one incremental depth update from the venue's stream.
type Delta struct {
	FirstUpdateID int64
	LastUpdateID  int64
	Bids          []venue.PriceLevel
	Asks          []venue.PriceLevel
}

// SnapshotFetcher fetches an authoritative REST depth snapshot for a
// market, returning its lastUpdateId alongside the levels.
type SnapshotFetcher func(ctx context.Context, marketID string) (updateID int64, bids, asks []venue.PriceLevel, err error)

// Book is a synchronized local order book for a single market.
type Book struct {
	marketID string
	fetch    SnapshotFetcher

	mu          sync.RWMutex
	synced      bool
	lastUpdate  int64
	bids        map[string]decimal.Decimal
	asks        map[string]decimal.Decimal
	buffered    []Delta
	lastTouched time.Time

	onBBO []func(venue.MidPrice)
}

// New builds a Book for marketID, fetching snapshots via fetch.
func New(marketID string, fetch SnapshotFetcher) *Book {
	return &Book{
		marketID: marketID,
		fetch:    fetch,
		bids:     make(map[string]decimal.Decimal),
		asks:     make(map[string]decimal.Decimal),
	}
}

// OnBBO registers a callback invoked with the current best bid/ask after
// every successful apply (snapshot sync or delta) that leaves both sides
// non-empty, whether or not the top of book moved.
func (b *Book) OnBBO(fn func(venue.MidPrice)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBBO = append(b.onBBO, fn)
}

// Connect performs the standard six-step sync: buffer incoming deltas,
// fetch the snapshot, discard deltas at or before the snapshot, apply the
// rest in order, then switch to live delta application.
func (b *Book) Connect(ctx context.Context) error {
	updateID, bids, asks, err := b.fetch(ctx, b.marketID)
	if err != nil {
		return fmt.Errorf("orderbook: snapshot fetch failed for %s: %w", b.marketID, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[string]decimal.Decimal, len(bids))
	b.asks = make(map[string]decimal.Decimal, len(asks))
	for _, lvl := range bids {
		b.bids[lvl.Price.String()] = lvl.Size
	}
	for _, lvl := range asks {
		b.asks[lvl.Price.String()] = lvl.Size
	}
	b.lastUpdate = updateID
	b.trimLocked()

	pending := b.buffered
	b.buffered = nil
	for _, d := range pending {
		if d.LastUpdateID <= b.lastUpdate {
			continue
		}
		b.applyLocked(d)
	}
	b.synced = true
	b.lastTouched = time.Now()
	b.emitBBOLocked()
	return nil
}

// Close tears down the book's synced state so the next Connect starts from
// a fresh snapshot.
func (b *Book) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.synced = false
	b.buffered = nil
	return nil
}

// ApplyDelta feeds one incremental update. Before the snapshot has landed,
// deltas are buffered; once synced, deltas whose range does not extend the
// book's lastUpdate are dropped, and a gap (firstUpdateID skips past
// lastUpdate+1) forces a resync via a fresh Connect.
func (b *Book) ApplyDelta(ctx context.Context, d Delta) error {
	b.mu.Lock()
	if !b.synced {
		b.buffered = append(b.buffered, d)
		b.mu.Unlock()
		return nil
	}
	if d.LastUpdateID <= b.lastUpdate {
		b.mu.Unlock()
		return nil
	}
	gap := d.FirstUpdateID > b.lastUpdate+1
	if gap {
		b.synced = false
		b.mu.Unlock()
		return b.Connect(ctx)
	}
	b.applyLocked(d)
	b.lastTouched = time.Now()
	b.emitBBOLocked()
	b.mu.Unlock()
	return nil
}

func (b *Book) applyLocked(d Delta) {
	for _, lvl := range d.Bids {
		if lvl.Size.IsZero() {
			delete(b.bids, lvl.Price.String())
		} else {
			b.bids[lvl.Price.String()] = lvl.Size
		}
	}
	for _, lvl := range d.Asks {
		if lvl.Size.IsZero() {
			delete(b.asks, lvl.Price.String())
		} else {
			b.asks[lvl.Price.String()] = lvl.Size
		}
	}
	b.lastUpdate = d.LastUpdateID
	b.trimLocked()
}

func (b *Book) trimLocked() {
	trimSide(b.bids, MaxLevels, true)
	trimSide(b.asks, MaxLevels, false)
}

func trimSide(levels map[string]decimal.Decimal, max int, highestFirst bool) {
	if len(levels) <= max {
		return
	}
	prices := make([]decimal.Decimal, 0, len(levels))
	for k := range levels {
		p, _ := decimal.NewFromString(k)
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if highestFirst {
			return prices[i].GreaterThan(prices[j])
		}
		return prices[i].LessThan(prices[j])
	})
	for _, p := range prices[max:] {
		delete(levels, p.String())
	}
}

// BBO returns the current best bid/ask/mid, or false if either side is
// empty.
func (b *Book) BBO() (venue.MidPrice, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bboLocked()
}

func (b *Book) bboLocked() (venue.MidPrice, bool) {
	bid, okBid := bestPrice(b.bids, true)
	ask, okAsk := bestPrice(b.asks, false)
	if !okBid || !okAsk {
		return venue.MidPrice{}, false
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	return venue.MidPrice{
		Mid:      mid,
		BestBid:  bid,
		BestAsk:  ask,
		TsMillis: b.lastTouched.UnixMilli(),
	}, true
}

func bestPrice(levels map[string]decimal.Decimal, highest bool) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for k := range levels {
		p, _ := decimal.NewFromString(k)
		if !found {
			best = p
			found = true
			continue
		}
		if highest && p.GreaterThan(best) {
			best = p
		}
		if !highest && p.LessThan(best) {
			best = p
		}
	}
	return best, found
}

func (b *Book) emitBBOLocked() {
	mid, ok := b.bboLocked()
	if !ok {
		return
	}
	for _, fn := range b.onBBO {
		fn(mid)
	}
}

// Stale reports whether the book has gone longer than maxAgeMillis without
// a successful apply.
func (b *Book) Stale(maxAgeMillis int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastTouched.IsZero() {
		return true
	}
	return time.Since(b.lastTouched).Milliseconds() > maxAgeMillis
}

// Synced reports whether the book has completed its initial snapshot sync.
func (b *Book) Synced() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.synced
}
