// Package fairprice computes the agent's fair price as the local mid price
// adjusted by the median of the (local_mid - reference_mid) offsets held in
// a fixed-capacity ring. Samples leave the median only when newer samples
// overwrite them; they are not aged out by time.
package fairprice

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/venue"
)

// Estimator holds a fixed-capacity ring of admitted offset samples and
// derives the fair price from their median.
type Estimator struct {
	mu         sync.RWMutex
	capacity   int
	minSamples int
	samples    []venue.OffsetSample
	next       int
	count      int
	lastSecond int64
}

// New builds an Estimator. capacity bounds the ring buffer; minSamples is
// the minimum admitted-sample count before FairPrice trusts the offset
// (below that it falls back to an offset of zero).
func New(capacity, minSamples int) *Estimator {
	if capacity <= 0 {
		capacity = 1
	}
	return &Estimator{
		capacity:   capacity,
		minSamples: minSamples,
		samples:    make([]venue.OffsetSample, capacity),
		lastSecond: -1,
	}
}

// AddSample admits (localMid - refMid) at wall-clock second `second`, unless
// a sample for that same second was already admitted.
func (e *Estimator) AddSample(localMid, refMid decimal.Decimal, second int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if second == e.lastSecond {
		return false
	}
	e.lastSecond = second
	e.samples[e.next] = venue.OffsetSample{
		Offset: localMid.Sub(refMid),
		Second: second,
	}
	e.next = (e.next + 1) % e.capacity
	if e.count < e.capacity {
		e.count++
	}
	return true
}

// RawMedianOffset returns the median of the currently admitted samples and
// how many samples backed it, with no minSamples gating applied.
func (e *Estimator) RawMedianOffset() (decimal.Decimal, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.medianOffsetLocked()
}

func (e *Estimator) medianOffsetLocked() (decimal.Decimal, int) {
	if e.count == 0 {
		return decimal.Zero, 0
	}
	offsets := make([]decimal.Decimal, e.count)
	for i := 0; i < e.count; i++ {
		offsets[i] = e.samples[i].Offset
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i].LessThan(offsets[j]) })
	n := len(offsets)
	if n%2 == 1 {
		return offsets[n/2], n
	}
	return offsets[n/2-1].Add(offsets[n/2]).Div(decimal.NewFromInt(2)), n
}

// MedianOffset is RawMedianOffset gated by minSamples: below the threshold
// it reports a zero offset so FairPrice degrades to the bare local mid.
func (e *Estimator) MedianOffset() decimal.Decimal {
	offset, n := e.RawMedianOffset()
	if n < e.minSamples {
		return decimal.Zero
	}
	return offset
}

// FairPrice returns localMid minus the current median offset.
func (e *Estimator) FairPrice(localMid decimal.Decimal) decimal.Decimal {
	return localMid.Sub(e.MedianOffset())
}

// SampleCount reports how many samples are currently admitted.
func (e *Estimator) SampleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.count
}
