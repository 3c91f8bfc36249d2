package requote

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/maziin00/quotekeeper/venue"
)

func rd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestShouldKeepWithinThresholds(t *testing.T) {
	resting := venue.CachedOrder{Side: venue.SideBid, Price: rd("100.00"), Size: rd("1")}
	desired := venue.Quote{Side: venue.SideBid, Price: rd("100.01"), Size: rd("1")}
	th := Thresholds{MaxAge: time.Minute, MaxDiffBps: rd("5")}
	assert.True(t, ShouldKeep(resting, desired, 10*time.Second, th))
}

func TestShouldNotKeepWhenTooOld(t *testing.T) {
	resting := venue.CachedOrder{Side: venue.SideBid, Price: rd("100.00"), Size: rd("1")}
	desired := venue.Quote{Side: venue.SideBid, Price: rd("100.00"), Size: rd("1")}
	th := Thresholds{MaxAge: time.Minute, MaxDiffBps: rd("5")}
	assert.False(t, ShouldKeep(resting, desired, 2*time.Minute, th))
}

func TestShouldNotKeepWhenPriceDriftsTooFar(t *testing.T) {
	resting := venue.CachedOrder{Side: venue.SideBid, Price: rd("100.00"), Size: rd("1")}
	desired := venue.Quote{Side: venue.SideBid, Price: rd("101.00"), Size: rd("1")}
	th := Thresholds{MaxAge: time.Minute, MaxDiffBps: rd("5")}
	assert.False(t, ShouldKeep(resting, desired, time.Second, th))
}

func TestTighteningThresholdIsMonotone(t *testing.T) {
	resting := venue.CachedOrder{Side: venue.SideBid, Price: rd("100.00"), Size: rd("1")}
	desired := venue.Quote{Side: venue.SideBid, Price: rd("100.02"), Size: rd("1")}
	loose := Thresholds{MaxAge: time.Minute, MaxDiffBps: rd("10")}
	tight := Thresholds{MaxAge: time.Minute, MaxDiffBps: rd("1")}
	kept := ShouldKeep(resting, desired, time.Second, loose)
	tighter := ShouldKeep(resting, desired, time.Second, tight)
	if tighter {
		assert.True(t, kept, "tightening the threshold must never turn a replaced order into a kept one")
	}
}

func TestMismatchedSideNeverKept(t *testing.T) {
	resting := venue.CachedOrder{Side: venue.SideBid, Price: rd("100.00"), Size: rd("1")}
	desired := venue.Quote{Side: venue.SideAsk, Price: rd("100.00"), Size: rd("1")}
	th := Thresholds{MaxAge: time.Minute, MaxDiffBps: rd("100")}
	assert.False(t, ShouldKeep(resting, desired, 0, th))
}
