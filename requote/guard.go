// Package requote decides whether a resting order should be kept or
// replaced by comparing it against the freshly desired quote, so a tiny
// fair-price wobble doesn't cause constant order churn.
package requote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/venue"
)

// Thresholds bound how far a resting order may drift from its desired
// quote before it is replaced.
type Thresholds struct {
	MaxAge    time.Duration
	MaxDiffBps decimal.Decimal
}

var bps = decimal.NewFromInt(10000)

// ShouldKeep reports whether the resting order matches the desired quote
// closely enough, and is young enough, to leave standing rather than
// replace. Keeping is monotone: tightening either threshold can only ever
// turn a kept order into a replaced one, never the reverse.
func ShouldKeep(resting venue.CachedOrder, desired venue.Quote, age time.Duration, th Thresholds) bool {
	if resting.Side != desired.Side {
		return false
	}
	if age > th.MaxAge {
		return false
	}
	if !resting.Size.Equal(desired.Size) {
		return false
	}
	diffBps := diffBps(resting.Price, desired.Price)
	return diffBps.LessThanOrEqual(th.MaxDiffBps)
}

func diffBps(a, b decimal.Decimal) decimal.Decimal {
	if a.IsZero() {
		return decimal.NewFromInt(1 << 30)
	}
	return a.Sub(b).Abs().Div(a).Mul(bps)
}
