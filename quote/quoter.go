// Package quote derives the pair of bid/ask quotes to rest from the current
// fair price, applying the venue's tick/lot alignment and the no-cross
// safety clamp.
package quote

import (
	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/venue"
)

// Params are the static quoting parameters for a market.
type Params struct {
	SpreadBps      decimal.Decimal
	OrderSizeUSD   decimal.Decimal
	CloseSpreadBps decimal.Decimal
	Constraints    venue.SymbolConstraints
}

var bps = decimal.NewFromInt(10000)

// Generate produces the desired quotes for ctx under params. Steps:
//  1. pick spread depending on close-mode: spread = fair_price * spread_bps / 10_000
//  2. size: close mode uses align_lot(|size_base|); normal mode uses
//     align_lot(order_size_usd / fair_price). A non-positive size yields no quotes.
//  3. for each allowed side, align fair +/- half-spread to tick (bid floors,
//     ask ceilings), then clamp against the known BBO so neither side crosses
//     it, dropping a side whose resulting price is <= 0.
//  4. at most one quote per side.
func Generate(ctx venue.QuotingContext, params Params) []venue.Quote {
	spreadBps := params.SpreadBps
	if ctx.Position.IsCloseMode {
		spreadBps = params.CloseSpreadBps
	}
	halfSpread := ctx.FairPrice.Mul(spreadBps).Div(bps).Div(decimal.NewFromInt(2))

	var rawSize decimal.Decimal
	if ctx.Position.IsCloseMode {
		rawSize = ctx.Position.SizeBase.Abs()
	} else if ctx.FairPrice.IsPositive() {
		rawSize = params.OrderSizeUSD.Div(ctx.FairPrice)
	}
	size := alignSize(rawSize, params.Constraints)
	if !size.IsPositive() {
		return nil
	}

	tick := params.Constraints.TickSize

	quotes := make([]venue.Quote, 0, 2)
	if ctx.AllowsSide(venue.SideBid) {
		price := alignPrice(ctx.FairPrice.Sub(halfSpread), tick, false)
		if ctx.BBOKnown && price.GreaterThanOrEqual(ctx.BestAsk) {
			price = alignPrice(ctx.BestAsk.Sub(tick), tick, false)
		}
		if price.IsPositive() {
			quotes = append(quotes, venue.Quote{Side: venue.SideBid, Price: price, Size: size})
		}
	}
	if ctx.AllowsSide(venue.SideAsk) {
		price := alignPrice(ctx.FairPrice.Add(halfSpread), tick, true)
		if ctx.BBOKnown && price.LessThanOrEqual(ctx.BestBid) {
			price = alignPrice(ctx.BestBid.Add(tick), tick, true)
		}
		if price.IsPositive() {
			quotes = append(quotes, venue.Quote{Side: venue.SideAsk, Price: price, Size: size})
		}
	}
	return quotes
}

// alignPrice rounds price to the nearest tick, rounding down for a bid
// (never overpay) and up for an ask (never undersell), so alignment never
// pushes a quote across the fair price in the favorable direction that
// would hide a cross.
func alignPrice(price, tick decimal.Decimal, roundUp bool) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	ticks := price.Div(tick)
	if roundUp {
		ticks = ticks.Ceil()
	} else {
		ticks = ticks.Floor()
	}
	return ticks.Mul(tick)
}

// alignSize rounds size down to the nearest step and clamps to
// [MinQty, MaxQty].
func alignSize(size decimal.Decimal, c venue.SymbolConstraints) decimal.Decimal {
	aligned := size
	if !c.StepSize.IsZero() {
		steps := size.Div(c.StepSize).Floor()
		aligned = steps.Mul(c.StepSize)
	}
	if !c.MinQty.IsZero() && aligned.LessThan(c.MinQty) {
		aligned = c.MinQty
	}
	if !c.MaxQty.IsZero() && aligned.GreaterThan(c.MaxQty) {
		aligned = c.MaxQty
	}
	return aligned
}
