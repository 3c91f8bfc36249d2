// Package venue holds the shared domain types and the external-collaborator
// contracts every component is wired against. Nothing in this package talks
// to a network; it only describes shapes.
package venue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which side of the book an order or quote sits on.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// MidPrice is a timestamped price sample from either the reference feed or
// the local orderbook stream.
type MidPrice struct {
	Mid      decimal.Decimal
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	TsMillis int64
}

// Valid reports whether the sample satisfies best_bid <= mid <= best_ask and
// all three are positive.
func (m MidPrice) Valid() bool {
	if !m.Mid.IsPositive() || !m.BestBid.IsPositive() || !m.BestAsk.IsPositive() {
		return false
	}
	return m.BestBid.LessThanOrEqual(m.Mid) && m.Mid.LessThanOrEqual(m.BestAsk)
}

// PriceLevel is one price/size pair in an orderbook delta or snapshot. A Size
// of zero means "remove this level".
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OffsetSample is one admitted (local_mid - ref_mid) observation, keyed by
// wall-clock second so at most one sample exists per second.
type OffsetSample struct {
	Offset decimal.Decimal
	Second int64
}

// Quote is one side of a desired resting order, already tick/lot aligned.
type Quote struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// CachedOrder mirrors a live resting order on the local venue. Identity is
// OrderID.
type CachedOrder struct {
	OrderID  string
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	PlacedAt time.Time
}

// Matches reports whether this cached order has the same (side, price, size)
// tuple as the given quote — the unit the Atomic Order Planner diffs on.
func (c CachedOrder) Matches(q Quote) bool {
	return c.Side == q.Side && c.Price.Equal(q.Price) && c.Size.Equal(q.Size)
}

// TrackedOrder is the Account Stream's richer view of a live order: it
// additionally knows the market and the exact remaining size.
type TrackedOrder struct {
	OrderID   string
	MarketID  string
	Side      Side
	Price     decimal.Decimal
	Remaining decimal.Decimal
}

// FillEvent is delivered to the account stream's fill callback exactly once
// per fill.
type FillEvent struct {
	OrderID   string
	MarketID  string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Remaining decimal.Decimal
	Timestamp time.Time
}

// PositionState is the Position Tracker's point-in-time view of exposure.
type PositionState struct {
	SizeBase    decimal.Decimal
	SizeUSD     decimal.Decimal
	IsLong      bool
	IsCloseMode bool
}

// QuotingContext is everything the Quoter needs to produce aligned quotes.
type QuotingContext struct {
	FairPrice    decimal.Decimal
	Position     PositionState
	AllowedSides map[Side]bool

	// BestBid/BestAsk/BBOKnown carry the local book's current top of book,
	// used by the no-cross clamp. BBOKnown is false when the book has no
	// two-sided BBO yet, in which case the clamp does not apply.
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	BBOKnown bool
}

// AllowsSide reports whether side is permitted under this context.
func (c QuotingContext) AllowsSide(s Side) bool {
	return c.AllowedSides[s]
}

// SymbolConstraints describes a market's tick/lot/notional limits.
type SymbolConstraints struct {
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// ActionKind distinguishes the two kinds of atomic action.
type ActionKind string

const (
	ActionPlace  ActionKind = "place"
	ActionCancel ActionKind = "cancel"
)

// Action is one element of an atomic submission sequence.
type Action struct {
	Kind    ActionKind
	OrderID string // set for ActionCancel
	Side    Side   // set for ActionPlace
	Price   decimal.Decimal
	Size    decimal.Decimal
	Quote   Quote // convenience: the quote this place action targets
}

// ActionResult is one element of the venue's response to an atomic
// submission, in the same order as the submitted actions.
type ActionResult struct {
	Kind    ActionKind
	Success bool
	OrderID string // populated on a successful place
	Err     error
}

// UserSnapshot is the authoritative REST view of a user's account used to
// seed/reseed the Account Stream and Position Tracker.
type UserSnapshot struct {
	OpenOrders []TrackedOrder
	Positions  []PositionSnapshot
}

// PositionSnapshot is one market's authoritative position.
type PositionSnapshot struct {
	MarketID string
	Size     decimal.Decimal
	IsLong   bool
}
