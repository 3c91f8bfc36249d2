package venue

import "context"

// ReferenceFeed is the capability every reference-price source (the
// Coinbase ticker feed or the disabled "none" feed) implements.
type ReferenceFeed interface {
	Connect(ctx context.Context) error
	Close() error
	Latest() (MidPrice, bool)
	OnPrice(fn func(MidPrice))
}

// LocalVenueClient is the narrow surface the Atomic Order Planner and the
// Orchestrator depend on to talk to the venue being quoted on. Owned by the
// consumer, implemented by a gateway adapter.
type LocalVenueClient interface {
	SubmitAtomic(ctx context.Context, actions []Action) ([]ActionResult, error)
	FetchSnapshot(ctx context.Context, marketID string) (UserSnapshot, error)
	Constraints(marketID string) (SymbolConstraints, error)
}

// AccountStream is the narrow surface the Account Stream exposes to the
// Position Tracker and Orchestrator.
type AccountStream interface {
	Connect(ctx context.Context) error
	Close() error
	OnFill(fn func(FillEvent))
	OnOrderUpdate(fn func(TrackedOrder))
	TrackedOrders() []TrackedOrder
}

// OrderbookStream is the narrow surface the local orderbook sync exposes to
// the Fair Price Estimator and Quoter.
type OrderbookStream interface {
	Connect(ctx context.Context) error
	Close() error
	BBO() (MidPrice, bool)
	OnBBO(fn func(MidPrice))
	Stale(maxAge int64) bool
}
