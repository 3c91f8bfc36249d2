// Package orchestrator wires the fair price estimator, order book,
// account stream, position tracker, quoter, re-quote guard, and atomic
// order planner into the agent's single control loop: a re-quote
// whenever the fair price moves enough, debounced, never running two
// update cycles concurrently.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maziin00/quotekeeper/account"
	"github.com/maziin00/quotekeeper/fairprice"
	"github.com/maziin00/quotekeeper/orderbook"
	"github.com/maziin00/quotekeeper/planner"
	"github.com/maziin00/quotekeeper/position"
	"github.com/maziin00/quotekeeper/quote"
	"github.com/maziin00/quotekeeper/reference"
	"github.com/maziin00/quotekeeper/requote"
	"github.com/maziin00/quotekeeper/venue"
)

// State mirrors the teacher engine's Idle/Running/Paused/Stopped machine.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FeedFailoverCheckInterval is how often the orchestrator checks whether
// the primary reference feed has gone stale and a failover is needed.
const FeedFailoverCheckInterval = 5 * time.Second

// ReferenceFeedStaleAfter is the staleness threshold that triggers
// failover to the next configured reference feed.
const ReferenceFeedStaleAfter = 20 * time.Second

// ThrottleWindow is the leading+trailing debounce window applied to
// fair-price-driven re-quote triggers.
const ThrottleWindow = 500 * time.Millisecond

// Config bundles the orchestrator's static per-market parameters.
type Config struct {
	MarketID          string
	QuoteParams       quote.Params
	RequoteThresholds requote.Thresholds
	WarmupMinSamples  int

	// OrderSyncInterval, StatusInterval, and PositionSyncInterval are the
	// periodic order-resync, status-log, and position-reconcile cadences.
	// Zero falls back to the spec's default cadence for each.
	OrderSyncInterval    time.Duration
	StatusInterval       time.Duration
	PositionSyncInterval time.Duration
}

// DefaultOrderSyncInterval, DefaultStatusInterval, and
// DefaultPositionSyncInterval are the fallback cadences applied when a
// Config leaves the corresponding field unset.
const (
	DefaultOrderSyncInterval    = 3 * time.Second
	DefaultStatusInterval       = time.Second
	DefaultPositionSyncInterval = 5 * time.Second
)

func withDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Components is the set of collaborators the orchestrator drives.
type Components struct {
	Book      *orderbook.Book
	Estimator *fairprice.Estimator
	Feeds     []venue.ReferenceFeed // tried in order on failover
	Account   *account.Stream
	Position  *position.Tracker
	Venue     venue.LocalVenueClient
	OnLog     func(event string, fields map[string]any)
	OnAlert   func(level, message string)
}

// Orchestrator runs the agent's single control loop for one market.
type Orchestrator struct {
	cfg  Config
	comp Components

	throttle  *Throttle
	isUpdating atomic.Bool

	mu           sync.RWMutex
	state        State
	resting      []venue.CachedOrder
	activeFeed   int

	cancel context.CancelFunc
}

// New builds an Orchestrator for cfg/comp. comp.Feeds[0] is the primary
// reference feed; later entries are failover candidates.
func New(cfg Config, comp Components) *Orchestrator {
	o := &Orchestrator{cfg: cfg, comp: comp, state: StateIdle}
	o.throttle = NewThrottle(ThrottleWindow, o.executeUpdate)
	return o
}

// Start performs the seven-step startup sequence: connect the local
// orderbook stream, connect the account stream, connect the primary
// reference feed, wire price-change triggers, wait for warmup, begin
// position reconciliation, then enter the running state.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if err := o.comp.Book.Connect(runCtx); err != nil {
		return fmt.Errorf("orchestrator: orderbook connect failed: %w", err)
	}
	if err := o.comp.Account.Connect(runCtx); err != nil {
		return fmt.Errorf("orchestrator: account connect failed: %w", err)
	}
	if len(o.comp.Feeds) == 0 {
		return fmt.Errorf("orchestrator: no reference feed configured")
	}
	if err := o.comp.Feeds[0].Connect(runCtx); err != nil {
		return fmt.Errorf("orchestrator: reference feed connect failed: %w", err)
	}

	o.comp.Book.OnBBO(func(venue.MidPrice) { o.throttle.Trigger() })
	o.comp.Feeds[0].OnPrice(func(ref venue.MidPrice) {
		if local, ok := o.comp.Book.BBO(); ok {
			if d := local.TsMillis - ref.TsMillis; d > -1000 && d < 1000 {
				o.comp.Estimator.AddSample(local.Mid, ref.Mid, ref.TsMillis/1000)
			}
		}
		o.throttle.Trigger()
	})
	o.comp.Account.OnFill(func(fill venue.FillEvent) {
		o.comp.Position.ApplyFill(fill)
		if o.comp.Position.State().IsCloseMode {
			go o.cancelAll(runCtx)
		}
	})

	if _, disabled := o.comp.Feeds[0].(reference.None); !disabled {
		if err := o.awaitWarmup(runCtx); err != nil {
			return err
		}
	}

	o.comp.Position.StartSync(runCtx, withDefault(o.cfg.PositionSyncInterval, DefaultPositionSyncInterval))
	go o.watchFeedFailover(runCtx)
	go o.watchOrderResync(runCtx)
	go o.watchStatus(runCtx)

	o.setState(StateRunning)
	return nil
}

func (o *Orchestrator) awaitWarmup(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.comp.Estimator.SampleCount() >= o.cfg.WarmupMinSamples {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop cancels all resting orders, stops background loops, and closes the
// connected streams, mirroring the container's flatten-before-close
// shutdown order: open exposure's orders come down before the transports
// that placed them are torn down.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.throttle.Stop()
	o.cancelAll(ctx)
	o.comp.Position.StopSync()
	if o.cancel != nil {
		o.cancel()
	}
	_ = o.comp.Account.Close()
	_ = o.comp.Book.Close()
	for _, f := range o.comp.Feeds {
		_ = f.Close()
	}
	o.setState(StateStopped)
	return nil
}

// Pause halts re-quoting without tearing down connections.
func (o *Orchestrator) Pause() { o.setState(StatePaused) }

// Resume restores re-quoting after a Pause.
func (o *Orchestrator) Resume() { o.setState(StateRunning) }

// GetState returns the orchestrator's current lifecycle state.
func (o *Orchestrator) GetState() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// executeUpdate runs one re-quote cycle: compute fair price, build the
// quoting context, diff against resting orders, submit the atomic batch.
// isUpdating guards against re-entrancy — a trailing throttle firing while
// a prior cycle is still awaiting the venue's response is simply skipped,
// since the next trigger will run once the lock clears.
func (o *Orchestrator) executeUpdate() {
	if !o.isUpdating.CompareAndSwap(false, true) {
		return
	}
	defer o.isUpdating.Store(false)

	if o.GetState() != StateRunning {
		return
	}

	bbo, ok := o.comp.Book.BBO()
	if !ok {
		return
	}
	fairPrice := o.comp.Estimator.FairPrice(bbo.Mid)
	posState := o.comp.Position.State()

	ctx := venue.QuotingContext{
		FairPrice:    fairPrice,
		Position:     posState,
		AllowedSides: position.AllowedSides(posState),
		BestBid:      bbo.BestBid,
		BestAsk:      bbo.BestAsk,
		BBOKnown:     true,
	}

	desired := quote.Generate(ctx, o.cfg.QuoteParams)

	o.mu.Lock()
	resting := o.resting
	o.mu.Unlock()

	kept := keepUnderGuard(resting, desired, o.cfg.RequoteThresholds)
	actions := planner.Diff(kept.resting, kept.desired)
	if len(actions) == 0 {
		return
	}
	chunks := planner.Chunk(actions)

	submitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := planner.Submit(submitCtx, o.comp.Venue, chunks)
	if err != nil {
		if o.comp.OnAlert != nil {
			o.comp.OnAlert("error", fmt.Sprintf("atomic submission failed: %v", err))
		}
		return
	}
	o.applyResults(kept.resting, actions, results)
}

type guardedSets struct {
	resting []venue.CachedOrder
	desired []venue.Quote
}

// keepUnderGuard removes from both sides any (resting, desired) pair that
// the re-quote guard says should be left standing, so the planner only
// ever sees orders that genuinely need to change.
func keepUnderGuard(resting []venue.CachedOrder, desired []venue.Quote, th requote.Thresholds) guardedSets {
	keptDesired := make([]bool, len(desired))
	keptResting := make([]bool, len(resting))
	for i, r := range resting {
		age := time.Since(r.PlacedAt)
		for j, d := range desired {
			if keptDesired[j] {
				continue
			}
			if requote.ShouldKeep(r, d, age, th) {
				keptResting[i] = true
				keptDesired[j] = true
				break
			}
		}
	}
	var outResting []venue.CachedOrder
	for i, r := range resting {
		if !keptResting[i] {
			outResting = append(outResting, r)
		}
	}
	var outDesired []venue.Quote
	for j, d := range desired {
		if !keptDesired[j] {
			outDesired = append(outDesired, d)
		}
	}
	return guardedSets{resting: outResting, desired: outDesired}
}

func (o *Orchestrator) applyResults(prevResting []venue.CachedOrder, actions []venue.Action, results []venue.ActionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	byOrderID := make(map[string]venue.CachedOrder, len(o.resting))
	for _, r := range o.resting {
		byOrderID[r.OrderID] = r
	}
	for _, r := range prevResting {
		delete(byOrderID, r.OrderID)
	}

	for i, a := range actions {
		if i >= len(results) {
			break
		}
		res := results[i]
		switch a.Kind {
		case venue.ActionCancel:
			if res.Success {
				delete(byOrderID, a.OrderID)
			}
		case venue.ActionPlace:
			if res.Success && res.OrderID != "" {
				byOrderID[res.OrderID] = venue.CachedOrder{
					OrderID:  res.OrderID,
					Side:     a.Quote.Side,
					Price:    a.Quote.Price,
					Size:     a.Quote.Size,
					PlacedAt: time.Now(),
				}
			}
		}
	}
	out := make([]venue.CachedOrder, 0, len(byOrderID))
	for _, o := range byOrderID {
		out = append(out, o)
	}
	o.resting = out
}

func (o *Orchestrator) cancelAll(ctx context.Context) {
	o.mu.Lock()
	resting := o.resting
	o.resting = nil
	o.mu.Unlock()
	if len(resting) == 0 {
		return
	}
	var actions []venue.Action
	for _, r := range resting {
		actions = append(actions, venue.Action{Kind: venue.ActionCancel, OrderID: r.OrderID})
	}
	chunks := planner.Chunk(actions)
	_, _ = planner.Submit(ctx, o.comp.Venue, chunks)
}

// watchOrderResync periodically re-fetches the authoritative open-order
// snapshot and reseeds the account stream's order mirror, the safety net
// against a missed or misparsed user-data-stream event. The underlying
// fetch is deduplicated against the position tracker's own reconcile fetch
// via the shared refresh both were built against.
func (o *Orchestrator) watchOrderResync(ctx context.Context) {
	ticker := time.NewTicker(withDefault(o.cfg.OrderSyncInterval, DefaultOrderSyncInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.comp.Account.Resync(ctx); err != nil && o.comp.OnLog != nil {
				o.comp.OnLog("order_resync_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// watchStatus emits a periodic status log line so the agent's liveness and
// current quoting state are observable without reading per-update logs.
func (o *Orchestrator) watchStatus(ctx context.Context) {
	ticker := time.NewTicker(withDefault(o.cfg.StatusInterval, DefaultStatusInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.logStatus()
		}
	}
}

func (o *Orchestrator) logStatus() {
	if o.comp.OnLog == nil {
		return
	}
	posState := o.comp.Position.State()
	fields := map[string]any{
		"market_id":     o.cfg.MarketID,
		"state":         o.GetState().String(),
		"size_base":     posState.SizeBase.String(),
		"is_close_mode": posState.IsCloseMode,
	}
	if bbo, ok := o.comp.Book.BBO(); ok {
		fields["fair_price"] = o.comp.Estimator.FairPrice(bbo.Mid).String()
	}
	o.comp.OnLog("status", fields)
}

func (o *Orchestrator) watchFeedFailover(ctx context.Context) {
	ticker := time.NewTicker(FeedFailoverCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.checkFailover(ctx)
		}
	}
}

func (o *Orchestrator) checkFailover(ctx context.Context) {
	o.mu.Lock()
	idx := o.activeFeed
	o.mu.Unlock()

	current := o.comp.Feeds[idx]
	if latest, ok := current.Latest(); ok && time.Since(time.UnixMilli(latest.TsMillis)) < ReferenceFeedStaleAfter {
		return
	}
	next := idx + 1
	if next >= len(o.comp.Feeds) {
		if o.comp.OnAlert != nil {
			o.comp.OnAlert("critical", "all reference feeds exhausted")
		}
		return
	}
	_ = current.Close()
	if err := o.comp.Feeds[next].Connect(ctx); err != nil {
		if o.comp.OnAlert != nil {
			o.comp.OnAlert("error", fmt.Sprintf("failover feed connect failed: %v", err))
		}
		return
	}
	o.comp.Feeds[next].OnPrice(func(venue.MidPrice) { o.throttle.Trigger() })
	o.mu.Lock()
	o.activeFeed = next
	o.mu.Unlock()
	if o.comp.OnAlert != nil {
		o.comp.OnAlert("warning", "failed over to backup reference feed")
	}
}
