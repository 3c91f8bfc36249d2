// Package reference implements the polymorphic reference-price feed: a
// heartbeat-monitored price source that can be backed by a real venue
// adapter or, for a symbol with no configured reference venue, by a
// degenerate feed that never reports a price.
package reference

import (
	"context"
	"sync"
	"time"

	"github.com/maziin00/quotekeeper/venue"
)

// HeartbeatInterval is how often the feed's background loop pings the
// underlying transport.
const HeartbeatInterval = 30 * time.Second

// PongTimeout bounds each heartbeat Ping call; a Ping that returns an error
// makes the background loop reconnect. No pong reply is awaited.
const PongTimeout = 10 * time.Second

// StaleAfter is the staleness threshold past which the feed's background
// loop forces a reconnect even if the transport looks alive.
const StaleAfter = 60 * time.Second

// ReconnectBackoff is the fixed delay between reconnect attempts.
const ReconnectBackoff = 3 * time.Second

// Transport is the minimal capability a concrete venue adapter (such as the
// Coinbase ticker transport in package gateway) provides to the Feed wrapper.
type Transport interface {
	Dial(ctx context.Context) error
	Disconnect() error
	Ping(ctx context.Context) error
	Recv() (venue.MidPrice, error)
}

// Feed wraps a Transport with the reconnect/staleness/heartbeat state
// machine common to every reference price source, satisfying
// venue.ReferenceFeed.
type Feed struct {
	name      string
	transport Transport

	mu       sync.RWMutex
	latest   venue.MidPrice
	have     bool
	lastSeen time.Time
	handlers []func(venue.MidPrice)

	cancel context.CancelFunc
	done   chan struct{}
}

// New wraps transport into a Feed identified by name (used only for
// logging/metrics labels by callers).
func New(name string, transport Transport) *Feed {
	return &Feed{name: name, transport: transport}
}

// Name returns the feed's label.
func (f *Feed) Name() string { return f.name }

// OnPrice registers a callback invoked on every admitted price update.
func (f *Feed) OnPrice(fn func(venue.MidPrice)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fn)
}

// Connect dials the transport and starts the background read/heartbeat
// loop. It returns once the first dial succeeds; reconnects after that
// happen transparently in the background.
func (f *Feed) Connect(ctx context.Context) error {
	if err := f.transport.Dial(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(runCtx)
	return nil
}

// Close stops the background loop and disconnects the transport.
func (f *Feed) Close() error {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
	return f.transport.Disconnect()
}

// Latest returns the most recently admitted price sample.
func (f *Feed) Latest() (venue.MidPrice, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest, f.have
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	msgs := make(chan venue.MidPrice)
	errs := make(chan error, 1)
	go f.readLoop(ctx, msgs, errs)

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()
	staleCheck := time.NewTicker(5 * time.Second)
	defer staleCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case mid := <-msgs:
			f.admit(mid)
		case <-errs:
			f.reconnect(ctx)
			go f.readLoop(ctx, msgs, errs)
		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, PongTimeout)
			err := f.transport.Ping(pingCtx)
			cancel()
			if err != nil {
				f.reconnect(ctx)
				go f.readLoop(ctx, msgs, errs)
			}
		case <-staleCheck.C:
			if f.Stale(StaleAfter) {
				f.reconnect(ctx)
				go f.readLoop(ctx, msgs, errs)
			}
		}
	}
}

func (f *Feed) readLoop(ctx context.Context, msgs chan<- venue.MidPrice, errs chan<- error) {
	for {
		mid, err := f.transport.Recv()
		if err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case msgs <- mid:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Feed) admit(mid venue.MidPrice) {
	if !mid.Valid() {
		return
	}
	f.mu.Lock()
	f.latest = mid
	f.have = true
	f.lastSeen = time.Now()
	handlers := append([]func(venue.MidPrice){}, f.handlers...)
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(mid)
	}
}

func (f *Feed) reconnect(ctx context.Context) {
	_ = f.transport.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := f.transport.Dial(ctx); err == nil {
			return
		}
		select {
		case <-time.After(ReconnectBackoff):
		case <-ctx.Done():
			return
		}
	}
}

// Stale reports whether maxAge has elapsed since the last admitted price.
func (f *Feed) Stale(maxAge time.Duration) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.lastSeen.IsZero() {
		return true
	}
	return time.Since(f.lastSeen) > maxAge
}

// None is the degenerate reference feed for a symbol with no configured
// reference venue: it never reports a price, so the estimator always falls
// back to the bare local mid.
type None struct{}

func (None) Connect(context.Context) error        { return nil }
func (None) Close() error                         { return nil }
func (None) Latest() (venue.MidPrice, bool)       { return venue.MidPrice{}, false }
func (None) OnPrice(fn func(venue.MidPrice))       {}

var _ venue.ReferenceFeed = (*Feed)(nil)
var _ venue.ReferenceFeed = None{}
