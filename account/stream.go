// Package account mirrors the authoritative state of a user's open orders
// and delivers fill events exactly once, resyncing from a REST snapshot on
// every reconnect.
package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maziin00/quotekeeper/venue"
)

// Transport is the minimal capability the underlying venue user-data
// connection provides.
type Transport interface {
	Dial(ctx context.Context) error
	Disconnect() error
	Recv() (Update, error)
}

// Update is one raw event off the user-data stream: either an order-state
// change or a fill. EventSeq is the venue's monotone per-order sequence
// number (Binance calls this update_time), used to dedup replays.
type Update struct {
	Order    venue.TrackedOrder
	Fill     *venue.FillEvent
	EventSeq int64
}

// SnapshotFetcher fetches the authoritative open-order/position state used
// to seed or reseed the stream after a reconnect.
type SnapshotFetcher func(ctx context.Context) (venue.UserSnapshot, error)

// Stream tracks live orders and dispatches fills, implementing
// venue.AccountStream.
type Stream struct {
	transport Transport
	fetch     SnapshotFetcher

	mu          sync.RWMutex
	tracked     map[string]trackedEntry
	fillHandler []func(venue.FillEvent)
	orderHandler []func(venue.TrackedOrder)

	cancel context.CancelFunc
	done   chan struct{}
}

type trackedEntry struct {
	order venue.TrackedOrder
	seq   int64
}

// New builds a Stream backed by transport, seeded via fetch on each
// (re)connect.
func New(transport Transport, fetch SnapshotFetcher) *Stream {
	return &Stream{
		transport: transport,
		fetch:     fetch,
		tracked:   make(map[string]trackedEntry),
	}
}

// OnFill registers a callback invoked exactly once per admitted fill.
func (s *Stream) OnFill(fn func(venue.FillEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillHandler = append(s.fillHandler, fn)
}

// OnOrderUpdate registers a callback invoked on every admitted order-state
// change.
func (s *Stream) OnOrderUpdate(fn func(venue.TrackedOrder)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderHandler = append(s.orderHandler, fn)
}

// TrackedOrders returns a snapshot of the currently tracked open orders.
func (s *Stream) TrackedOrders() []venue.TrackedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]venue.TrackedOrder, 0, len(s.tracked))
	for _, e := range s.tracked {
		out = append(out, e.order)
	}
	return out
}

// Connect dials the transport, resyncs from a REST snapshot, and starts the
// background read loop. Every reconnect (including the first) replaces the
// local order mirror wholesale with the fetched snapshot, per the
// reconnect-then-resync contract.
func (s *Stream) Connect(ctx context.Context) error {
	if err := s.transport.Dial(ctx); err != nil {
		return fmt.Errorf("account: dial failed: %w", err)
	}
	if err := s.resync(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
	return nil
}

// Resync re-fetches the authoritative snapshot and replaces the local order
// mirror wholesale, the same resync performed on every (re)connect. Callers
// drive this on a periodic timer as the safety net against a missed or
// misparsed user-data-stream event.
func (s *Stream) Resync(ctx context.Context) error {
	return s.resync(ctx)
}

func (s *Stream) resync(ctx context.Context) error {
	snap, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("account: snapshot fetch failed: %w", err)
	}
	s.mu.Lock()
	s.tracked = make(map[string]trackedEntry, len(snap.OpenOrders))
	for _, o := range snap.OpenOrders {
		s.tracked[o.OrderID] = trackedEntry{order: o}
	}
	s.mu.Unlock()
	return nil
}

// Close stops the background loop and disconnects the transport.
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return s.transport.Disconnect()
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	type received struct {
		update Update
		err    error
	}
	for {
		got := make(chan received, 1)
		go func() {
			u, err := s.transport.Recv()
			got <- received{u, err}
		}()
		var r received
		select {
		case <-ctx.Done():
			return
		case r = <-got:
		}
		update, err := r.update, r.err
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.handleDisconnect(ctx)
			continue
		}
		s.apply(update)
	}
}

func (s *Stream) handleDisconnect(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.transport.Dial(ctx); err == nil {
			if err := s.resync(ctx); err == nil {
				return
			}
		}
		select {
		case <-time.After(3 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// apply admits an update, deduping by EventSeq the same way the venue's
// own update_time field dedups replayed order events.
func (s *Stream) apply(u Update) {
	s.mu.Lock()
	existing, ok := s.tracked[u.Order.OrderID]
	if ok && u.EventSeq > 0 && existing.seq >= u.EventSeq {
		s.mu.Unlock()
		return
	}
	if u.Order.Remaining.IsZero() {
		delete(s.tracked, u.Order.OrderID)
	} else {
		s.tracked[u.Order.OrderID] = trackedEntry{order: u.Order, seq: u.EventSeq}
	}
	orderHandlers := append([]func(venue.TrackedOrder){}, s.orderHandler...)
	fillHandlers := append([]func(venue.FillEvent){}, s.fillHandler...)
	s.mu.Unlock()

	for _, fn := range orderHandlers {
		fn(u.Order)
	}
	if u.Fill != nil {
		for _, fn := range fillHandlers {
			fn(*u.Fill)
		}
	}
}

var _ venue.AccountStream = (*Stream)(nil)
