package account

import (
	"context"
	"sync"

	"github.com/maziin00/quotekeeper/venue"
)

// SharedRefresh collapses concurrent callers of an expensive authoritative
// snapshot fetch onto a single in-flight request. A caller that arrives
// while a fetch is already running waits for that fetch's result instead of
// issuing its own; the slot clears once it completes so the next caller
// starts a fresh fetch. This is what lets the order-resync timer and the
// position tracker's reconcile loop share one underlying fetchInfo call
// without either one knowing about the other.
type SharedRefresh struct {
	fetch SnapshotFetcher

	mu       sync.Mutex
	inFlight *refreshCall
}

type refreshCall struct {
	done chan struct{}
	snap venue.UserSnapshot
	err  error
}

// NewSharedRefresh wraps fetch with single-in-flight deduplication.
func NewSharedRefresh(fetch SnapshotFetcher) *SharedRefresh {
	return &SharedRefresh{fetch: fetch}
}

// Fetch returns the in-flight fetch's result if one is already running,
// otherwise starts a new one that every concurrent caller observes.
func (r *SharedRefresh) Fetch(ctx context.Context) (venue.UserSnapshot, error) {
	r.mu.Lock()
	if call := r.inFlight; call != nil {
		r.mu.Unlock()
		<-call.done
		return call.snap, call.err
	}
	call := &refreshCall{done: make(chan struct{})}
	r.inFlight = call
	r.mu.Unlock()

	call.snap, call.err = r.fetch(ctx)

	r.mu.Lock()
	r.inFlight = nil
	r.mu.Unlock()
	close(call.done)

	return call.snap, call.err
}
