// Package planner computes the minimal set of cancel/place actions needed
// to move a venue's resting orders to the desired quotes, and submits them
// in bounded atomic batches.
package planner

import (
	"context"
	"fmt"

	"github.com/maziin00/quotekeeper/venue"
)

// MaxAtomicActions bounds how many actions a single atomic submission may
// contain; a larger diff is split into sequential chunks.
const MaxAtomicActions = 4

// Diff computes the minimal action set: orders to cancel are resting
// orders with no matching desired quote, and orders to place are desired
// quotes with no matching resting order. A resting order that already
// matches a desired quote is kept untouched and removed from both sides.
func Diff(resting []venue.CachedOrder, desired []venue.Quote) []venue.Action {
	keptQuote := make([]bool, len(desired))
	keptOrder := make([]bool, len(resting))

	for i, o := range resting {
		for j, q := range desired {
			if keptQuote[j] {
				continue
			}
			if o.Matches(q) {
				keptOrder[i] = true
				keptQuote[j] = true
				break
			}
		}
	}

	var actions []venue.Action
	for i, o := range resting {
		if !keptOrder[i] {
			actions = append(actions, venue.Action{Kind: venue.ActionCancel, OrderID: o.OrderID})
		}
	}
	for j, q := range desired {
		if !keptQuote[j] {
			actions = append(actions, venue.Action{
				Kind:  venue.ActionPlace,
				Side:  q.Side,
				Price: q.Price,
				Size:  q.Size,
				Quote: q,
			})
		}
	}
	return actions
}

// Chunk splits actions into batches of at most MaxAtomicActions, ordering
// cancels into the earliest chunks ahead of places so that capital is
// freed before it is committed.
func Chunk(actions []venue.Action) [][]venue.Action {
	var cancels, places []venue.Action
	for _, a := range actions {
		if a.Kind == venue.ActionCancel {
			cancels = append(cancels, a)
		} else {
			places = append(places, a)
		}
	}
	ordered := append(cancels, places...)

	if len(ordered) == 0 {
		return nil
	}
	var chunks [][]venue.Action
	for len(ordered) > 0 {
		n := MaxAtomicActions
		if n > len(ordered) {
			n = len(ordered)
		}
		chunks = append(chunks, ordered[:n])
		ordered = ordered[n:]
	}
	return chunks
}

// Submit sends each chunk of the diff to client in order, sequentially
// (never concurrently, so a later chunk never races a still-pending
// earlier one), and aggregates the results. It stops at the first chunk
// submission error.
func Submit(ctx context.Context, client venue.LocalVenueClient, chunks [][]venue.Action) ([]venue.ActionResult, error) {
	var all []venue.ActionResult
	for i, chunk := range chunks {
		results, err := client.SubmitAtomic(ctx, chunk)
		if err != nil {
			return all, fmt.Errorf("planner: chunk %d/%d failed: %w", i+1, len(chunks), err)
		}
		all = append(all, results...)
	}
	return all, nil
}

// PlaceOrderIDs extracts the order IDs assigned to successful place
// actions, in submission order.
func PlaceOrderIDs(results []venue.ActionResult) []string {
	var ids []string
	for _, r := range results {
		if r.Kind == venue.ActionPlace && r.Success && r.OrderID != "" {
			ids = append(ids, r.OrderID)
		}
	}
	return ids
}
