package planner

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maziin00/quotekeeper/venue"
)

func pd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDiffKeepsMatchingOrders(t *testing.T) {
	resting := []venue.CachedOrder{
		{OrderID: "1", Side: venue.SideBid, Price: pd("100"), Size: pd("1")},
	}
	desired := []venue.Quote{
		{Side: venue.SideBid, Price: pd("100"), Size: pd("1")},
	}
	actions := Diff(resting, desired)
	assert.Empty(t, actions)
}

func TestDiffCancelsUnmatchedAndPlacesNew(t *testing.T) {
	resting := []venue.CachedOrder{
		{OrderID: "1", Side: venue.SideBid, Price: pd("100"), Size: pd("1")},
	}
	desired := []venue.Quote{
		{Side: venue.SideBid, Price: pd("101"), Size: pd("1")},
	}
	actions := Diff(resting, desired)
	require.Len(t, actions, 2)
	assert.Equal(t, venue.ActionCancel, actions[0].Kind)
	assert.Equal(t, "1", actions[0].OrderID)
	assert.Equal(t, venue.ActionPlace, actions[1].Kind)
}

func TestChunkPutsCancelsBeforePlacesAndBoundsSize(t *testing.T) {
	var actions []venue.Action
	for i := 0; i < 3; i++ {
		actions = append(actions, venue.Action{Kind: venue.ActionPlace, Side: venue.SideBid, Price: pd("1"), Size: pd("1")})
	}
	for i := 0; i < 3; i++ {
		actions = append(actions, venue.Action{Kind: venue.ActionCancel, OrderID: "x"})
	}
	chunks := Chunk(actions)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], MaxAtomicActions)
	for _, a := range chunks[0][:3] {
		assert.Equal(t, venue.ActionCancel, a.Kind)
	}
}

type fakeClient struct {
	submissions [][]venue.Action
	nextID      int
}

func (f *fakeClient) SubmitAtomic(ctx context.Context, actions []venue.Action) ([]venue.ActionResult, error) {
	f.submissions = append(f.submissions, actions)
	results := make([]venue.ActionResult, len(actions))
	for i, a := range actions {
		res := venue.ActionResult{Kind: a.Kind, Success: true}
		if a.Kind == venue.ActionPlace {
			f.nextID++
			res.OrderID = "order-" + string(rune('0'+f.nextID))
		}
		results[i] = res
	}
	return results, nil
}

func (f *fakeClient) FetchSnapshot(ctx context.Context, marketID string) (venue.UserSnapshot, error) {
	return venue.UserSnapshot{}, nil
}

func (f *fakeClient) Constraints(marketID string) (venue.SymbolConstraints, error) {
	return venue.SymbolConstraints{}, nil
}

func TestSubmitSendsChunksSequentiallyAndCollectsOrderIDs(t *testing.T) {
	client := &fakeClient{}
	actions := []venue.Action{
		{Kind: venue.ActionPlace, Side: venue.SideBid, Price: pd("1"), Size: pd("1")},
		{Kind: venue.ActionPlace, Side: venue.SideAsk, Price: pd("2"), Size: pd("1")},
	}
	chunks := Chunk(actions)
	results, err := Submit(context.Background(), client, chunks)
	require.NoError(t, err)
	ids := PlaceOrderIDs(results)
	assert.Len(t, ids, 2)
	assert.Len(t, client.submissions, len(chunks))
}
