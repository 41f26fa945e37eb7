package orderbook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/xchange/internal/orderbook"
	"github.com/clobcore/xchange/internal/orders"
)

// recorder captures everything a Book emits, in emission order, for
// assertions on response/update sequencing.
type recorder struct {
	responses []orders.ClientResponse
	updates   []orders.MarketUpdate
}

func (r *recorder) Respond(resp orders.ClientResponse) { r.responses = append(r.responses, resp) }
func (r *recorder) Update(upd orders.MarketUpdate)     { r.updates = append(r.updates, upd) }

func newTestBook(t *testing.T) (*orderbook.Book, *recorder) {
	t.Helper()
	rec := &recorder{}
	b := orderbook.NewBook(1, 64, 64, rec)
	return b, rec
}

func TestRestingOrderOnEmptyBookHasNoMatch(t *testing.T) {
	b, rec := newTestBook(t)

	b.Add(orders.ClientRequest{Kind: orders.RequestNew, ClientID: 1, TickerID: 1, ClientOrderID: 100, Side: orders.SideBuy, Price: 1000, Qty: 10})

	price, qty, ok := b.BestBid()
	require.True(t, ok)
	assert.EqualValues(t, 1000, price)
	assert.EqualValues(t, 10, qty)

	require.Len(t, rec.responses, 1)
	assert.Equal(t, orders.ResponseAccepted, rec.responses[0].Kind)
	require.Len(t, rec.updates, 1)
	assert.Equal(t, orders.UpdateAdd, rec.updates[0].Kind)
}

func TestFullCrossRemovesRestingOrder(t *testing.T) {
	b, rec := newTestBook(t)

	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 1, Side: orders.SideSell, Price: 1000, Qty: 10})
	rec.responses, rec.updates = nil, nil

	b.Add(orders.ClientRequest{ClientID: 2, TickerID: 1, ClientOrderID: 1, Side: orders.SideBuy, Price: 1000, Qty: 10})

	_, _, ok := b.BestAsk()
	assert.False(t, ok, "passive order should be fully consumed")
	assert.Equal(t, 0, b.OrderCount())

	var kinds []orders.ResponseKind
	for _, r := range rec.responses {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []orders.ResponseKind{orders.ResponseAccepted, orders.ResponseFilled, orders.ResponseFilled}, kinds)

	var updateKinds []orders.UpdateKind
	for _, u := range rec.updates {
		updateKinds = append(updateKinds, u.Kind)
	}
	assert.Equal(t, []orders.UpdateKind{orders.UpdateTrade, orders.UpdateCancel}, updateKinds)
	assert.Equal(t, int64(1000), rec.updates[0].Price, "trade price is the passive price")
}

func TestPartialCrossLeavesResidualResting(t *testing.T) {
	b, _ := newTestBook(t)

	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 1, Side: orders.SideSell, Price: 1000, Qty: 10})
	b.Add(orders.ClientRequest{ClientID: 2, TickerID: 1, ClientOrderID: 1, Side: orders.SideBuy, Price: 1000, Qty: 4})

	price, qty, ok := b.BestAsk()
	require.True(t, ok)
	assert.EqualValues(t, 1000, price)
	assert.EqualValues(t, 6, qty)
}

func TestPriceTimePriorityFillsOldestFirst(t *testing.T) {
	b, rec := newTestBook(t)

	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 1, Side: orders.SideSell, Price: 1000, Qty: 5})
	b.Add(orders.ClientRequest{ClientID: 2, TickerID: 1, ClientOrderID: 1, Side: orders.SideSell, Price: 1000, Qty: 5})
	rec.responses = nil

	b.Add(orders.ClientRequest{ClientID: 3, TickerID: 1, ClientOrderID: 1, Side: orders.SideBuy, Price: 1000, Qty: 5})

	require.Len(t, rec.responses, 3) // accepted + 2 filled (aggressive, passive1)
	assert.EqualValues(t, 1, rec.responses[2].ClientID, "the first resting order (client 1) fills first")
}

func TestNonCrossingPriceRests(t *testing.T) {
	b, _ := newTestBook(t)

	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 1, Side: orders.SideSell, Price: 1000, Qty: 10})
	b.Add(orders.ClientRequest{ClientID: 2, TickerID: 1, ClientOrderID: 1, Side: orders.SideBuy, Price: 999, Qty: 10})

	_, _, askOK := b.BestAsk()
	_, _, bidOK := b.BestBid()
	assert.True(t, askOK)
	assert.True(t, bidOK)
}

func TestCancelUnknownOrderIsRejected(t *testing.T) {
	b, rec := newTestBook(t)

	b.Cancel(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 999, Side: orders.SideBuy})

	require.Len(t, rec.responses, 1)
	assert.Equal(t, orders.ResponseCancelRejected, rec.responses[0].Kind)
	assert.Empty(t, rec.updates)
}

func TestCancelKnownOrderRemovesLevel(t *testing.T) {
	b, rec := newTestBook(t)

	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 1, Side: orders.SideBuy, Price: 1000, Qty: 10})
	rec.responses, rec.updates = nil, nil

	b.Cancel(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 1, Side: orders.SideBuy})

	_, _, ok := b.BestBid()
	assert.False(t, ok)
	assert.False(t, b.HasOrder(1, 1))
	require.Len(t, rec.responses, 1)
	assert.Equal(t, orders.ResponseCanceled, rec.responses[0].Kind)
}

func TestSortedLevelsAcrossMultiplePrices(t *testing.T) {
	b, _ := newTestBook(t)

	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 1, Side: orders.SideBuy, Price: 990, Qty: 1})
	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 2, Side: orders.SideBuy, Price: 1010, Qty: 1})
	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 3, Side: orders.SideBuy, Price: 1000, Qty: 1})

	price, _, ok := b.BestBid()
	require.True(t, ok)
	assert.EqualValues(t, 1010, price, "best bid is the highest price")
	assert.Equal(t, 3, b.LevelCount(orders.SideBuy))

	b.Add(orders.ClientRequest{ClientID: 1, TickerID: 1, ClientOrderID: 4, Side: orders.SideSell, Price: 990, Qty: 2})
	price, _, ok = b.BestBid()
	require.True(t, ok)
	assert.EqualValues(t, 990, price, "the two better bids fully crossed, leaving the worst")
}
