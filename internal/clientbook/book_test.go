package clientbook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/xchange/internal/clientbook"
	"github.com/clobcore/xchange/internal/orders"
)

func TestBBOTracksBestOnEachSide(t *testing.T) {
	b := clientbook.New()
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2, TickerID: 1, Side: orders.SideBuy, Price: 105, Qty: 5})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 3, TickerID: 1, Side: orders.SideSell, Price: 110, Qty: 8})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 4, TickerID: 1, Side: orders.SideSell, Price: 108, Qty: 3})

	bidPx, bidQty, askPx, askQty, ok := b.BBO(1)
	require.True(t, ok)
	assert.EqualValues(t, 105, bidPx)
	assert.EqualValues(t, 5, bidQty)
	assert.EqualValues(t, 108, askPx)
	assert.EqualValues(t, 3, askQty)
}

func TestBBOFalseUntilTwoSided(t *testing.T) {
	b := clientbook.New()
	_, _, _, _, ok := b.BBO(1)
	assert.False(t, ok)

	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})
	_, _, _, _, ok = b.BBO(1)
	assert.False(t, ok, "one-sided book has no BBO")
}

func TestModifyMovesAggregateBetweenPriceLevels(t *testing.T) {
	b := clientbook.New()
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2, TickerID: 1, Side: orders.SideSell, Price: 110, Qty: 10})

	b.Apply(orders.MarketUpdate{Kind: orders.UpdateModify, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 102, Qty: 4})

	bidPx, bidQty, _, _, ok := b.BBO(1)
	require.True(t, ok)
	assert.EqualValues(t, 102, bidPx)
	assert.EqualValues(t, 4, bidQty)
}

func TestModifyOfUnknownOrderBecomesImplicitAdd(t *testing.T) {
	b := clientbook.New()
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideSell, Price: 110, Qty: 10})

	b.Apply(orders.MarketUpdate{Kind: orders.UpdateModify, MarketOrderID: 99, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 7})

	bidPx, bidQty, _, _, ok := b.BBO(1)
	require.True(t, ok)
	assert.EqualValues(t, 100, bidPx)
	assert.EqualValues(t, 7, bidQty)
	assert.Equal(t, 2, b.OrderCount())
}

func TestCancelRemovesOrderAndCollapsesEmptyLevel(t *testing.T) {
	b := clientbook.New()
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2, TickerID: 1, Side: orders.SideSell, Price: 110, Qty: 10})

	b.Apply(orders.MarketUpdate{Kind: orders.UpdateCancel, MarketOrderID: 1, TickerID: 1})

	_, _, _, _, ok := b.BBO(1)
	assert.False(t, ok)
	assert.Equal(t, 1, b.OrderCount())
}

func TestClearWipesOnlyItsInstrument(t *testing.T) {
	b := clientbook.New()
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 2, Side: orders.SideBuy, Price: 50, Qty: 10})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2, TickerID: 1, Side: orders.SideSell, Price: 110, Qty: 10})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2, TickerID: 2, Side: orders.SideSell, Price: 60, Qty: 10})

	b.Apply(orders.MarketUpdate{Kind: orders.UpdateClear, TickerID: 1})

	_, _, _, _, ok := b.BBO(1)
	assert.False(t, ok)
	_, _, _, _, ok = b.BBO(2)
	assert.True(t, ok, "instrument 2 untouched by a clear scoped to instrument 1")
}

func TestTradeUpdateDoesNotMutateBook(t *testing.T) {
	b := clientbook.New()
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})
	before := b.OrderCount()

	b.Apply(orders.MarketUpdate{Kind: orders.UpdateTrade, TickerID: 1, Price: 100, Qty: 5})

	assert.Equal(t, before, b.OrderCount())
}

// TestReplayedAddDoesNotDoubleCountLevel covers the recovery overlap: the
// stitched incremental at the snapshot anchor can repeat an Add the
// snapshot replay already delivered, and the level aggregate must not
// count the order twice.
func TestReplayedAddDoesNotDoubleCountLevel(t *testing.T) {
	b := clientbook.New()
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2, TickerID: 1, Side: orders.SideSell, Price: 110, Qty: 5})

	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})

	bidPx, bidQty, _, _, ok := b.BBO(1)
	require.True(t, ok)
	assert.EqualValues(t, 100, bidPx)
	assert.EqualValues(t, 10, bidQty, "a replayed Add must not inflate the level aggregate")
	assert.Equal(t, 2, b.OrderCount())
}

// TestReplayedAddAtNewPriceMovesAggregate: a re-Add that carries a
// different price (the order was modified between the snapshot and the
// replay) retires the old level contribution entirely.
func TestReplayedAddAtNewPriceMovesAggregate(t *testing.T) {
	b := clientbook.New()
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 100, Qty: 10})
	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2, TickerID: 1, Side: orders.SideSell, Price: 110, Qty: 5})

	b.Apply(orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1, TickerID: 1, Side: orders.SideBuy, Price: 101, Qty: 4})

	bidPx, bidQty, _, _, ok := b.BBO(1)
	require.True(t, ok)
	assert.EqualValues(t, 101, bidPx)
	assert.EqualValues(t, 4, bidQty)
	assert.Equal(t, 2, b.OrderCount(), "the re-Add replaces order 1 rather than adding another order")
}
