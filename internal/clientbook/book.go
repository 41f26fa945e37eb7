// Package clientbook maintains the trading client's view of the market,
// rebuilt purely from the market-update stream — no matching happens
// here. It is intentionally a flat per-(instrument, market-order-id)
// table, the same shape as the exchange-side snapshot synthesizer's
// shadow book, plus a price-aggregated index sufficient to compute a BBO
// for a strategy.
package clientbook

import (
	"sync"

	"github.com/clobcore/xchange/internal/orders"
)

type restingOrder struct {
	instrument uint32
	side       orders.Side
	price      int64
	qty        uint32
}

type orderKey struct {
	instrument    uint32
	marketOrderID uint64
}

type priceKey struct {
	instrument uint32
	side       orders.Side
	price      int64
}

// Book is the client-side replica of resting market state across every
// instrument it has received updates for.
type Book struct {
	mu      sync.RWMutex
	orders  map[orderKey]restingOrder
	levels  map[priceKey]uint32 // aggregate resting qty at (instrument, side, price)
}

// New creates an empty client-side book.
func New() *Book {
	return &Book{
		orders: make(map[orderKey]restingOrder),
		levels: make(map[priceKey]uint32),
	}
}

// Apply folds one market update (engine form — the wire sequence number
// has already been stripped and accounted for by the recovery state
// machine) into the book. SnapshotStart/SnapshotEnd carry no book-shape
// information and are ignored here.
func (b *Book) Apply(u orders.MarketUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch u.Kind {
	case orders.UpdateAdd:
		b.add(u)
	case orders.UpdateModify:
		b.modify(u)
	case orders.UpdateCancel:
		b.remove(u.TickerID, u.MarketOrderID)
	case orders.UpdateTrade:
		// No client identity and no order id on a Trade update;
		// the resting side's own Modify/Cancel already reflects the fill.
	case orders.UpdateClear:
		b.clear(u.TickerID)
	case orders.UpdateSnapshotStart, orders.UpdateSnapshotEnd:
	}
}

func (b *Book) add(u orders.MarketUpdate) {
	key := orderKey{u.TickerID, u.MarketOrderID}
	// Recovery replays can deliver the same Add twice: once from the
	// snapshot and once from the stitched incremental at the anchor.
	// Retire the old record's level contribution before re-adding so the
	// aggregate stays correct.
	if old, ok := b.orders[key]; ok {
		pk := priceKey{u.TickerID, old.side, old.price}
		b.levels[pk] -= old.qty
		if b.levels[pk] == 0 {
			delete(b.levels, pk)
		}
	}
	b.orders[key] = restingOrder{instrument: u.TickerID, side: u.Side, price: u.Price, qty: u.Qty}
	b.levels[priceKey{u.TickerID, u.Side, u.Price}] += u.Qty
}

func (b *Book) modify(u orders.MarketUpdate) {
	key := orderKey{u.TickerID, u.MarketOrderID}
	old, ok := b.orders[key]
	if !ok {
		// A Modify for an order this client never saw Add for (e.g. it
		// joined mid-stream and is mid-recovery) — treat as an implicit
		// Add rather than silently dropping the resting quantity.
		b.add(u)
		return
	}
	pk := priceKey{u.TickerID, old.side, old.price}
	b.levels[pk] -= old.qty
	if b.levels[pk] == 0 {
		delete(b.levels, pk)
	}
	old.qty = u.Qty
	old.price = u.Price
	b.orders[key] = old
	b.levels[priceKey{u.TickerID, old.side, old.price}] += old.qty
}

func (b *Book) remove(instrument uint32, marketOrderID uint64) {
	key := orderKey{instrument, marketOrderID}
	old, ok := b.orders[key]
	if !ok {
		return
	}
	delete(b.orders, key)
	pk := priceKey{instrument, old.side, old.price}
	b.levels[pk] -= old.qty
	if b.levels[pk] == 0 {
		delete(b.levels, pk)
	}
}

func (b *Book) clear(instrument uint32) {
	for k := range b.orders {
		if k.instrument == instrument {
			delete(b.orders, k)
		}
	}
	for k := range b.levels {
		if k.instrument == instrument {
			delete(b.levels, k)
		}
	}
}

// BBO returns the best bid and ask (price, aggregate quantity) currently
// known for instrument. ok is false if either side is empty.
func (b *Book) BBO(instrument uint32) (bidPrice int64, bidQty uint32, askPrice int64, askQty uint32, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bestBid, bidFound := int64(0), false
	bestAsk, askFound := int64(0), false
	for k, qty := range b.levels {
		if k.instrument != instrument {
			continue
		}
		if k.side == orders.SideBuy {
			if !bidFound || k.price > bestBid {
				bestBid, bidQty, bidFound = k.price, qty, true
			}
		} else {
			if !askFound || k.price < bestAsk {
				bestAsk, askQty, askFound = k.price, qty, true
			}
		}
	}
	if !bidFound || !askFound {
		return 0, 0, 0, 0, false
	}
	return bestBid, bidQty, bestAsk, askQty, true
}

// OrderCount returns the number of resting orders currently replicated
// across every instrument.
func (b *Book) OrderCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}
