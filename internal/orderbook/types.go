// Package orderbook implements the per-instrument central limit order
// book: price-time priority matching over intrusive cyclic doubly linked
// order lists, with price levels themselves kept in a sorted cyclic
// doubly linked list per side.
//
// Every resting order and every price level lives in a fixed-capacity
// pool.Pool and is addressed by pool.Handle rather than by pointer, so the
// book never allocates on the hot path and link fields are handle pairs.
// The cyclic invariant (a level's head order's prev points at the tail,
// and the side's head level's prev points at the worst level) must hold
// after every mutation — see orderNode and level below.
package orderbook

import (
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/pool"
)

// orderNode wraps a resting order with the intrusive links needed for its
// position in a price level's cyclic order list.
type orderNode struct {
	order orders.Order
	prev  pool.Handle // previous order at the same price level
	next  pool.Handle // next order at the same price level
	level pool.Handle // owning price level, for O(1) removal
}

// level is one price point on one side of the book: a cyclic doubly
// linked list of resting orders, plus sibling links to the neighboring
// price levels on the same side.
type level struct {
	side       orders.Side
	price      int64
	firstOrder pool.Handle // head of the order list; InvalidHandle if empty
	count      int
	totalQty   uint32
	prev       pool.Handle // toward the better-priced neighbor (cyclic: head.prev is the worst)
	next       pool.Handle // toward the worse-priced neighbor
}

// clientOrderKey is the reverse-index key for O(1) cancel lookup.
type clientOrderKey struct {
	clientID      uint32
	clientOrderID uint64
}

// Emitter is the book's narrow output sink: two callbacks rather than a
// circular reference back to whatever owns the queues the book's outputs
// are ultimately written to. The matching engine supplies the concrete
// implementation (internal/matching), writing into the response and
// market-update ring queues.
type Emitter interface {
	Respond(orders.ClientResponse)
	Update(orders.MarketUpdate)
}
