package orderbook

import (
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/pool"
)

// BestBid returns the highest bid price and its aggregate resting
// quantity, or ok=false if the bid side is empty.
func (b *Book) BestBid() (price int64, qty uint32, ok bool) {
	return b.best(orders.SideBuy)
}

// BestAsk returns the lowest ask price and its aggregate resting
// quantity, or ok=false if the ask side is empty.
func (b *Book) BestAsk() (price int64, qty uint32, ok bool) {
	return b.best(orders.SideSell)
}

func (b *Book) best(side orders.Side) (int64, uint32, bool) {
	h := b.sideHead(side)
	if h == pool.InvalidHandle {
		return 0, 0, false
	}
	lvl := b.levelPool.Get(h)
	return lvl.price, lvl.totalQty, true
}

// LevelCount returns the number of distinct price levels on side.
func (b *Book) LevelCount(side orders.Side) int {
	return len(b.priceIndexFor(side))
}

// OrderCount returns the number of resting orders in the book.
func (b *Book) OrderCount() int {
	return b.orderPool.InUse()
}

// HasOrder reports whether (clientID, clientOrderID) currently resolves to
// a resting order.
func (b *Book) HasOrder(clientID uint32, clientOrderID uint64) bool {
	_, ok := b.clientIndex[clientOrderKey{clientID, clientOrderID}]
	return ok
}
