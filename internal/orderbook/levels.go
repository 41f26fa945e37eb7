package orderbook

import (
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/pool"
)

func (b *Book) priceIndexFor(side orders.Side) map[int64]pool.Handle {
	if side == orders.SideBuy {
		return b.bidIndex
	}
	return b.askIndex
}

func (b *Book) sideHead(side orders.Side) pool.Handle {
	if side == orders.SideBuy {
		return b.bidsHead
	}
	return b.asksHead
}

func (b *Book) setSideHead(side orders.Side, h pool.Handle) {
	if side == orders.SideBuy {
		b.bidsHead = h
	} else {
		b.asksHead = h
	}
}

// beats reports whether price is strictly better than other for side: a
// bid beats by being higher, an ask by being lower.
func beats(side orders.Side, price, other int64) bool {
	if side == orders.SideBuy {
		return price > other
	}
	return price < other
}

// insertLevel splices a freshly-allocated, still-self-linked level handle
// into its side's sorted cyclic list, walking from the current best level
// and stopping at the first level the new one strictly beats.
func (b *Book) insertLevel(side orders.Side, h pool.Handle) {
	head := b.sideHead(side)
	newLevel := b.levelPool.Get(h)

	if head == pool.InvalidHandle {
		newLevel.prev = h
		newLevel.next = h
		b.setSideHead(side, h)
		return
	}

	cur := head
	for {
		curLevel := b.levelPool.Get(cur)
		if beats(side, newLevel.price, curLevel.price) {
			b.insertLevelBefore(cur, h)
			if cur == head {
				b.setSideHead(side, h)
			}
			return
		}
		cur = curLevel.next
		if cur == head {
			break
		}
	}
	// newLevel beats nothing: it is the new worst level, insert at the tail
	// (i.e. immediately before head in the cyclic list).
	b.insertLevelBefore(head, h)
}

func (b *Book) insertLevelBefore(before, h pool.Handle) {
	beforeLevel := b.levelPool.Get(before)
	prevHandle := beforeLevel.prev
	prevLevel := b.levelPool.Get(prevHandle)
	newLevel := b.levelPool.Get(h)

	newLevel.prev = prevHandle
	newLevel.next = before
	prevLevel.next = h
	beforeLevel.prev = h
}

// removeLevel unsplices h from its side's cyclic list, drops it from the
// price index, and returns it to the pool.
func (b *Book) removeLevel(side orders.Side, h pool.Handle) {
	lvl := b.levelPool.Get(h)

	if lvl.next == h {
		b.setSideHead(side, pool.InvalidHandle)
	} else {
		prevLevel := b.levelPool.Get(lvl.prev)
		nextLevel := b.levelPool.Get(lvl.next)
		prevLevel.next = lvl.next
		nextLevel.prev = lvl.prev
		if b.sideHead(side) == h {
			b.setSideHead(side, lvl.next)
		}
	}

	delete(b.priceIndexFor(side), lvl.price)
	b.levelPool.Free(h)
}

// nextPriority returns the priority the next order appended at price would
// receive: one past the current tail's priority, or 1 if the level doesn't
// exist yet. The tail is reached via the head order's prev link — the
// order list is cyclic, so head.prev is always the tail.
func (b *Book) nextPriority(side orders.Side, price int64) uint64 {
	h, ok := b.priceIndexFor(side)[price]
	if !ok {
		return 1
	}
	lvl := b.levelPool.Get(h)
	if lvl.firstOrder == pool.InvalidHandle {
		return 1
	}
	head := b.orderPool.Get(lvl.firstOrder)
	tail := b.orderPool.Get(head.prev)
	return tail.order.Priority + 1
}

// appendOrderToLevel splices orderHandle onto the tail of level h's cyclic
// order list.
func (b *Book) appendOrderToLevel(h, orderHandle pool.Handle) {
	lvl := b.levelPool.Get(h)
	node := b.orderPool.Get(orderHandle)
	node.level = h

	if lvl.firstOrder == pool.InvalidHandle {
		node.prev = orderHandle
		node.next = orderHandle
		lvl.firstOrder = orderHandle
	} else {
		head := b.orderPool.Get(lvl.firstOrder)
		tailHandle := head.prev
		tail := b.orderPool.Get(tailHandle)
		node.prev = tailHandle
		node.next = lvl.firstOrder
		tail.next = orderHandle
		head.prev = orderHandle
	}
	lvl.count++
	lvl.totalQty += node.order.Qty
}

// removeOrderFromLevel unsplices orderHandle from level h's cyclic order
// list, and removes the level itself (and its side-list slot, and its
// price-index entry) if that was the last order at the price.
func (b *Book) removeOrderFromLevel(side orders.Side, h, orderHandle pool.Handle) {
	lvl := b.levelPool.Get(h)
	node := b.orderPool.Get(orderHandle)

	if node.next == orderHandle {
		lvl.firstOrder = pool.InvalidHandle
	} else {
		prevNode := b.orderPool.Get(node.prev)
		nextNode := b.orderPool.Get(node.next)
		prevNode.next = node.next
		nextNode.prev = node.prev
		if lvl.firstOrder == orderHandle {
			lvl.firstOrder = node.next
		}
	}
	lvl.count--
	lvl.totalQty -= node.order.Qty

	if lvl.count == 0 {
		b.removeLevel(side, h)
	}
}
