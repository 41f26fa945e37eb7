package orderbook

import (
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/pool"
)

// Book is the matching engine's per-instrument central limit order book:
// two sides of sorted price levels, each holding a cyclic list of resting
// orders in time priority, plus the indexes needed for O(1) cancel.
type Book struct {
	tickerID uint32

	orderPool *pool.Pool[orderNode]
	levelPool *pool.Pool[level]

	bidsHead pool.Handle // best bid level (highest price), InvalidHandle if none
	asksHead pool.Handle // best ask level (lowest price), InvalidHandle if none

	bidIndex map[int64]pool.Handle // price -> level, bid side
	askIndex map[int64]pool.Handle // price -> level, ask side

	clientIndex map[clientOrderKey]pool.Handle // (client, client-order-id) -> resting order

	nextMarketOrderID uint64

	emit Emitter
}

// NewBook allocates a book for one instrument, sized for maxOrders resting
// orders and maxLevels distinct price points.
func NewBook(tickerID uint32, maxOrders, maxLevels int, emit Emitter) *Book {
	return &Book{
		tickerID:          tickerID,
		orderPool:         pool.New[orderNode]("orderbook.orders", maxOrders),
		levelPool:         pool.New[level]("orderbook.levels", maxLevels),
		bidsHead:          pool.InvalidHandle,
		asksHead:          pool.InvalidHandle,
		bidIndex:          make(map[int64]pool.Handle),
		askIndex:          make(map[int64]pool.Handle),
		clientIndex:       make(map[clientOrderKey]pool.Handle),
		nextMarketOrderID: 1,
		emit:              emit,
	}
}

// TickerID returns the instrument this book matches orders for.
func (b *Book) TickerID() uint32 {
	return b.tickerID
}

// Add assigns a new market-order-id, emits Accepted immediately, attempts
// to cross the incoming order against the opposite side, and — if
// quantity remains — inserts a resting order and emits an Add market
// update.
func (b *Book) Add(req orders.ClientRequest) {
	moid := b.nextMarketOrderID
	b.nextMarketOrderID++

	b.emit.Respond(orders.ClientResponse{
		Kind:          orders.ResponseAccepted,
		ClientID:      req.ClientID,
		TickerID:      b.tickerID,
		ClientOrderID: req.ClientOrderID,
		MarketOrderID: moid,
		Side:          req.Side,
		Price:         req.Price,
		Qty:           req.Qty,
		LeavesQty:     req.Qty,
	})

	residual := b.match(req, moid, req.Qty)
	if residual > 0 {
		b.insertResting(req, moid, residual)
	}
}

// match crosses an incoming order against the opposite side's best levels
// while residual quantity remains and the best opposite level still
// crosses the incoming price. Returns the quantity left over after
// matching, which the caller rests if nonzero.
func (b *Book) match(req orders.ClientRequest, moid uint64, residual uint32) uint32 {
	opposite := req.Side.Opposite()

	for residual > 0 {
		bestLevel := b.sideHead(opposite)
		if bestLevel == pool.InvalidHandle {
			break
		}
		lvl := b.levelPool.Get(bestLevel)

		if req.Side == orders.SideBuy && req.Price < lvl.price {
			break
		}
		if req.Side == orders.SideSell && req.Price > lvl.price {
			break
		}

		headHandle := lvl.firstOrder
		head := b.orderPool.Get(headHandle)

		fill := residual
		if head.order.Qty < fill {
			fill = head.order.Qty
		}
		residual -= fill
		head.order.Qty -= fill
		lvl.totalQty -= fill

		b.emit.Respond(orders.ClientResponse{
			Kind:          orders.ResponseFilled,
			ClientID:      req.ClientID,
			TickerID:      b.tickerID,
			ClientOrderID: req.ClientOrderID,
			MarketOrderID: moid,
			Side:          req.Side,
			Price:         lvl.price,
			Qty:           req.Qty,
			ExecQty:       fill,
			LeavesQty:     residual,
		})
		b.emit.Respond(orders.ClientResponse{
			Kind:          orders.ResponseFilled,
			ClientID:      head.order.ClientID,
			TickerID:      b.tickerID,
			ClientOrderID: head.order.ClientOrderID,
			MarketOrderID: head.order.MarketOrderID,
			Side:          head.order.Side,
			Price:         lvl.price,
			Qty:           head.order.Qty + fill,
			ExecQty:       fill,
			LeavesQty:     head.order.Qty,
		})
		// Trades never surface participant order ids (the passive side's
		// own Modify/Cancel is the public record of the fill).
		b.emit.Update(orders.MarketUpdate{
			Kind:          orders.UpdateTrade,
			MarketOrderID: orders.InvalidOrderID,
			TickerID:      b.tickerID,
			Side:          req.Side,
			Price:         lvl.price,
			Qty:           fill,
		})

		if head.order.Qty == 0 {
			passive := head.order
			delete(b.clientIndex, clientOrderKey{passive.ClientID, passive.ClientOrderID})
			b.emit.Update(orders.MarketUpdate{
				Kind:          orders.UpdateCancel,
				MarketOrderID: passive.MarketOrderID,
				TickerID:      b.tickerID,
				Side:          passive.Side,
				Price:         passive.Price,
				Priority:      passive.Priority,
			})
			b.removeOrderFromLevel(passive.Side, bestLevel, headHandle)
			b.orderPool.Free(headHandle)
		} else {
			b.emit.Update(orders.MarketUpdate{
				Kind:          orders.UpdateModify,
				MarketOrderID: head.order.MarketOrderID,
				TickerID:      b.tickerID,
				Side:          head.order.Side,
				Price:         head.order.Price,
				Qty:           head.order.Qty,
				Priority:      head.order.Priority,
			})
		}
	}

	return residual
}

// insertResting allocates a resting order for the residual quantity left
// after matching, splicing it into its price level (creating the level if
// this is the first order at that price) and registering it in the
// reverse index.
func (b *Book) insertResting(req orders.ClientRequest, moid uint64, residual uint32) {
	priority := b.nextPriority(req.Side, req.Price)

	h := b.orderPool.Allocate()
	node := b.orderPool.Get(h)
	node.order = orders.Order{
		TickerID:      b.tickerID,
		ClientID:      req.ClientID,
		ClientOrderID: req.ClientOrderID,
		MarketOrderID: moid,
		Side:          req.Side,
		Price:         req.Price,
		Qty:           residual,
		Priority:      priority,
	}

	index := b.priceIndexFor(req.Side)
	levelHandle, ok := index[req.Price]
	if !ok {
		levelHandle = b.levelPool.Allocate()
		lvl := b.levelPool.Get(levelHandle)
		lvl.side = req.Side
		lvl.price = req.Price
		lvl.firstOrder = pool.InvalidHandle
		index[req.Price] = levelHandle
		b.insertLevel(req.Side, levelHandle)
	}

	b.appendOrderToLevel(levelHandle, h)
	b.clientIndex[clientOrderKey{req.ClientID, req.ClientOrderID}] = h

	b.emit.Update(orders.MarketUpdate{
		Kind:          orders.UpdateAdd,
		MarketOrderID: moid,
		TickerID:      b.tickerID,
		Side:          req.Side,
		Price:         req.Price,
		Qty:           residual,
		Priority:      priority,
	})
}

// Cancel removes a resting order identified by (client-id,
// client-order-id). An unknown pair emits CancelRejected and leaves the
// book untouched.
func (b *Book) Cancel(req orders.ClientRequest) {
	key := clientOrderKey{req.ClientID, req.ClientOrderID}
	h, ok := b.clientIndex[key]
	if !ok {
		b.emit.Respond(orders.ClientResponse{
			Kind:          orders.ResponseCancelRejected,
			ClientID:      req.ClientID,
			TickerID:      b.tickerID,
			ClientOrderID: req.ClientOrderID,
			MarketOrderID: orders.InvalidOrderID,
			Side:          req.Side,
		})
		return
	}

	node := b.orderPool.Get(h)
	ord := node.order
	levelHandle := node.level

	delete(b.clientIndex, key)
	b.removeOrderFromLevel(ord.Side, levelHandle, h)
	b.orderPool.Free(h)

	b.emit.Respond(orders.ClientResponse{
		Kind:          orders.ResponseCanceled,
		ClientID:      ord.ClientID,
		TickerID:      b.tickerID,
		ClientOrderID: ord.ClientOrderID,
		MarketOrderID: ord.MarketOrderID,
		Side:          ord.Side,
		Price:         ord.Price,
		Qty:           ord.Qty,
	})
	b.emit.Update(orders.MarketUpdate{
		Kind:          orders.UpdateCancel,
		MarketOrderID: ord.MarketOrderID,
		TickerID:      b.tickerID,
		Side:          ord.Side,
		Price:         ord.Price,
		Priority:      ord.Priority,
	})
}
