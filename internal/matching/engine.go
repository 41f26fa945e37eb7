// Package matching implements the order matching engine: the sole
// consumer of the request ring queue and sole producer of the response
// and market-update ring queues, dispatching each request to its
// instrument's order book by ticker id.
//
// Architecture: Single-Threaded Core
//
// Why single-threaded?
// 1. Determinism: the same input sequence always produces the same output
// 2. No locks: eliminates contention in the hot path
// 3. Simplicity: no races to debug on the matching path itself
//
// The engine runs on exactly one goroutine. Run must only ever be called
// from that one goroutine; external synchronization is the ring queues'
// job.
package matching

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/clobcore/xchange/internal/affinity"
	"github.com/clobcore/xchange/internal/orderbook"
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/ringqueue"
	"github.com/clobcore/xchange/internal/risk"
)

// Engine is the single-threaded order matching engine.
type Engine struct {
	books     map[uint32]*orderbook.Book
	responses *ringqueue.Queue[orders.ClientResponse]
	updates   *ringqueue.Queue[orders.MarketUpdate]
	gate      risk.Gate // optional pre-trade check; nil disables it
}

// NewEngine creates an engine that emits onto the given response and
// market-update queues. gate may be nil to skip the pre-trade risk check.
func NewEngine(responses *ringqueue.Queue[orders.ClientResponse], updates *ringqueue.Queue[orders.MarketUpdate], gate risk.Gate) *Engine {
	return &Engine{
		books:     make(map[uint32]*orderbook.Book),
		responses: responses,
		updates:   updates,
		gate:      gate,
	}
}

// AddInstrument registers a tradable instrument, sized for maxOrders
// resting orders and maxLevels distinct price points.
func (e *Engine) AddInstrument(tickerID uint32, maxOrders, maxLevels int) {
	e.books[tickerID] = orderbook.NewBook(tickerID, maxOrders, maxLevels, e)
}

// positionTracker is satisfied by risk.Checker; the engine type-asserts
// its gate against it so fills feed back into position and volume
// bookkeeping without the Gate interface itself growing past Allow.
type positionTracker interface {
	UpdatePosition(clientID, tickerID uint32, side orders.Side, qty uint32)
	UpdateDailyVolume(clientID uint32, value int64)
}

// referenceTracker is satisfied by risk.Checker; trades feed the
// price-band check's reference price.
type referenceTracker interface {
	SetReferencePrice(tickerID uint32, price int64)
}

// Respond implements orderbook.Emitter by publishing onto the response
// queue, then — if the configured gate tracks exposure — folding a fill
// into the client's position and daily volume.
func (e *Engine) Respond(resp orders.ClientResponse) {
	*e.responses.ReserveWrite() = resp
	e.responses.CommitWrite()

	if resp.Kind != orders.ResponseFilled {
		return
	}
	if tracker, ok := e.gate.(positionTracker); ok {
		tracker.UpdatePosition(resp.ClientID, resp.TickerID, resp.Side, resp.ExecQty)
		tracker.UpdateDailyVolume(resp.ClientID, resp.Price*int64(resp.ExecQty))
	}
}

// Update implements orderbook.Emitter by publishing onto the
// market-update queue, then — if the configured gate tracks reference
// prices — recording a trade's price.
func (e *Engine) Update(upd orders.MarketUpdate) {
	*e.updates.ReserveWrite() = upd
	e.updates.CommitWrite()

	if upd.Kind != orders.UpdateTrade {
		return
	}
	if tracker, ok := e.gate.(referenceTracker); ok {
		tracker.SetReferencePrice(upd.TickerID, upd.Price)
	}
}

// Run drains requests until ctx is canceled. It busy-waits between polls:
// the only blocking primitive this thread's hot path would ever need is a
// non-blocking socket call, and there isn't one here, so it spins.
func (e *Engine) Run(ctx context.Context, requests *ringqueue.Queue[orders.ClientRequest]) {
	affinity.Pin("matching-engine")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req := requests.PeekRead()
		if req == nil {
			continue
		}
		e.dispatch(*req)
		requests.ReleaseRead()
	}
}

// dispatch routes a single request to its instrument's book, applying the
// optional pre-trade risk gate first. A risk rejection never reaches the
// book: it surfaces as a CancelRejected-shaped drop with a logged reason.
func (e *Engine) dispatch(req orders.ClientRequest) {
	if e.gate != nil {
		if ok, reason := e.gate.Allow(req); !ok {
			log.Warn().
				Uint32("client_id", req.ClientID).
				Uint64("client_order_id", req.ClientOrderID).
				Str("reason", reason).
				Msg("risk gate rejected request")
			e.Respond(orders.ClientResponse{
				Kind:          orders.ResponseCancelRejected,
				ClientID:      req.ClientID,
				TickerID:      req.TickerID,
				ClientOrderID: req.ClientOrderID,
				MarketOrderID: orders.InvalidOrderID,
				Side:          req.Side,
			})
			return
		}
	}

	book, ok := e.books[req.TickerID]
	if !ok {
		orders.Fatalf("matching", "request for unknown ticker %d", req.TickerID)
		return
	}

	switch req.Kind {
	case orders.RequestNew:
		book.Add(req)
	case orders.RequestCancel:
		book.Cancel(req)
	default:
		orders.Fatalf("matching", "unknown request kind %d", req.Kind)
	}
}
