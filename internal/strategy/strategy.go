// Package strategy defines the narrow callback interface the trade engine
// drives and ships a reference no-op implementation. Strategy logic
// itself — market-maker pricing, liquidity-taking — is an explicit
// external collaborator out of scope for this repository; this
// package is its stated interface, kept minimal on purpose.
package strategy

import (
	"github.com/rs/zerolog"

	"github.com/clobcore/xchange/internal/clientbook"
	"github.com/clobcore/xchange/internal/orders"
)

// Strategy consumes the trading client's view of the market and its own
// order flow. Implementations must not block: they run on the trade
// engine's single goroutine, in line with every other busy-wait loop in
// this system.
type Strategy interface {
	// OnOrderBookUpdate fires after the client-side book has applied a
	// market update for instrument at price on side.
	OnOrderBookUpdate(instrument uint32, price int64, side orders.Side, book *clientbook.Book)
	// OnTradeUpdate fires for every Trade market update, regardless of
	// instrument.
	OnTradeUpdate(update orders.MarketUpdate)
	// OnOrderResponse fires for every response to an order this client
	// submitted.
	OnOrderResponse(response orders.ClientResponse)
}

// NoOpStrategy logs what it observes and never submits an order. It lets
// the client binary run end to end (consume market data, maintain a book)
// without any trading logic wired in.
type NoOpStrategy struct {
	log zerolog.Logger
}

// NewNoOpStrategy returns a Strategy that only logs.
func NewNoOpStrategy(log zerolog.Logger) *NoOpStrategy {
	return &NoOpStrategy{log: log.With().Str("component", "strategy").Logger()}
}

func (s *NoOpStrategy) OnOrderBookUpdate(instrument uint32, price int64, side orders.Side, book *clientbook.Book) {
	bidPx, bidQty, askPx, askQty, ok := book.BBO(instrument)
	if !ok {
		return
	}
	s.log.Debug().
		Uint32("instrument", instrument).
		Int64("price", price).
		Str("side", side.String()).
		Int64("bbo_bid", bidPx).Uint32("bbo_bid_qty", bidQty).
		Int64("bbo_ask", askPx).Uint32("bbo_ask_qty", askQty).
		Msg("book update")
}

func (s *NoOpStrategy) OnTradeUpdate(update orders.MarketUpdate) {
	s.log.Debug().
		Uint32("instrument", update.TickerID).
		Int64("price", update.Price).
		Uint32("qty", update.Qty).
		Msg("trade")
}

func (s *NoOpStrategy) OnOrderResponse(response orders.ClientResponse) {
	s.log.Debug().
		Str("kind", response.Kind.String()).
		Uint64("client_order_id", response.ClientOrderID).
		Uint64("market_order_id", response.MarketOrderID).
		Uint32("exec_qty", response.ExecQty).
		Uint32("leaves_qty", response.LeavesQty).
		Msg("order response")
}
