// Package risk implements pre-trade risk checks and the bookkeeping they
// read from: order-size, order-value, price-band, position, and
// daily-volume limits. The matching engine runs these checks before a
// request reaches its instrument's order book (see internal/matching's use
// of Gate), so a rejected request never touches book state.
package risk

import (
	"fmt"
	"sync"

	"github.com/clobcore/xchange/internal/orders"
)

// Gate is the narrow interface the matching engine depends on. Checker
// implements it; a caller that wants no risk checking passes a nil Gate.
type Gate interface {
	Allow(req orders.ClientRequest) (ok bool, reason string)
}

// Config configures a Checker.
type Config struct {
	MaxOrderQty      uint32           // maximum quantity per order
	MaxOrderValue    int64            // maximum notional (price * qty) per order
	MaxPositionQty   int64            // maximum absolute position per (client, instrument)
	MaxDailyVolume   int64            // maximum notional traded per client per day
	PriceBandPercent float64          // max deviation from reference price, e.g. 0.10 = 10%
	InstrumentLimits map[uint32]int64 // per-instrument position limit, overrides MaxPositionQty
}

// DefaultConfig returns a reasonable default configuration.
func DefaultConfig() Config {
	return Config{
		MaxOrderQty:      100_000,
		MaxOrderValue:    10_000_000_00,
		MaxPositionQty:   1_000_000,
		MaxDailyVolume:   1_000_000_00_00,
		PriceBandPercent: 0.10,
	}
}

type positionKey struct {
	clientID uint32
	tickerID uint32
}

// Checker is the stateful pre-trade risk gate. Position, daily volume,
// and reference-price bookkeeping are updated as fills and trades are
// observed, so Allow's limits reflect live exposure rather than a
// snapshot taken at startup.
type Checker struct {
	config Config

	mu              sync.RWMutex
	positions       map[positionKey]int64
	dailyVolume     map[uint32]int64 // client id -> notional traded today
	referencePrices map[uint32]int64 // ticker id -> last traded price
}

// NewChecker creates a Checker with the given configuration.
func NewChecker(config Config) *Checker {
	return &Checker{
		config:          config,
		positions:       make(map[positionKey]int64),
		dailyVolume:     make(map[uint32]int64),
		referencePrices: make(map[uint32]int64),
	}
}

// Allow runs every check against req, returning on the first failure.
// Cancels are never risk-checked: removing exposure can't increase it.
func (c *Checker) Allow(req orders.ClientRequest) (bool, string) {
	if req.Kind != orders.RequestNew {
		return true, ""
	}

	if req.Qty > c.config.MaxOrderQty {
		return false, fmt.Sprintf("order qty %d exceeds max %d", req.Qty, c.config.MaxOrderQty)
	}

	orderValue := req.Price * int64(req.Qty)
	if orderValue > c.config.MaxOrderValue {
		return false, fmt.Sprintf("order value %d exceeds max %d", orderValue, c.config.MaxOrderValue)
	}

	if reason, ok := c.checkPriceBand(req); !ok {
		return false, reason
	}
	if reason, ok := c.checkPositionLimit(req); !ok {
		return false, reason
	}
	if reason, ok := c.checkDailyVolume(req.ClientID, orderValue); !ok {
		return false, reason
	}

	return true, ""
}

func (c *Checker) checkPriceBand(req orders.ClientRequest) (string, bool) {
	c.mu.RLock()
	ref, exists := c.referencePrices[req.TickerID]
	c.mu.RUnlock()

	if !exists || ref == 0 {
		return "", true
	}

	band := int64(float64(ref) * c.config.PriceBandPercent)
	low, high := ref-band, ref+band
	if req.Price < low || req.Price > high {
		return fmt.Sprintf("price %d outside band [%d, %d] around ref %d", req.Price, low, high, ref), false
	}
	return "", true
}

func (c *Checker) checkPositionLimit(req orders.ClientRequest) (string, bool) {
	c.mu.RLock()
	current := c.positions[positionKey{req.ClientID, req.TickerID}]
	c.mu.RUnlock()

	projected := current + int64(req.Qty)
	if req.Side == orders.SideSell {
		projected = current - int64(req.Qty)
	}
	if projected < 0 {
		projected = -projected
	}

	limit := c.config.MaxPositionQty
	if symLimit, ok := c.config.InstrumentLimits[req.TickerID]; ok {
		limit = symLimit
	}
	if projected > limit {
		return fmt.Sprintf("projected position %d exceeds max %d", projected, limit), false
	}
	return "", true
}

func (c *Checker) checkDailyVolume(clientID uint32, orderValue int64) (string, bool) {
	c.mu.RLock()
	current := c.dailyVolume[clientID]
	c.mu.RUnlock()

	if current+orderValue > c.config.MaxDailyVolume {
		return fmt.Sprintf("daily volume %d + order %d exceeds max %d", current, orderValue, c.config.MaxDailyVolume), false
	}
	return "", true
}

// UpdatePosition records a fill's effect on a client's position in an
// instrument.
func (c *Checker) UpdatePosition(clientID, tickerID uint32, side orders.Side, qty uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side == orders.SideBuy {
		c.positions[positionKey{clientID, tickerID}] += int64(qty)
	} else {
		c.positions[positionKey{clientID, tickerID}] -= int64(qty)
	}
}

// UpdateDailyVolume records a fill's notional against a client's daily
// volume counter.
func (c *Checker) UpdateDailyVolume(clientID uint32, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyVolume[clientID] += value
}

// SetReferencePrice records the last traded price for an instrument, used
// by the price-band check.
func (c *Checker) SetReferencePrice(tickerID uint32, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.referencePrices[tickerID] = price
}

// Position returns the current position for a client in an instrument.
func (c *Checker) Position(clientID, tickerID uint32) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positions[positionKey{clientID, tickerID}]
}

// DailyVolume returns the current daily traded notional for a client.
func (c *Checker) DailyVolume(clientID uint32) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dailyVolume[clientID]
}

// ResetDailyVolume clears every client's daily volume counter. Called at
// the start of a trading day.
func (c *Checker) ResetDailyVolume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyVolume = make(map[uint32]int64)
}
