// Package orders defines the wire-level and engine-level vocabulary shared
// by the exchange and the trading client: client requests, client
// responses, market updates (engine form and wire form), and the
// sentinels/limits every other package is sized or bounds-checked against.
//
// Design Decisions:
//
// 1. Fixed-Point Arithmetic: prices are int64 "ticks" (the smallest
//    representable increment for an instrument, e.g. cents). Floating
//    point is explicitly out of scope — accumulated rounding error is not
//    acceptable in a matching engine.
//
// 2. Every scalar type reserves its maximum representable value as an
//    "invalid" sentinel for default/unset fields, matching the wire
//    format's packed layout (no room for a separate validity bit).
package orders

import "fmt"

// Side identifies which side of the book an order or update belongs to.
type Side int8

const (
	SideInvalid Side = 0
	SideBuy     Side = 1
	SideSell    Side = -1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "INVALID"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideInvalid
	}
}

// RequestKind identifies the kind of a ClientRequest.
type RequestKind uint8

const (
	RequestInvalid RequestKind = 0
	RequestNew     RequestKind = 1
	RequestCancel  RequestKind = 2
)

func (k RequestKind) String() string {
	switch k {
	case RequestNew:
		return "NEW"
	case RequestCancel:
		return "CANCEL"
	default:
		return "INVALID"
	}
}

// ResponseKind identifies the kind of a ClientResponse.
type ResponseKind uint8

const (
	ResponseInvalid        ResponseKind = 0
	ResponseAccepted       ResponseKind = 1
	ResponseCanceled       ResponseKind = 2
	ResponseFilled         ResponseKind = 3
	ResponseCancelRejected ResponseKind = 4
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseAccepted:
		return "ACCEPTED"
	case ResponseCanceled:
		return "CANCELED"
	case ResponseFilled:
		return "FILLED"
	case ResponseCancelRejected:
		return "CANCEL_REJECTED"
	default:
		return "INVALID"
	}
}

// UpdateKind identifies the kind of a MarketUpdate.
type UpdateKind uint8

const (
	UpdateInvalid       UpdateKind = 0
	UpdateAdd           UpdateKind = 2
	UpdateModify        UpdateKind = 3
	UpdateCancel        UpdateKind = 4
	UpdateTrade         UpdateKind = 5
	UpdateClear         UpdateKind = 1
	UpdateSnapshotStart UpdateKind = 6
	UpdateSnapshotEnd   UpdateKind = 7
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateAdd:
		return "ADD"
	case UpdateModify:
		return "MODIFY"
	case UpdateCancel:
		return "CANCEL"
	case UpdateTrade:
		return "TRADE"
	case UpdateClear:
		return "CLEAR"
	case UpdateSnapshotStart:
		return "SNAPSHOT_START"
	case UpdateSnapshotEnd:
		return "SNAPSHOT_END"
	default:
		return "INVALID"
	}
}

// Sentinels — each scalar type's maximum representable value, reserved to
// mean "unset".
const (
	InvalidTickerID     uint32 = ^uint32(0)
	InvalidClientID     uint32 = ^uint32(0)
	InvalidOrderID      uint64 = ^uint64(0)
	InvalidPrice        int64  = 1<<63 - 1
	InvalidQty          uint32 = ^uint32(0)
	InvalidPriority     uint64 = ^uint64(0)
	InvalidClientOrderID uint64 = ^uint64(0)
)

// Sizing bounds ("ME_MAX_*" in the original source), overridable by
// configuration — see internal/config.
const (
	MaxTickers     = 8
	MaxClients     = 256
	MaxPriceLevels = 65536
	MaxOrderIDs    = 1 << 20
)

// ClientRequest is an immutable request from a client: place a new order
// or cancel an existing one.
type ClientRequest struct {
	Kind          RequestKind
	ClientID      uint32
	TickerID      uint32
	ClientOrderID uint64
	Side          Side
	Price         int64
	Qty           uint32
}

func (r ClientRequest) String() string {
	return fmt.Sprintf("ClientRequest{%s client=%d ticker=%d oid=%d side=%s price=%d qty=%d}",
		r.Kind, r.ClientID, r.TickerID, r.ClientOrderID, r.Side, r.Price, r.Qty)
}

// ClientResponse reports the outcome of a ClientRequest back to its owner.
type ClientResponse struct {
	Kind          ResponseKind
	ClientID      uint32
	TickerID      uint32
	ClientOrderID uint64
	MarketOrderID uint64
	Side          Side
	Price         int64
	Qty           uint32
	ExecQty       uint32
	LeavesQty     uint32
}

func (r ClientResponse) String() string {
	return fmt.Sprintf("ClientResponse{%s client=%d ticker=%d oid=%d moid=%d side=%s price=%d qty=%d exec=%d leaves=%d}",
		r.Kind, r.ClientID, r.TickerID, r.ClientOrderID, r.MarketOrderID, r.Side, r.Price, r.Qty, r.ExecQty, r.LeavesQty)
}

// MarketUpdate is the engine form of a public market-data event: no client
// identity.
type MarketUpdate struct {
	Kind          UpdateKind
	MarketOrderID uint64
	TickerID      uint32
	Side          Side
	Price         int64
	Qty           uint32
	Priority      uint64
}

func (u MarketUpdate) String() string {
	return fmt.Sprintf("MarketUpdate{%s moid=%d ticker=%d side=%s price=%d qty=%d prio=%d}",
		u.Kind, u.MarketOrderID, u.TickerID, u.Side, u.Price, u.Qty, u.Priority)
}

// Order is a resting order inside a per-instrument book: the quantity,
// price, and identity fields needed for matching and for reconstructing
// responses/updates when the order is later filled or canceled. The book's
// object pool owns its storage; orderbook.orderNode adds the intrusive
// link fields around it so this type stays pool-agnostic.
type Order struct {
	TickerID      uint32
	ClientID      uint32
	ClientOrderID uint64
	MarketOrderID uint64
	Side          Side
	Price         int64
	Qty           uint32
	Priority      uint64
}

func (o Order) String() string {
	return fmt.Sprintf("Order{ticker=%d client=%d oid=%d moid=%d side=%s price=%d qty=%d prio=%d}",
		o.TickerID, o.ClientID, o.ClientOrderID, o.MarketOrderID, o.Side, o.Price, o.Qty, o.Priority)
}

// WireClientRequest prepends the per-client monotone sequence number
// required on the wire.
type WireClientRequest struct {
	SeqNum uint64
	ClientRequest
}

// WireClientResponse prepends the per-client outbound sequence number.
type WireClientResponse struct {
	SeqNum uint64
	ClientResponse
}

// WireMarketUpdate prepends the per-stream monotone sequence number
// (incremental or snapshot stream — the two spaces are independent).
type WireMarketUpdate struct {
	SeqNum uint64
	MarketUpdate
}

// Now returns nanoseconds since the Unix epoch, used for receive-time
// ordering in the FIFO sequencer.
func Now() int64 {
	return nowFunc()
}
