// Package wire implements the packed little-endian binary codecs for the
// order-gateway TCP protocol and the market-data UDP protocol.
// Every record is fixed-size so a reader never needs to buffer a length
// prefix: one request, one response, or one market-data record per
// read/datagram.
package wire

import (
	"encoding/binary"

	"github.com/clobcore/xchange/internal/orders"
)

// RequestSize is the wire size of one client request record:
// u64 seq | u8 kind | u32 client_id | u32 ticker_id | u64 client_order_id
// | i8 side | i64 price | u32 qty.
const RequestSize = 8 + 1 + 4 + 4 + 8 + 1 + 8 + 4

// ResponseSize is the wire size of one client response record:
// u64 seq | u8 kind | u32 client_id | u32 ticker_id | u64 client_order_id
// | u64 market_order_id | i8 side | i64 price | u32 qty | u32 exec_qty
// | u32 leaves_qty.
const ResponseSize = 8 + 1 + 4 + 4 + 8 + 8 + 1 + 8 + 4 + 4 + 4

// MarketUpdateSize is the wire size of one market-data record:
// u64 seq | u8 kind | u64 market_order_id | u32 ticker_id | i8 side
// | i64 price | u32 qty | u64 priority.
const MarketUpdateSize = 8 + 1 + 8 + 4 + 1 + 8 + 4 + 8

// EncodeRequest packs seq and req into a RequestSize-byte buffer.
func EncodeRequest(seq uint64, req orders.ClientRequest) []byte {
	buf := make([]byte, RequestSize)
	b := buf
	binary.LittleEndian.PutUint64(b, seq)
	b = b[8:]
	b[0] = byte(req.Kind)
	b = b[1:]
	binary.LittleEndian.PutUint32(b, req.ClientID)
	b = b[4:]
	binary.LittleEndian.PutUint32(b, req.TickerID)
	b = b[4:]
	binary.LittleEndian.PutUint64(b, req.ClientOrderID)
	b = b[8:]
	b[0] = byte(req.Side)
	b = b[1:]
	binary.LittleEndian.PutUint64(b, uint64(req.Price))
	b = b[8:]
	binary.LittleEndian.PutUint32(b, req.Qty)
	return buf
}

// DecodeRequest unpacks a RequestSize-byte buffer. The caller must ensure
// len(buf) >= RequestSize.
func DecodeRequest(buf []byte) (seq uint64, req orders.ClientRequest) {
	b := buf
	seq = binary.LittleEndian.Uint64(b)
	b = b[8:]
	req.Kind = orders.RequestKind(b[0])
	b = b[1:]
	req.ClientID = binary.LittleEndian.Uint32(b)
	b = b[4:]
	req.TickerID = binary.LittleEndian.Uint32(b)
	b = b[4:]
	req.ClientOrderID = binary.LittleEndian.Uint64(b)
	b = b[8:]
	req.Side = orders.Side(int8(b[0]))
	b = b[1:]
	req.Price = int64(binary.LittleEndian.Uint64(b))
	b = b[8:]
	req.Qty = binary.LittleEndian.Uint32(b)
	return seq, req
}

// EncodeResponse packs seq and resp into a ResponseSize-byte buffer.
func EncodeResponse(seq uint64, resp orders.ClientResponse) []byte {
	buf := make([]byte, ResponseSize)
	b := buf
	binary.LittleEndian.PutUint64(b, seq)
	b = b[8:]
	b[0] = byte(resp.Kind)
	b = b[1:]
	binary.LittleEndian.PutUint32(b, resp.ClientID)
	b = b[4:]
	binary.LittleEndian.PutUint32(b, resp.TickerID)
	b = b[4:]
	binary.LittleEndian.PutUint64(b, resp.ClientOrderID)
	b = b[8:]
	binary.LittleEndian.PutUint64(b, resp.MarketOrderID)
	b = b[8:]
	b[0] = byte(resp.Side)
	b = b[1:]
	binary.LittleEndian.PutUint64(b, uint64(resp.Price))
	b = b[8:]
	binary.LittleEndian.PutUint32(b, resp.Qty)
	b = b[4:]
	binary.LittleEndian.PutUint32(b, resp.ExecQty)
	b = b[4:]
	binary.LittleEndian.PutUint32(b, resp.LeavesQty)
	return buf
}

// DecodeResponse unpacks a ResponseSize-byte buffer. The caller must
// ensure len(buf) >= ResponseSize.
func DecodeResponse(buf []byte) (seq uint64, resp orders.ClientResponse) {
	b := buf
	seq = binary.LittleEndian.Uint64(b)
	b = b[8:]
	resp.Kind = orders.ResponseKind(b[0])
	b = b[1:]
	resp.ClientID = binary.LittleEndian.Uint32(b)
	b = b[4:]
	resp.TickerID = binary.LittleEndian.Uint32(b)
	b = b[4:]
	resp.ClientOrderID = binary.LittleEndian.Uint64(b)
	b = b[8:]
	resp.MarketOrderID = binary.LittleEndian.Uint64(b)
	b = b[8:]
	resp.Side = orders.Side(int8(b[0]))
	b = b[1:]
	resp.Price = int64(binary.LittleEndian.Uint64(b))
	b = b[8:]
	resp.Qty = binary.LittleEndian.Uint32(b)
	b = b[4:]
	resp.ExecQty = binary.LittleEndian.Uint32(b)
	b = b[4:]
	resp.LeavesQty = binary.LittleEndian.Uint32(b)
	return seq, resp
}

// EncodeMarketUpdate packs seq and upd into a MarketUpdateSize-byte
// buffer. For UpdateSnapshotStart/UpdateSnapshotEnd, upd.MarketOrderID
// carries the incremental-stream anchor sequence number.
func EncodeMarketUpdate(seq uint64, upd orders.MarketUpdate) []byte {
	buf := make([]byte, MarketUpdateSize)
	b := buf
	binary.LittleEndian.PutUint64(b, seq)
	b = b[8:]
	b[0] = byte(upd.Kind)
	b = b[1:]
	binary.LittleEndian.PutUint64(b, upd.MarketOrderID)
	b = b[8:]
	binary.LittleEndian.PutUint32(b, upd.TickerID)
	b = b[4:]
	b[0] = byte(upd.Side)
	b = b[1:]
	binary.LittleEndian.PutUint64(b, uint64(upd.Price))
	b = b[8:]
	binary.LittleEndian.PutUint32(b, upd.Qty)
	b = b[4:]
	binary.LittleEndian.PutUint64(b, upd.Priority)
	return buf
}

// DecodeMarketUpdate unpacks a MarketUpdateSize-byte buffer. The caller
// must ensure len(buf) >= MarketUpdateSize.
func DecodeMarketUpdate(buf []byte) (seq uint64, upd orders.MarketUpdate) {
	b := buf
	seq = binary.LittleEndian.Uint64(b)
	b = b[8:]
	upd.Kind = orders.UpdateKind(b[0])
	b = b[1:]
	upd.MarketOrderID = binary.LittleEndian.Uint64(b)
	b = b[8:]
	upd.TickerID = binary.LittleEndian.Uint32(b)
	b = b[4:]
	upd.Side = orders.Side(int8(b[0]))
	b = b[1:]
	upd.Price = int64(binary.LittleEndian.Uint64(b))
	b = b[8:]
	upd.Qty = binary.LittleEndian.Uint32(b)
	b = b[4:]
	upd.Priority = binary.LittleEndian.Uint64(b)
	return seq, upd
}
