// Package marketdata implements the exchange-side incremental publisher
// and snapshot synthesizer, and the trading-client's recovery state
// machine that stitches the two streams back into a consistent book
// after a gap.
//
// Three independent pieces live here:
//   - Publisher: sole consumer of the matching engine's market-update
//     queue; attaches a monotone sequence number and sends one UDP
//     multicast datagram per update on the incremental group, and tees
//     every record into a second queue feeding the synthesizer.
//   - Synthesizer: sole consumer of that feed queue; maintains a flat
//     shadow order book (not a matching book — see internal/orderbook for
//     that) and periodically broadcasts a full snapshot, bracketed by
//     SnapshotStart/SnapshotEnd sentinels, on the snapshot group.
//   - Consumer: the client-side Live/Recovering state machine that
//     detects incremental gaps, subscribes to the snapshot stream, stages
//     both streams in ordered maps, and stitches them back together.
package marketdata

import (
	"context"
	"net"

	"github.com/rs/zerolog"

	"github.com/clobcore/xchange/internal/affinity"
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/ringqueue"
	"github.com/clobcore/xchange/internal/wire"
)

// Publisher reads the market-update queue and republishes each record as
// a sequenced UDP multicast datagram, also forwarding it (still
// sequenced) to the synthesizer's feed queue.
type Publisher struct {
	conn *net.UDPConn
	log  zerolog.Logger

	updates *ringqueue.Queue[orders.MarketUpdate]
	feed    *ringqueue.Queue[orders.WireMarketUpdate]

	seq uint64
}

// NewPublisher dials the incremental multicast group at addr ("host:port")
// and wires updates (produced by the matching engine) as its source.
// Every published record is also written to feed for the synthesizer.
func NewPublisher(addr string, updates *ringqueue.Queue[orders.MarketUpdate], feed *ringqueue.Queue[orders.WireMarketUpdate], log zerolog.Logger) (*Publisher, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		conn:    conn,
		log:     log.With().Str("component", "md-publisher").Logger(),
		updates: updates,
		feed:    feed,
		seq:     1,
	}, nil
}

// Close releases the publisher's socket.
func (p *Publisher) Close() error {
	return p.conn.Close()
}

// Run drains the market-update queue until ctx is canceled, publishing
// each record with the next monotone incremental sequence number —
// strictly 1, 2, 3, … with no duplicates or gaps at the source.
func (p *Publisher) Run(ctx context.Context) {
	affinity.Pin("md-publisher")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		u := p.updates.PeekRead()
		if u == nil {
			continue
		}

		seq := p.seq
		p.seq++

		buf := wire.EncodeMarketUpdate(seq, *u)
		if _, err := p.conn.Write(buf); err != nil {
			p.log.Warn().Err(err).Msg("failed to publish incremental datagram")
		}

		*p.feed.ReserveWrite() = orders.WireMarketUpdate{SeqNum: seq, MarketUpdate: *u}
		p.feed.CommitWrite()

		p.updates.ReleaseRead()
	}
}
