package marketdata

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clobcore/xchange/internal/affinity"
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/ringqueue"
	"github.com/clobcore/xchange/internal/wire"
)

// RecoveryState is the consumer's gap-detection state.
type RecoveryState int

const (
	Live RecoveryState = iota
	Recovering
)

func (s RecoveryState) String() string {
	if s == Recovering {
		return "RECOVERING"
	}
	return "LIVE"
}

// pollDeadline bounds each non-blocking-style socket read in the
// consumer's busy-wait loop.
const pollDeadline = 2 * time.Millisecond

// Consumer is the trading-client's market-data ingress: it reads the
// incremental multicast group continuously, detects sequence gaps,
// subscribes to the snapshot group on a gap, and stitches the two
// streams back into a consistent update sequence before emitting to out.
type Consumer struct {
	incAddr  *net.UDPAddr
	snapAddr *net.UDPAddr
	incConn  *net.UDPConn

	out *ringqueue.Queue[orders.MarketUpdate]
	log zerolog.Logger

	mu                 sync.Mutex
	state              RecoveryState
	nextExpectedIncSeq uint64
	snapConn           *net.UDPConn
	incStaging         map[uint64]orders.WireMarketUpdate
	snapStaging        map[uint64]orders.WireMarketUpdate
}

// NewConsumer subscribes to the incremental multicast group at incAddr
// and prepares (but does not yet join) the snapshot group at snapAddr.
// out is the strategy-facing update queue the trade engine drains.
func NewConsumer(incAddr, snapAddr string, out *ringqueue.Queue[orders.MarketUpdate], log zerolog.Logger) (*Consumer, error) {
	incUDPAddr, err := net.ResolveUDPAddr("udp", incAddr)
	if err != nil {
		return nil, err
	}
	snapUDPAddr, err := net.ResolveUDPAddr("udp", snapAddr)
	if err != nil {
		return nil, err
	}
	incConn, err := net.ListenMulticastUDP("udp", nil, incUDPAddr)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		incAddr:            incUDPAddr,
		snapAddr:           snapUDPAddr,
		incConn:            incConn,
		out:                out,
		log:                log.With().Str("component", "md-consumer").Logger(),
		state:              Live,
		nextExpectedIncSeq: 1,
		incStaging:         make(map[uint64]orders.WireMarketUpdate),
		snapStaging:        make(map[uint64]orders.WireMarketUpdate),
	}, nil
}

// Close releases the consumer's sockets.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapConn != nil {
		c.snapConn.Close()
	}
	return c.incConn.Close()
}

// State returns the consumer's current recovery state.
func (c *Consumer) State() RecoveryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NextExpectedIncSeq returns the incremental sequence the consumer next
// expects to see live.
func (c *Consumer) NextExpectedIncSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextExpectedIncSeq
}

// Run polls both multicast sockets (the snapshot socket only while
// Recovering) until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) {
	affinity.Pin("md-consumer")
	incBuf := make([]byte, wire.MarketUpdateSize)
	snapBuf := make([]byte, wire.MarketUpdateSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.incConn.SetReadDeadline(time.Now().Add(pollDeadline))
		if n, _, err := c.incConn.ReadFromUDP(incBuf); err == nil && n >= wire.MarketUpdateSize {
			seq, upd := wire.DecodeMarketUpdate(incBuf)
			c.onIncremental(seq, upd)
		}

		if snapConn := c.snapshotConn(); snapConn != nil {
			snapConn.SetReadDeadline(time.Now().Add(pollDeadline))
			if n, _, err := snapConn.ReadFromUDP(snapBuf); err == nil && n >= wire.MarketUpdateSize {
				seq, upd := wire.DecodeMarketUpdate(snapBuf)
				c.onSnapshot(seq, upd)
			}
		}
	}
}

func (c *Consumer) snapshotConn() *net.UDPConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapConn
}

// onIncremental implements the Live/Recovering transition on sequence
// mismatch and, while Recovering, stages the datagram.
func (c *Consumer) onIncremental(seq uint64, upd orders.MarketUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Live {
		if seq == c.nextExpectedIncSeq {
			c.nextExpectedIncSeq++
			c.emit(upd)
			return
		}
		c.log.Warn().Uint64("seq", seq).Uint64("expected", c.nextExpectedIncSeq).Msg("incremental gap detected, entering recovery")
		c.enterRecovering()
	}

	c.incStaging[seq] = orders.WireMarketUpdate{SeqNum: seq, MarketUpdate: upd}
	c.trySync()
}

// enterRecovering must be called with c.mu held.
func (c *Consumer) enterRecovering() {
	c.state = Recovering
	c.incStaging = make(map[uint64]orders.WireMarketUpdate)
	c.snapStaging = make(map[uint64]orders.WireMarketUpdate)

	conn, err := net.ListenMulticastUDP("udp", nil, c.snapAddr)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to subscribe to snapshot multicast")
		return
	}
	c.snapConn = conn
}

// exitRecovering must be called with c.mu held.
func (c *Consumer) exitRecovering() {
	c.state = Live
	if c.snapConn != nil {
		c.snapConn.Close()
		c.snapConn = nil
	}
}

// onSnapshot stages a snapshot datagram while Recovering. A duplicate
// sequence number means the snapshot cycle restarted mid-stream and the
// staged snapshot is discarded.
func (c *Consumer) onSnapshot(seq uint64, upd orders.MarketUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recovering {
		return
	}
	if _, dup := c.snapStaging[seq]; dup {
		c.log.Warn().Uint64("seq", seq).Msg("duplicate snapshot sequence, snapshot cycle restarted")
		c.snapStaging = make(map[uint64]orders.WireMarketUpdate)
		return
	}

	c.snapStaging[seq] = orders.WireMarketUpdate{SeqNum: seq, MarketUpdate: upd}
	c.trySync()
}

// trySync attempts to stitch the staged snapshot and incremental
// streams back into a consistent sequence. Must be called
// with c.mu held.
func (c *Consumer) trySync() {
	if len(c.snapStaging) == 0 {
		return
	}

	snapKeys := sortedKeys(c.snapStaging)
	if c.snapStaging[snapKeys[0]].Kind != orders.UpdateSnapshotStart {
		c.snapStaging = make(map[uint64]orders.WireMarketUpdate)
		return
	}
	for i, k := range snapKeys {
		if k != uint64(i) {
			c.snapStaging = make(map[uint64]orders.WireMarketUpdate)
			return
		}
	}
	last := c.snapStaging[snapKeys[len(snapKeys)-1]]
	if last.Kind != orders.UpdateSnapshotEnd {
		return // snapshot still streaming
	}

	anchor := last.MarketOrderID
	next := anchor
	var stitched []orders.MarketUpdate
	for _, k := range sortedKeys(c.incStaging) {
		if k < next {
			continue
		}
		if k != next {
			c.log.Warn().Uint64("key", k).Uint64("expected", next).Msg("incremental gap while stitching, awaiting next snapshot")
			c.snapStaging = make(map[uint64]orders.WireMarketUpdate)
			return
		}
		stitched = append(stitched, c.incStaging[k].MarketUpdate)
		next++
	}

	for _, k := range snapKeys {
		u := c.snapStaging[k]
		if u.Kind == orders.UpdateSnapshotStart || u.Kind == orders.UpdateSnapshotEnd {
			continue
		}
		c.emit(u.MarketUpdate)
	}
	for _, u := range stitched {
		c.emit(u)
	}

	c.nextExpectedIncSeq = next
	c.incStaging = make(map[uint64]orders.WireMarketUpdate)
	c.snapStaging = make(map[uint64]orders.WireMarketUpdate)
	c.exitRecovering()
	c.log.Info().Uint64("next_expected_inc_seq", c.nextExpectedIncSeq).Msg("recovery complete, returning to live")
}

// emit publishes an update to the strategy-facing queue. Must be called
// with c.mu held; the ring queue itself needs no external lock (single
// producer), but emit always runs on this goroutine, so the lock held for
// staging-map mutation covers it harmlessly.
func (c *Consumer) emit(u orders.MarketUpdate) {
	*c.out.ReserveWrite() = u
	c.out.CommitWrite()
}

func sortedKeys(m map[uint64]orders.WireMarketUpdate) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
