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

// DefaultSnapshotPeriod is the nominal interval between full snapshot
// broadcasts.
const DefaultSnapshotPeriod = 60 * time.Second

type shadowKey struct {
	instrument    uint32
	marketOrderID uint64
}

// shadowOrder is the synthesizer's flat per-order record. Unlike
// internal/orderbook.Book, this is deliberately not a sorted CLOB — it
// only needs to replay resting state, not match.
type shadowOrder struct {
	side     orders.Side
	price    int64
	qty      uint32
	priority uint64
}

// Synthesizer maintains the shadow book and periodically broadcasts a
// full snapshot on the snapshot multicast group.
type Synthesizer struct {
	conn   *net.UDPConn
	log    zerolog.Logger
	period time.Duration

	feed *ringqueue.Queue[orders.WireMarketUpdate]

	mu             sync.Mutex
	shadow         map[shadowKey]shadowOrder
	lastAppliedSeq uint64
}

// NewSynthesizer dials the snapshot multicast group at addr and wires
// feed (populated by Publisher) as its input stream.
func NewSynthesizer(addr string, period time.Duration, feed *ringqueue.Queue[orders.WireMarketUpdate], log zerolog.Logger) (*Synthesizer, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		period = DefaultSnapshotPeriod
	}
	return &Synthesizer{
		conn:   conn,
		log:    log.With().Str("component", "md-synthesizer").Logger(),
		period: period,
		feed:   feed,
		shadow: make(map[shadowKey]shadowOrder),
	}, nil
}

// Close releases the synthesizer's socket.
func (s *Synthesizer) Close() error {
	return s.conn.Close()
}

// Run applies every record from the feed queue into the shadow book and
// broadcasts a full snapshot every period, until ctx is canceled.
func (s *Synthesizer) Run(ctx context.Context) {
	affinity.Pin("md-synthesizer")
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishSnapshot()
		default:
		}

		u := s.feed.PeekRead()
		if u == nil {
			continue
		}
		s.apply(*u)
		s.feed.ReleaseRead()
	}
}

func (s *Synthesizer) apply(u orders.WireMarketUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAppliedSeq = u.SeqNum
	key := shadowKey{u.TickerID, u.MarketOrderID}

	switch u.Kind {
	case orders.UpdateAdd:
		s.shadow[key] = shadowOrder{side: u.Side, price: u.Price, qty: u.Qty, priority: u.Priority}
	case orders.UpdateModify:
		if existing, ok := s.shadow[key]; ok {
			existing.price = u.Price
			existing.qty = u.Qty
			s.shadow[key] = existing
		}
	case orders.UpdateCancel:
		delete(s.shadow, key)
	case orders.UpdateTrade:
		// No order identity on a Trade record; the resting side's own
		// Modify/Cancel already reflects the fill.
	}
}

// publishSnapshot broadcasts SnapshotStart, a per-instrument Clear plus
// one Add per live shadow order, then SnapshotEnd — each carrying its own
// sequence space that resets to 0 every cycle.
func (s *Synthesizer) publishSnapshot() {
	s.mu.Lock()
	anchor := s.lastAppliedSeq
	byInstrument := make(map[uint32][]struct {
		moid uint64
		o    shadowOrder
	})
	for k, o := range s.shadow {
		byInstrument[k.instrument] = append(byInstrument[k.instrument], struct {
			moid uint64
			o    shadowOrder
		}{k.marketOrderID, o})
	}
	s.mu.Unlock()

	instruments := make([]uint32, 0, len(byInstrument))
	for t := range byInstrument {
		instruments = append(instruments, t)
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i] < instruments[j] })

	seq := uint64(0)
	s.writeRecord(seq, orders.MarketUpdate{Kind: orders.UpdateSnapshotStart, MarketOrderID: anchor})
	seq++

	for _, t := range instruments {
		s.writeRecord(seq, orders.MarketUpdate{Kind: orders.UpdateClear, TickerID: t})
		seq++
		for _, entry := range byInstrument[t] {
			s.writeRecord(seq, orders.MarketUpdate{
				Kind:          orders.UpdateAdd,
				MarketOrderID: entry.moid,
				TickerID:      t,
				Side:          entry.o.side,
				Price:         entry.o.price,
				Qty:           entry.o.qty,
				Priority:      entry.o.priority,
			})
			seq++
		}
	}

	s.writeRecord(seq, orders.MarketUpdate{Kind: orders.UpdateSnapshotEnd, MarketOrderID: anchor})
	s.log.Info().Uint64("anchor", anchor).Int("instruments", len(instruments)).Msg("published snapshot")
}

func (s *Synthesizer) writeRecord(seq uint64, u orders.MarketUpdate) {
	buf := wire.EncodeMarketUpdate(seq, u)
	if _, err := s.conn.Write(buf); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish snapshot datagram")
	}
}
