package marketdata

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/ringqueue"
)

// newTestConsumer builds a Consumer without opening any socket, so the
// recovery state machine can be driven directly in-process.
func newTestConsumer() (*Consumer, *ringqueue.Queue[orders.MarketUpdate]) {
	out := ringqueue.New[orders.MarketUpdate](64)
	c := &Consumer{
		out:                out,
		log:                zerolog.Nop(),
		state:              Live,
		nextExpectedIncSeq: 1,
		incStaging:         make(map[uint64]orders.WireMarketUpdate),
		snapStaging:        make(map[uint64]orders.WireMarketUpdate),
	}
	return c, out
}

func drain(t *testing.T, q *ringqueue.Queue[orders.MarketUpdate]) []orders.MarketUpdate {
	t.Helper()
	var out []orders.MarketUpdate
	for {
		u := q.PeekRead()
		if u == nil {
			return out
		}
		out = append(out, *u)
		q.ReleaseRead()
	}
}

func TestLiveIncrementalsEmitInOrder(t *testing.T) {
	c, out := newTestConsumer()

	c.onIncremental(1, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1})
	c.onIncremental(2, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2})

	assert.Equal(t, Live, c.State())
	assert.EqualValues(t, 3, c.NextExpectedIncSeq())
	got := drain(t, out)
	require.Len(t, got, 2)
	assert.EqualValues(t, 1, got[0].MarketOrderID)
	assert.EqualValues(t, 2, got[1].MarketOrderID)
}

// TestGapTriggersRecoveryAndSnapshotStitchesIt drives the canonical gap
// scenario: incrementals 1-3 arrive live, 4 is dropped, a snapshot
// anchored at 6 arrives while 5 and 6 are staged, and the consumer must
// stitch back to Live expecting sequence 7 next.
func TestGapTriggersRecoveryAndSnapshotStitchesIt(t *testing.T) {
	c, out := newTestConsumer()

	c.onIncremental(1, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 1})
	c.onIncremental(2, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 2})
	c.onIncremental(3, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 3})
	drain(t, out) // clear the live prefix before asserting on recovery output

	// seq 4 is lost; seq 5 arrives next and triggers recovery.
	c.onIncremental(5, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 5})
	assert.Equal(t, Recovering, c.State())

	// seq 6 arrives live while still recovering and is staged too.
	c.onIncremental(6, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 6})

	// Snapshot cycle: Start, Clear, Add(moid=7), End — anchored at 6.
	c.onSnapshot(0, orders.MarketUpdate{Kind: orders.UpdateSnapshotStart, MarketOrderID: 6})
	c.onSnapshot(1, orders.MarketUpdate{Kind: orders.UpdateClear, TickerID: 0})
	c.onSnapshot(2, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 7, TickerID: 0})
	c.onSnapshot(3, orders.MarketUpdate{Kind: orders.UpdateSnapshotEnd, MarketOrderID: 6})

	assert.Equal(t, Live, c.State())
	assert.EqualValues(t, 7, c.NextExpectedIncSeq())

	got := drain(t, out)
	require.Len(t, got, 3, "Clear, Add(7) from the snapshot, then stitched incremental 6")
	assert.Equal(t, orders.UpdateClear, got[0].Kind)
	assert.EqualValues(t, 7, got[1].MarketOrderID)
	assert.EqualValues(t, 6, got[2].MarketOrderID)

	// Back to Live: seq 7 arrives and advances cleanly.
	c.onIncremental(7, orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: 70})
	assert.Equal(t, Live, c.State())
	assert.EqualValues(t, 8, c.NextExpectedIncSeq())
}

func TestDuplicateSnapshotSequenceRestartsStaging(t *testing.T) {
	c, _ := newTestConsumer()
	c.state = Recovering

	c.onSnapshot(0, orders.MarketUpdate{Kind: orders.UpdateSnapshotStart})
	require.Len(t, c.snapStaging, 1)

	c.onSnapshot(0, orders.MarketUpdate{Kind: orders.UpdateSnapshotStart})
	assert.Len(t, c.snapStaging, 0, "a duplicate seq 0 means the snapshot cycle restarted")
}

func TestSnapshotIgnoredWhileLive(t *testing.T) {
	c, _ := newTestConsumer()
	c.onSnapshot(0, orders.MarketUpdate{Kind: orders.UpdateSnapshotStart})
	assert.Len(t, c.snapStaging, 0)
}

func TestIncrementalGapDuringStitchDiscardsSnapshotAndWaitsForNextCycle(t *testing.T) {
	c, _ := newTestConsumer()
	c.state = Recovering
	// inc_staging has a gap relative to the anchor: anchor=6 but only 8 is staged.
	c.incStaging[8] = orders.WireMarketUpdate{SeqNum: 8, MarketUpdate: orders.MarketUpdate{MarketOrderID: 8}}

	c.onSnapshot(0, orders.MarketUpdate{Kind: orders.UpdateSnapshotStart, MarketOrderID: 6})
	c.onSnapshot(1, orders.MarketUpdate{Kind: orders.UpdateSnapshotEnd, MarketOrderID: 6})

	assert.Equal(t, Recovering, c.State(), "gap while stitching must not return to Live")
	assert.Len(t, c.snapStaging, 0, "discarded snapshot awaits the next cycle")
}
