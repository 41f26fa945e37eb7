package marketdata

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/ringqueue"
	"github.com/clobcore/xchange/internal/wire"
)

// TestPublisherSequencesAndTees points the publisher at a plain loopback
// UDP listener instead of a multicast group and verifies both halves of
// its contract: datagrams carry strictly consecutive sequence numbers
// starting at 1, and every published record lands on the synthesizer's
// feed queue with the same sequence number.
func TestPublisherSequencesAndTees(t *testing.T) {
	recv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer recv.Close()

	updates := ringqueue.New[orders.MarketUpdate](16)
	feed := ringqueue.New[orders.WireMarketUpdate](16)

	p, err := NewPublisher(recv.LocalAddr().String(), updates, feed, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	for i := 0; i < 3; i++ {
		*updates.ReserveWrite() = orders.MarketUpdate{Kind: orders.UpdateAdd, MarketOrderID: uint64(i + 1), TickerID: 0, Side: orders.SideBuy, Price: 100, Qty: 10}
		updates.CommitWrite()
	}

	buf := make([]byte, wire.MarketUpdateSize)
	for want := uint64(1); want <= 3; want++ {
		recv.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := recv.ReadFromUDP(buf)
		require.NoError(t, err)
		require.Equal(t, wire.MarketUpdateSize, n, "one fixed-size record per datagram")

		seq, upd := wire.DecodeMarketUpdate(buf)
		assert.Equal(t, want, seq, "incremental sequence numbers are strictly consecutive from 1")
		assert.Equal(t, want, upd.MarketOrderID)
	}

	deadline := time.Now().Add(2 * time.Second)
	var teed []orders.WireMarketUpdate
	for len(teed) < 3 && time.Now().Before(deadline) {
		if u := feed.PeekRead(); u != nil {
			teed = append(teed, *u)
			feed.ReleaseRead()
		}
	}
	require.Len(t, teed, 3)
	for i, u := range teed {
		assert.Equal(t, uint64(i+1), u.SeqNum, "the feed copy carries the published sequence number")
	}
}
