package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/wire"
)

// Client is the trading-client side of the order gateway wire protocol: a
// single TCP connection to the exchange, an outbound per-client monotone
// sequence number on every request, and inbound sequence validation on
// every response.
type Client struct {
	clientID uint32
	conn     net.Conn
	log      zerolog.Logger

	outSeq uint64 // atomic: next outbound request sequence

	mu           sync.Mutex
	nextExpectIn uint64
	writeMu      sync.Mutex
}

// Dial connects to the exchange's order gateway at addr, identifying
// itself with clientID on the first request it sends.
func Dial(addr string, clientID uint32, log zerolog.Logger) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gateway client dial %s: %w", addr, err)
	}
	return &Client{
		clientID:     clientID,
		conn:         conn,
		log:          log.With().Str("component", "gateway-client").Uint32("client_id", clientID).Logger(),
		outSeq:       1,
		nextExpectIn: 1,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SubmitNew sends a New request for (clientOrderID, instrument, side,
// price, qty), stamped with this client's next outbound sequence number.
func (c *Client) SubmitNew(instrument uint32, clientOrderID uint64, side orders.Side, price int64, qty uint32) error {
	return c.send(orders.ClientRequest{
		Kind:          orders.RequestNew,
		ClientID:      c.clientID,
		TickerID:      instrument,
		ClientOrderID: clientOrderID,
		Side:          side,
		Price:         price,
		Qty:           qty,
	})
}

// SubmitCancel sends a Cancel request for clientOrderID on instrument.
func (c *Client) SubmitCancel(instrument uint32, clientOrderID uint64) error {
	return c.send(orders.ClientRequest{
		Kind:          orders.RequestCancel,
		ClientID:      c.clientID,
		TickerID:      instrument,
		ClientOrderID: clientOrderID,
	})
}

func (c *Client) send(req orders.ClientRequest) error {
	seq := atomic.AddUint64(&c.outSeq, 1) - 1
	buf := wire.EncodeRequest(seq, req)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(buf)
	return err
}

// Run reads responses until ctx is canceled or the connection errors, and
// delivers each one (after validating the inbound sequence) to onResponse.
// A gap in the inbound sequence is logged and the response is delivered
// anyway — the client-side gateway has no recovery channel analogous to
// market data's snapshot stream, so dropping it would silently lose a
// fill notification.
func (c *Client) Run(ctx context.Context, onResponse func(orders.ClientResponse)) error {
	buf := make([]byte, wire.ResponseSize)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		c.conn.Close()
		close(done)
	}()

	for {
		if _, err := io.ReadFull(c.conn, buf); err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
		seq, resp := wire.DecodeResponse(buf)

		c.mu.Lock()
		expected := c.nextExpectIn
		if seq != expected {
			c.log.Warn().Uint64("seq", seq).Uint64("expected", expected).Msg("response sequence gap")
		}
		c.nextExpectIn = seq + 1
		c.mu.Unlock()

		onResponse(resp)
	}
}
