// Package gateway implements the exchange-side TCP order gateway and its
// FIFO request sequencer.
//
// A listening socket accepts client connections. Each client is
// identified by a client-id carried on the wire; the gateway binds that
// id to whichever connection first presents it, and drops (without
// advancing its sequence state) any request for that client-id that
// later arrives on a different connection. Per-client inbound requests
// must carry a strictly monotone sequence number starting at 1; a
// mismatch is dropped and logged rather than reordered or rejected back
// to the client — this surfaces client bugs instead of silently patching
// over them.
//
// Requests that pass validation are timestamped at receive time and
// handed to the FIFO sequencer, which periodically drains everything
// it has buffered, sorts by receive time, and enqueues the batch into
// the shared request ring queue in that order. This gives multiple
// clients whose requests are read in the same poll cycle a stable,
// time-based arbitration instead of socket-iteration order.
//
// Responses are drained from the response ring queue on a separate
// goroutine and written back to each client's bound connection with a
// per-client, monotone outbound sequence number.
package gateway

import (
	"context"
	"io"
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

// Config configures a Gateway.
type Config struct {
	ListenAddr string

	// SequencerBuffer bounds the FIFO sequencer's pending-request buffer.
	// Overflow is a sizing bug and is fatal, not recoverable.
	SequencerBuffer int

	// BatchWindow is how long the sequencer keeps draining newly-arrived
	// requests into the current batch once the first one arrives, before
	// sorting and flushing. It stands in for the source's "poll cycle":
	// a busy-wait reactor polling non-blocking sockets naturally batches
	// whatever arrived since the last iteration; this timer reproduces
	// the same batching behavior over Go's blocking-read-per-goroutine
	// connection model.
	BatchWindow time.Duration
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:12345",
		SequencerBuffer: 4096,
		BatchWindow:     200 * time.Microsecond,
	}
}

type pendingRequest struct {
	req       orders.ClientRequest
	recvNanos int64
}

// Gateway owns the TCP listener, the FIFO staging buffer, the per-client
// sequence tables, and is the sole producer for the request queue and
// sole consumer of the response queue.
type Gateway struct {
	cfg Config
	log zerolog.Logger

	requests  *ringqueue.Queue[orders.ClientRequest]
	responses *ringqueue.Queue[orders.ClientResponse]

	pending chan pendingRequest

	mu            sync.Mutex
	conns         map[uint32]net.Conn // client id -> its bound connection
	nextExpectSeq map[uint32]uint64   // client id -> next expected inbound seq
	nextOutSeq    map[uint32]uint64   // client id -> next outbound seq
}

// New creates a Gateway wired to the given request/response ring queues.
func New(cfg Config, requests *ringqueue.Queue[orders.ClientRequest], responses *ringqueue.Queue[orders.ClientResponse], log zerolog.Logger) *Gateway {
	if cfg.SequencerBuffer <= 0 {
		cfg.SequencerBuffer = 4096
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = 200 * time.Microsecond
	}
	return &Gateway{
		cfg:           cfg,
		log:           log.With().Str("component", "gateway").Logger(),
		requests:      requests,
		responses:     responses,
		pending:       make(chan pendingRequest, cfg.SequencerBuffer),
		conns:         make(map[uint32]net.Conn),
		nextExpectSeq: make(map[uint32]uint64),
		nextOutSeq:    make(map[uint32]uint64),
	}
}

// Run starts the listener, the FIFO sequencer, and the response
// dispatcher, and blocks until ctx is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return err
	}
	g.log.Info().Str("addr", g.cfg.ListenAddr).Msg("gateway listening")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.acceptLoop(ctx, ln)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.sequencerLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.dispatchLoop(ctx)
	}()

	<-ctx.Done()
	ln.Close()
	wg.Wait()
	return nil
}

func (g *Gateway) acceptLoop(ctx context.Context, ln net.Listener) {
	affinity.Pin("gateway-accept")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				g.log.Warn().Err(err).Msg("accept failed")
				return
			}
		}
		go g.handleConn(ctx, conn)
	}
}

// handleConn reads fixed-size wire requests from conn until it errors or
// closes. The first request on a connection binds its client-id to this
// connection for the life of the gateway (or until that id's connection
// drops); every subsequent request on this connection for a different
// client-id is rejected the same way a mismatched connection would be.
func (g *Gateway) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, wire.RequestSize)
	boundClientID := orders.InvalidClientID

	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			if err != io.EOF {
				g.log.Debug().Err(err).Msg("connection read error")
			}
			break
		}
		recvNanos := orders.Now()
		seq, req := wire.DecodeRequest(buf)

		if boundClientID == orders.InvalidClientID {
			if !g.bindClient(req.ClientID, conn) {
				g.log.Warn().Uint32("client_id", req.ClientID).Msg("client_id already bound to a different connection; dropping")
				continue
			}
			boundClientID = req.ClientID
		} else if req.ClientID != boundClientID {
			g.log.Warn().Uint32("client_id", req.ClientID).Uint32("bound_client_id", boundClientID).
				Msg("request for a different client_id on a bound connection; dropping")
			continue
		}

		if !g.checkAndAdvanceSeq(req.ClientID, seq) {
			g.log.Warn().Uint32("client_id", req.ClientID).Uint64("seq", seq).Msg("out-of-sequence request dropped")
			continue
		}

		select {
		case g.pending <- pendingRequest{req: req, recvNanos: recvNanos}:
		default:
			orders.Fatalf("gateway", "FIFO sequencer buffer overflow (capacity=%d)", g.cfg.SequencerBuffer)
		}
	}

	if boundClientID != orders.InvalidClientID {
		g.unbindClient(boundClientID, conn)
	}
}

// bindClient assigns clientID to conn if unbound, or confirms conn is
// already its bound connection. Returns false on a mismatch.
func (g *Gateway) bindClient(clientID uint32, conn net.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing, ok := g.conns[clientID]
	if !ok {
		g.conns[clientID] = conn
		if _, ok := g.nextExpectSeq[clientID]; !ok {
			g.nextExpectSeq[clientID] = 1
		}
		return true
	}
	return existing == conn
}

func (g *Gateway) unbindClient(clientID uint32, conn net.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[clientID] == conn {
		delete(g.conns, clientID)
	}
}

// checkAndAdvanceSeq validates a strictly monotone per-client inbound
// sequence starting at 1. A mismatch is dropped without advancing the
// expected counter.
func (g *Gateway) checkAndAdvanceSeq(clientID uint32, seq uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	expected := g.nextExpectSeq[clientID]
	if expected == 0 {
		expected = 1
	}
	if seq != expected {
		return false
	}
	g.nextExpectSeq[clientID] = expected + 1
	return true
}

// sequencerLoop is the FIFO sequencer: it waits for at least one pending
// request, drains whatever else arrives within BatchWindow, sorts the
// batch by receive time, and enqueues it onto the request ring queue in
// that order.
func (g *Gateway) sequencerLoop(ctx context.Context) {
	affinity.Pin("gateway-sequencer")
	batch := make([]pendingRequest, 0, 256)

	for {
		select {
		case <-ctx.Done():
			return
		case first := <-g.pending:
			batch = append(batch, first)
		}

		deadline := time.After(g.cfg.BatchWindow)
	drain:
		for {
			select {
			case p := <-g.pending:
				batch = append(batch, p)
			case <-deadline:
				break drain
			case <-ctx.Done():
				return
			}
		}

		sort.SliceStable(batch, func(i, j int) bool { return batch[i].recvNanos < batch[j].recvNanos })
		for _, p := range batch {
			*g.requests.ReserveWrite() = p.req
			g.requests.CommitWrite()
		}
		batch = batch[:0]
	}
}

// dispatchLoop is the sole consumer of the response queue: it routes each
// response to its owning client's bound connection, prefixed with that
// client's monotone outbound sequence number.
func (g *Gateway) dispatchLoop(ctx context.Context) {
	affinity.Pin("gateway-dispatch")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp := g.responses.PeekRead()
		if resp == nil {
			continue
		}
		g.send(*resp)
		g.responses.ReleaseRead()
	}
}

func (g *Gateway) send(resp orders.ClientResponse) {
	g.mu.Lock()
	conn, ok := g.conns[resp.ClientID]
	if !ok {
		g.mu.Unlock()
		g.log.Warn().Uint32("client_id", resp.ClientID).Msg("response for client with no bound connection; dropping")
		return
	}
	// Advance the outbound sequence only for responses routed to a bound
	// connection, so responses dropped while the client is unbound do not
	// consume sequence numbers. The counter is kept per client id and is
	// not reset when that client reconnects.
	seq := g.nextOutSeq[resp.ClientID]
	if seq == 0 {
		seq = 1
	}
	g.nextOutSeq[resp.ClientID] = seq + 1
	g.mu.Unlock()

	buf := wire.EncodeResponse(seq, resp)
	if _, err := conn.Write(buf); err != nil {
		g.log.Warn().Err(err).Uint32("client_id", resp.ClientID).Msg("failed to write response")
	}
}
