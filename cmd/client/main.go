// Package main is the trading-client binary: a thin cobra CLI over
// internal/gateway.Client (order submission) and internal/marketdata.Consumer
// (market-data ingestion into internal/clientbook), wired the same way
// cmd/server wires its server-side counterparts.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/clobcore/xchange/internal/clientbook"
	"github.com/clobcore/xchange/internal/config"
	"github.com/clobcore/xchange/internal/gateway"
	"github.com/clobcore/xchange/internal/marketdata"
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/ringqueue"
	"github.com/clobcore/xchange/internal/strategy"
)

const marketDataQueueCapacity = 65536

var (
	configPath string
	clientID   uint32
)

func main() {
	root := &cobra.Command{
		Use:   "client",
		Short: "Submits orders to and consumes market data from the exchange",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (optional; defaults apply otherwise)")
	root.PersistentFlags().Uint32Var(&clientID, "client-id", 1, "this client's id on the order gateway")
	root.PersistentFlags().String("gateway-addr", "", "override gateway.listen_addr")

	root.AddCommand(newSubmitCmd(), newCancelCmd(), newBookCmd(), newDemoCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("client exited with error")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if addr, _ := cmd.Flags().GetString("gateway-addr"); addr != "" {
		cfg.Gateway.ListenAddr = addr
	}
	return cfg, nil
}

func parseSide(s string) (orders.Side, error) {
	switch strings.ToLower(s) {
	case "buy", "b":
		return orders.SideBuy, nil
	case "sell", "s":
		return orders.SideSell, nil
	default:
		return orders.SideInvalid, fmt.Errorf("side must be buy or sell, got %q", s)
	}
}

// dialAndAwait opens a gateway connection, sends one request via submit,
// and waits up to timeout for the first response to arrive before closing
// the connection — the CLI's request/response round trips are one-shot,
// unlike the exchange-resident gateway.Client which stays connected for the
// life of a trading session.
func dialAndAwait(cfg *config.Config, logger zerolog.Logger, timeout time.Duration, submit func(*gateway.Client) error) (*orders.ClientResponse, error) {
	cl, err := gateway.Dial(cfg.Gateway.ListenAddr, clientID, logger)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	respCh := make(chan orders.ClientResponse, 1)
	go cl.Run(ctx, func(r orders.ClientResponse) {
		select {
		case respCh <- r:
		default:
		}
	})

	if err := submit(cl); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		return &resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("timed out waiting for a gateway response")
	}
}

func newSubmitCmd() *cobra.Command {
	var instrument uint32
	var side string
	var price int64
	var qty uint32

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new limit order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := parseSide(side)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging.Level)
			clientOrderID := uint64(orders.Now())

			resp, err := dialAndAwait(cfg, logger, 2*time.Second, func(cl *gateway.Client) error {
				return cl.SubmitNew(instrument, clientOrderID, s, price, qty)
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.String())
			return nil
		},
	}
	cmd.Flags().Uint32Var(&instrument, "instrument", 0, "instrument id")
	cmd.Flags().StringVar(&side, "side", "buy", "buy or sell")
	cmd.Flags().Int64Var(&price, "price", 0, "limit price in ticks")
	cmd.Flags().Uint32Var(&qty, "qty", 100, "quantity")
	return cmd
}

func newCancelCmd() *cobra.Command {
	var instrument uint32
	var clientOrderID uint64

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a resting order by its client order id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging.Level)

			resp, err := dialAndAwait(cfg, logger, 2*time.Second, func(cl *gateway.Client) error {
				return cl.SubmitCancel(instrument, clientOrderID)
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.String())
			return nil
		},
	}
	cmd.Flags().Uint32Var(&instrument, "instrument", 0, "instrument id")
	cmd.Flags().Uint64Var(&clientOrderID, "order-id", 0, "client order id to cancel")
	return cmd
}

// marketDataFeed wraps one long-lived marketdata.Consumer draining into
// book for as long as ctx is live. A consumer is deliberately kept for an
// entire command invocation rather than redialed per read: redialing would
// reset nextExpectedIncSeq to 1 every time and force a fresh Recovering
// cycle that only clears once the exchange's next periodic snapshot
// arrives.
type marketDataFeed struct {
	consumer *marketdata.Consumer
	cancel   context.CancelFunc
}

func startMarketDataFeed(cfg *config.Config, logger zerolog.Logger, book *clientbook.Book, st strategy.Strategy) (*marketDataFeed, error) {
	updates := ringqueue.New[orders.MarketUpdate](marketDataQueueCapacity)
	consumer, err := marketdata.NewConsumer(cfg.MarketData.IncrementalGroup, cfg.MarketData.SnapshotGroup, updates, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go consumer.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			u := updates.PeekRead()
			if u == nil {
				continue
			}
			book.Apply(*u)
			if u.Kind == orders.UpdateTrade {
				st.OnTradeUpdate(*u)
			} else {
				st.OnOrderBookUpdate(u.TickerID, u.Price, u.Side, book)
			}
			updates.ReleaseRead()
		}
	}()

	return &marketDataFeed{consumer: consumer, cancel: cancel}, nil
}

func (f *marketDataFeed) Close() {
	f.cancel()
	f.consumer.Close()
}

// waitForLive blocks until the consumer reaches marketdata.Live or timeout
// elapses, polling State() — a fresh consumer starts in Recovering the
// first time it observes an incremental sequence above 1, and only returns
// to Live once a periodic snapshot lets it stitch the gap.
func (f *marketDataFeed) waitForLive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.consumer.State() == marketdata.Live {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return f.consumer.State() == marketdata.Live
}

func newBookCmd() *cobra.Command {
	var instrument uint32
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Print the best bid/offer observed over the market-data feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging.Level)
			book := clientbook.New()
			st := strategy.NewNoOpStrategy(logger)

			feed, err := startMarketDataFeed(cfg, logger, book, st)
			if err != nil {
				return err
			}
			defer feed.Close()
			feed.waitForLive(duration)

			bidPx, bidQty, askPx, askQty, ok := book.BBO(instrument)
			if !ok {
				fmt.Printf("instrument %d: no two-sided market observed in %s\n", instrument, duration)
				return nil
			}
			fmt.Printf("instrument %d: bid %d x %d | ask %d x %d (%d resting orders replicated)\n",
				instrument, bidPx, bidQty, askPx, askQty, book.OrderCount())
			return nil
		},
	}
	cmd.Flags().Uint32Var(&instrument, "instrument", 0, "instrument id")
	cmd.Flags().DurationVar(&duration, "duration", 3*time.Second, "how long to listen to the market-data feed")
	return cmd
}

func newDemoCmd() *cobra.Command {
	var instrument uint32

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Post two-sided liquidity, take it, and print the book at each step",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging.Level)
			return runDemo(cfg, logger, instrument)
		},
	}
	cmd.Flags().Uint32Var(&instrument, "instrument", 0, "instrument id")
	return cmd
}

// runDemo posts resting liquidity, shows the book, takes it with an
// aggressive order, and shows the book again.
func runDemo(cfg *config.Config, logger zerolog.Logger, instrument uint32) error {
	const makerClientID = 1
	const takerClientID = 2

	maker, err := gateway.Dial(cfg.Gateway.ListenAddr, makerClientID, logger)
	if err != nil {
		return fmt.Errorf("dial maker: %w", err)
	}
	defer maker.Close()

	book := clientbook.New()
	st := strategy.NewNoOpStrategy(logger)
	feed, err := startMarketDataFeed(cfg, logger, book, st)
	if err != nil {
		return err
	}
	defer feed.Close()

	fmt.Println("=== waiting for market-data sync ===")
	if !feed.waitForLive(cfg.MarketData.SnapshotPeriod + 5*time.Second) {
		fmt.Println("  warning: consumer did not reach LIVE before the deadline; book may be incomplete")
	}

	fmt.Println("=== posting resting liquidity ===")
	resting := []struct {
		side  orders.Side
		price int64
		qty   uint32
	}{
		{orders.SideBuy, 148, 100},
		{orders.SideBuy, 147, 200},
		{orders.SideBuy, 146, 300},
		{orders.SideSell, 151, 100},
		{orders.SideSell, 152, 200},
		{orders.SideSell, 153, 300},
	}
	for _, o := range resting {
		id := uint64(orders.Now())
		if err := maker.SubmitNew(instrument, id, o.side, o.price, o.qty); err != nil {
			return err
		}
		fmt.Printf("  %s %d @ %d posted\n", o.side, o.qty, o.price)
	}
	time.Sleep(500 * time.Millisecond)
	printBBO(book, instrument, "book after resting liquidity")

	fmt.Println("=== taker crosses the spread ===")
	taker, err := gateway.Dial(cfg.Gateway.ListenAddr, takerClientID, logger)
	if err != nil {
		return fmt.Errorf("dial taker: %w", err)
	}
	defer taker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	respCh := make(chan orders.ClientResponse, 8)
	go taker.Run(ctx, func(r orders.ClientResponse) {
		select {
		case respCh <- r:
		default:
		}
	})

	// An aggressive limit far through the best offer behaves like a
	// marketable order against this engine, which has no separate market-
	// order kind.
	takerID := uint64(orders.Now())
	if err := taker.SubmitNew(instrument, takerID, orders.SideBuy, 999_999, 150); err != nil {
		return err
	}
	select {
	case resp := <-respCh:
		fmt.Printf("  taker response: %s\n", resp)
	case <-ctx.Done():
		fmt.Println("  timed out waiting for taker response")
	}

	time.Sleep(500 * time.Millisecond)
	printBBO(book, instrument, "book after trade")

	fmt.Println("=== demo complete ===")
	return nil
}

func printBBO(book *clientbook.Book, instrument uint32, label string) {
	bidPx, bidQty, askPx, askQty, ok := book.BBO(instrument)
	if !ok {
		fmt.Printf("%s: no two-sided market\n", label)
		return
	}
	fmt.Printf("%s: bid %d x %d | ask %d x %d\n", label, bidPx, bidQty, askPx, askQty)
}
