// Package main is the exchange binary: the order gateway, matching
// engine, incremental publisher, and snapshot synthesizer wired together
// over the lock-free SPSC ring queue fabric.
//
//	TCP ingress ──▶ FIFO sequencer ──▶ request queue ──▶ matching engine
//	                                                          │
//	                          ┌───────────────────────────────┼──────────┐
//	                          ▼                                          ▼
//	                  response queue                           market-update queue
//	                          │                                          │
//	                          ▼                                          ▼
//	                 gateway dispatch                                publisher ──▶ feed queue ──▶ synthesizer
//	                 (back to clients)                          (incremental multicast)        (snapshot multicast)
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/clobcore/xchange/internal/config"
	"github.com/clobcore/xchange/internal/gateway"
	"github.com/clobcore/xchange/internal/marketdata"
	"github.com/clobcore/xchange/internal/matching"
	"github.com/clobcore/xchange/internal/orders"
	"github.com/clobcore/xchange/internal/ringqueue"
	"github.com/clobcore/xchange/internal/risk"
)

// queueCapacity sizes every ring queue in the fabric. Capacity must cover
// the peak burst: the queue never blocks and overflow is a sizing bug,
// not a runtime error.
const queueCapacity = 65536

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "exchange",
		Short: "Runs the matching engine, order gateway, and market-data publisher",
		RunE:  runExchange,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (optional; defaults apply otherwise)")
	root.PersistentFlags().String("gateway-addr", "", "override gateway.listen_addr")
	root.PersistentFlags().StringSlice("tickers", nil, "instrument ids to register, e.g. 0,1,2 (default: 0)")

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("exchange exited with error")
	}
}

func runExchange(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("gateway-addr"); addr != "" {
		cfg.Gateway.ListenAddr = addr
	}

	logger := newLogger(cfg.Logging.Level)

	tickers, err := cmd.Flags().GetStringSlice("tickers")
	if err != nil {
		return err
	}
	instruments := parseTickers(tickers)

	requests := ringqueue.New[orders.ClientRequest](queueCapacity)
	responses := ringqueue.New[orders.ClientResponse](queueCapacity)
	updates := ringqueue.New[orders.MarketUpdate](queueCapacity)
	feed := ringqueue.New[orders.WireMarketUpdate](queueCapacity)

	var gate risk.Gate
	if cfg.Risk.Enabled {
		gate = risk.NewChecker(risk.Config{
			MaxOrderQty:      cfg.Risk.MaxOrderSize,
			MaxOrderValue:    cfg.Risk.MaxOrderValue,
			MaxPositionQty:   1_000_000,
			MaxDailyVolume:   1_000_000_000,
			PriceBandPercent: 0.10,
		})
	}

	engine := matching.NewEngine(responses, updates, gate)
	for _, t := range instruments {
		engine.AddInstrument(uint32(t), cfg.Limits.MaxOrderIDs, cfg.Limits.MaxPriceLevels)
	}

	gw := gateway.New(gateway.Config{
		ListenAddr:      cfg.Gateway.ListenAddr,
		SequencerBuffer: 4096,
		BatchWindow:     200 * time.Microsecond,
	}, requests, responses, logger)

	publisher, err := marketdata.NewPublisher(cfg.MarketData.IncrementalGroup, updates, feed, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	synthesizer, err := marketdata.NewSynthesizer(cfg.MarketData.SnapshotGroup, cfg.MarketData.SnapshotPeriod, feed, logger)
	if err != nil {
		return err
	}
	defer synthesizer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); engine.Run(ctx, requests) }()
	go func() { defer wg.Done(); publisher.Run(ctx) }()
	go func() { defer wg.Done(); synthesizer.Run(ctx) }()
	go func() {
		defer wg.Done()
		if err := gw.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("gateway exited")
		}
	}()

	logger.Info().
		Str("gateway_addr", cfg.Gateway.ListenAddr).
		Str("incremental_group", cfg.MarketData.IncrementalGroup).
		Str("snapshot_group", cfg.MarketData.SnapshotGroup).
		Ints("instruments", instruments).
		Msg("exchange running")

	<-ctx.Done()
	// Cooperative, coarse shutdown: give in-flight messages a
	// moment to drain before goroutines observe ctx.Done and exit.
	time.Sleep(50 * time.Millisecond)
	wg.Wait()
	logger.Info().Msg("exchange stopped")
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func parseTickers(raw []string) []int {
	if len(raw) == 0 {
		return []int{0}
	}
	out := make([]int, 0, len(raw))
	for _, s := range raw {
		if t, err := strconv.Atoi(s); err == nil {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []int{0}
	}
	return out
}
