// Package config loads layered configuration for the exchange and client
// binaries: defaults in code (mirroring the original source's ME_MAX_*
// macros and the default gateway port and multicast groups), overridable by a YAML file
// and XCHANGE_*-prefixed environment variables, following the same
// viper-based layering the rest of the example pack uses for its config
// packages.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration shared by both binaries; each
// binary only reads the sections relevant to it.
type Config struct {
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// GatewayConfig configures the order-gateway TCP endpoint.
type GatewayConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// MarketDataConfig configures the multicast groups and snapshot cadence
//.
type MarketDataConfig struct {
	SnapshotGroup    string        `mapstructure:"snapshot_group"`
	IncrementalGroup string        `mapstructure:"incremental_group"`
	SnapshotPeriod   time.Duration `mapstructure:"snapshot_period"`
}

// LimitsConfig mirrors the original source's ME_MAX_* sizing macros
//: pool and table capacities, not hidden magic numbers.
type LimitsConfig struct {
	MaxTickers     int `mapstructure:"max_tickers"`
	MaxClients     int `mapstructure:"max_clients"`
	MaxPriceLevels int `mapstructure:"max_price_levels"`
	MaxOrderIDs    int `mapstructure:"max_order_ids"`
}

// RiskConfig configures the optional pre-trade gate (internal/risk).
type RiskConfig struct {
	MaxOrderSize  uint32 `mapstructure:"max_order_size"`
	MaxOrderValue int64  `mapstructure:"max_order_value"`
	Enabled       bool   `mapstructure:"enabled"`
}

// LoggingConfig configures the zerolog sink shared by every component.
type LoggingConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Default returns the stock transport parameters: loopback gateway on :12345, the snapshot/
// incremental multicast groups, and a 60s snapshot period.
func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			ListenAddr: "127.0.0.1:12345",
		},
		MarketData: MarketDataConfig{
			SnapshotGroup:    "233.252.14.1:20000",
			IncrementalGroup: "233.252.14.3:20001",
			SnapshotPeriod:   60 * time.Second,
		},
		Limits: LimitsConfig{
			MaxTickers:     8,
			MaxClients:     256,
			MaxPriceLevels: 65536,
			MaxOrderIDs:    1 << 20,
		},
		Risk: RiskConfig{
			MaxOrderSize:  100_000,
			MaxOrderValue: 10_000_000,
			Enabled:       true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds a viper instance seeded with Default(), optionally merges a
// YAML file at path (a missing file is not an error — defaults and env
// vars still apply), then layers XCHANGE_*-prefixed environment
// variables on top, and unmarshals into Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("XCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("gateway.listen_addr", d.Gateway.ListenAddr)
	v.SetDefault("marketdata.snapshot_group", d.MarketData.SnapshotGroup)
	v.SetDefault("marketdata.incremental_group", d.MarketData.IncrementalGroup)
	v.SetDefault("marketdata.snapshot_period", d.MarketData.SnapshotPeriod)
	v.SetDefault("limits.max_tickers", d.Limits.MaxTickers)
	v.SetDefault("limits.max_clients", d.Limits.MaxClients)
	v.SetDefault("limits.max_price_levels", d.Limits.MaxPriceLevels)
	v.SetDefault("limits.max_order_ids", d.Limits.MaxOrderIDs)
	v.SetDefault("risk.max_order_size", d.Risk.MaxOrderSize)
	v.SetDefault("risk.max_order_value", d.Risk.MaxOrderValue)
	v.SetDefault("risk.enabled", d.Risk.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
}
