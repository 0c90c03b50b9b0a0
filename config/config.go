package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/backcast/journal"
	"github.com/rustyeddy/backcast/market"
	"github.com/rustyeddy/backcast/sim"
	"github.com/rustyeddy/backcast/stats"
	"github.com/rustyeddy/backcast/strategies"
)

// Config represents a complete backtest configuration
type Config struct {
	Broker   BrokerConfig   `json:"broker" yaml:"broker"`
	Stats    StatsConfig    `json:"stats" yaml:"stats"`
	Data     DataConfig     `json:"data" yaml:"data"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// BrokerConfig contains the simulated broker's account and cost settings
type BrokerConfig struct {
	Cash            float64 `json:"cash" yaml:"cash"`
	Spread          float64 `json:"spread" yaml:"spread"`
	Commission      float64 `json:"commission" yaml:"commission"`
	CommissionFixed float64 `json:"commission_fixed" yaml:"commission_fixed"`
	Slippage        float64 `json:"slippage" yaml:"slippage"`
	Margin          float64 `json:"margin" yaml:"margin"`
	TradeOnClose    bool    `json:"trade_on_close" yaml:"trade_on_close"`
	Hedging         bool    `json:"hedging" yaml:"hedging"`
	ExclusiveOrders bool    `json:"exclusive_orders" yaml:"exclusive_orders"`
	FinalizeTrades  bool    `json:"finalize_trades" yaml:"finalize_trades"`
	Seed            int64   `json:"seed" yaml:"seed"`
}

// StatsConfig contains the annualisation settings
type StatsConfig struct {
	BarsPerYear  float64 `json:"bars_per_year" yaml:"bars_per_year"`
	RiskFreeRate float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
}

// DataConfig lists the bar files of a run
type DataConfig struct {
	Files     []DataFile `json:"files" yaml:"files"`
	Benchmark string     `json:"benchmark,omitempty" yaml:"benchmark,omitempty"`
}

// DataFile is one symbol's bars. Format is "csv" or "parquet"; empty
// infers it from the extension.
type DataFile struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// StrategyConfig names the strategy and its parameters. Grid, Metric and
// Workers are used by sweeps only.
type StrategyConfig struct {
	Name    string               `json:"name" yaml:"name"`
	Params  map[string]float64   `json:"params,omitempty" yaml:"params,omitempty"`
	Grid    map[string][]float64 `json:"grid,omitempty" yaml:"grid,omitempty"`
	Metric  string               `json:"metric,omitempty" yaml:"metric,omitempty"`
	Workers int                  `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Decoders merge into existing maps, so start without default params.
	fresh := func() *Config {
		c := Default()
		c.Strategy.Params = nil
		return c
	}
	cfg := fresh()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = fresh()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.BrokerOptions().Validate(); err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	if c.Stats.BarsPerYear <= 0 || math.IsInf(c.Stats.BarsPerYear, 0) {
		return fmt.Errorf("stats.bars_per_year must be positive")
	}
	if math.IsNaN(c.Stats.RiskFreeRate) || math.IsInf(c.Stats.RiskFreeRate, 0) || c.Stats.RiskFreeRate <= -1 {
		return fmt.Errorf("stats.risk_free_rate must be a finite rate above -1")
	}

	seen := make(map[string]bool)
	for i, f := range c.Data.Files {
		if f.Symbol == "" {
			return fmt.Errorf("data.files[%d].symbol is required", i)
		}
		if f.Path == "" {
			return fmt.Errorf("data.files[%d].path is required", i)
		}
		if f.Format != "" && f.Format != "csv" && f.Format != "parquet" {
			return fmt.Errorf("data.files[%d].format must be 'csv' or 'parquet'", i)
		}
		if seen[f.Symbol] {
			return fmt.Errorf("data.files[%d]: duplicate symbol %s", i, f.Symbol)
		}
		seen[f.Symbol] = true
	}
	if b := c.Data.Benchmark; b != "" && len(c.Data.Files) > 0 && !seen[b] {
		return fmt.Errorf("data.benchmark %s is not one of the data files", b)
	}

	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if _, err := strategies.Lookup(c.Strategy.Name); err != nil {
		return fmt.Errorf("strategy.name: %w", err)
	}
	if c.Strategy.Workers < 0 {
		return fmt.Errorf("strategy.workers must not be negative")
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// BrokerOptions converts the broker section to the engine's configuration.
func (c *Config) BrokerOptions() sim.Config {
	b := c.Broker
	return sim.Config{
		Cash:            b.Cash,
		Spread:          b.Spread,
		Commission:      b.Commission,
		CommissionFixed: b.CommissionFixed,
		Slippage:        b.Slippage,
		Margin:          b.Margin,
		TradeOnClose:    b.TradeOnClose,
		Hedging:         b.Hedging,
		ExclusiveOrders: b.ExclusiveOrders,
		FinalizeTrades:  b.FinalizeTrades,
		Seed:            b.Seed,
	}
}

func (c *Config) StatsOptions() stats.Options {
	return stats.Options{BarsPerYear: c.Stats.BarsPerYear, RiskFreeRate: c.Stats.RiskFreeRate}
}

// LoadData reads every data file.
func (c *Config) LoadData() (map[string]*market.Series, error) {
	if len(c.Data.Files) == 0 {
		return nil, fmt.Errorf("no data files configured")
	}
	out := make(map[string]*market.Series, len(c.Data.Files))
	for _, f := range c.Data.Files {
		s, err := market.Load(f.Path, f.Symbol, f.Format)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", f.Symbol, err)
		}
		out[f.Symbol] = s
	}
	return out, nil
}

// OpenJournal opens the configured journal, or returns nil for none.
func (c *Config) OpenJournal() (journal.Journal, error) {
	switch c.Journal.Type {
	case "csv":
		j, err := journal.NewCSV(c.Journal.Dir)
		if err != nil {
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		return j, nil
	case "sqlite":
		j, err := journal.NewSQLite(c.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		return j, nil
	}
	return nil, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	def := sim.DefaultConfig()
	return &Config{
		Broker: BrokerConfig{
			Cash:   def.Cash,
			Margin: def.Margin,
			Seed:   def.Seed,
		},
		Stats: StatsConfig{
			BarsPerYear: stats.DefaultOptions().BarsPerYear,
		},
		Strategy: StrategyConfig{
			Name:   "sma-cross",
			Params: map[string]float64{"fast": 10, "slow": 20},
			Metric: "sharpe",
		},
		Journal: JournalConfig{Type: "none"},
		Log:     LogConfig{Level: "info"},
	}
}
