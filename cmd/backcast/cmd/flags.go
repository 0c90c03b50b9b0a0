package cmd

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backcast/backtest"
	"github.com/rustyeddy/backcast/config"
	"github.com/rustyeddy/backcast/market"
)

// runFlags are shared by backtest and sweep. Each one overrides its config
// field only when set on the command line.
var runFlags struct {
	data        []string
	benchmark   string
	strategy    string
	params      map[string]string
	cash        float64
	commission  float64
	spread      float64
	margin      float64
	finalize    bool
	exclusive   bool
	hedging     bool
	onClose     bool
	barsPerYear float64
	timeframe   string
	journal     string
	journalPath string
}

func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringArrayVarP(&runFlags.data, "data", "d", nil, "bar file as SYMBOL=path or path (repeatable; .csv or .parquet)")
	f.StringVar(&runFlags.benchmark, "benchmark", "", "symbol used for the buy & hold return")
	f.StringVarP(&runFlags.strategy, "strategy", "s", "", "strategy name (see 'backcast version')")
	f.StringToStringVarP(&runFlags.params, "param", "p", nil, "strategy parameter key=value (repeatable)")
	f.Float64Var(&runFlags.cash, "cash", 0, "starting cash")
	f.Float64Var(&runFlags.commission, "commission", 0, "commission rate per fill (0.001 = 0.1%)")
	f.Float64Var(&runFlags.spread, "spread", 0, "relative bid-ask spread applied to entries")
	f.Float64Var(&runFlags.margin, "margin", 0, "margin ratio, 1 for no leverage")
	f.BoolVar(&runFlags.finalize, "finalize", false, "close open trades at the last bar")
	f.BoolVar(&runFlags.exclusive, "exclusive", false, "one position and one pending entry per symbol")
	f.BoolVar(&runFlags.hedging, "hedging", false, "allow long and short trades on the same symbol")
	f.BoolVar(&runFlags.onClose, "trade-on-close", false, "fill market orders at the signal bar's close")
	f.Float64Var(&runFlags.barsPerYear, "bars-per-year", 0, "bars per year for annualised stats")
	f.StringVar(&runFlags.timeframe, "timeframe", "", "bar timeframe (M5, H1, D1, ...) to derive --bars-per-year from")
	f.StringVar(&runFlags.journal, "journal", "", "journal type (none, csv, sqlite)")
	f.StringVar(&runFlags.journalPath, "journal-path", "", "journal directory (csv) or database file (sqlite)")
}

// runConfig loads the config and applies the flags that were set.
func runConfig(c *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	f := c.Flags()

	if f.Changed("data") {
		files, err := parseData(runFlags.data)
		if err != nil {
			return nil, err
		}
		cfg.Data.Files = files
	}
	if f.Changed("benchmark") {
		cfg.Data.Benchmark = runFlags.benchmark
	}
	if f.Changed("strategy") && !strings.EqualFold(runFlags.strategy, cfg.Strategy.Name) {
		cfg.Strategy.Name = runFlags.strategy
		cfg.Strategy.Params = nil
	}
	if f.Changed("param") {
		p, err := parseParams(runFlags.params)
		if err != nil {
			return nil, err
		}
		if cfg.Strategy.Params == nil {
			cfg.Strategy.Params = make(map[string]float64, len(p))
		}
		for k, v := range p {
			cfg.Strategy.Params[k] = v
		}
	}

	b := &cfg.Broker
	setFloat(c, "cash", &b.Cash, runFlags.cash)
	setFloat(c, "commission", &b.Commission, runFlags.commission)
	setFloat(c, "spread", &b.Spread, runFlags.spread)
	setFloat(c, "margin", &b.Margin, runFlags.margin)
	if f.Changed("timeframe") {
		d, err := market.ParseTimeframe(runFlags.timeframe)
		if err != nil {
			return nil, err
		}
		cfg.Stats.BarsPerYear = market.BarsPerYear(d)
	}
	setFloat(c, "bars-per-year", &cfg.Stats.BarsPerYear, runFlags.barsPerYear)
	setBool(c, "finalize", &b.FinalizeTrades, runFlags.finalize)
	setBool(c, "exclusive", &b.ExclusiveOrders, runFlags.exclusive)
	setBool(c, "hedging", &b.Hedging, runFlags.hedging)
	setBool(c, "trade-on-close", &b.TradeOnClose, runFlags.onClose)

	if f.Changed("journal") {
		cfg.Journal.Type = runFlags.journal
	}
	if f.Changed("journal-path") {
		cfg.Journal.Dir = runFlags.journalPath
		cfg.Journal.DBPath = runFlags.journalPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setFloat(c *cobra.Command, name string, dst *float64, v float64) {
	if c.Flags().Changed(name) {
		*dst = v
	}
}

func setBool(c *cobra.Command, name string, dst *bool, v bool) {
	if c.Flags().Changed(name) {
		*dst = v
	}
}

// parseData turns SYMBOL=path entries into data files. A bare path takes
// its symbol from the file name.
func parseData(items []string) ([]config.DataFile, error) {
	out := make([]config.DataFile, 0, len(items))
	for _, item := range items {
		sym, path, ok := strings.Cut(item, "=")
		if !ok {
			path = item
			sym = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		sym, path = strings.TrimSpace(sym), strings.TrimSpace(path)
		if sym == "" || path == "" {
			return nil, fmt.Errorf("bad --data %q, want SYMBOL=path", item)
		}
		out = append(out, config.DataFile{Symbol: sym, Path: path})
	}
	return out, nil
}

func parseParams(in map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		out[k] = x
	}
	return out, nil
}

// parseGrid reads key=v1,v2,... or key=start:stop:step (inclusive).
func parseGrid(items []string) (backtest.Grid, error) {
	g := make(backtest.Grid, len(items))
	for _, item := range items {
		key, vals, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || vals == "" {
			return nil, fmt.Errorf("bad --grid %q, want key=v1,v2 or key=start:stop:step", item)
		}

		if parts := strings.Split(vals, ":"); len(parts) == 3 {
			var r [3]float64
			for i, p := range parts {
				x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					return nil, fmt.Errorf("grid %s: %w", key, err)
				}
				r[i] = x
			}
			start, stop, step := r[0], r[1], r[2]
			if step <= 0 || stop < start {
				return nil, fmt.Errorf("grid %s: bad range %s", key, vals)
			}
			n := int(math.Floor((stop-start)/step+1e-9)) + 1
			for i := 0; i < n; i++ {
				g[key] = append(g[key], start+float64(i)*step)
			}
			continue
		}

		for _, p := range strings.Split(vals, ",") {
			x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("grid %s: %w", key, err)
			}
			g[key] = append(g[key], x)
		}
	}
	return g, nil
}
