package backtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/market"
	"github.com/rustyeddy/backcast/stats"
	"github.com/rustyeddy/backcast/strategies"
)

// Grid maps parameter names to the values to try.
type Grid map[string][]float64

// Combinations expands the grid into every parameter set, keys in sorted
// order with the last key varying fastest. An empty grid yields one empty
// set.
func (g Grid) Combinations() []strategies.Params {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []strategies.Params{{}}
	for _, k := range keys {
		var next []strategies.Params
		for _, base := range out {
			for _, v := range g[k] {
				p := make(strategies.Params, len(base)+1)
				for bk, bv := range base {
					p[bk] = bv
				}
				p[k] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

// SweepOptions configures a parameter sweep. The embedded Options apply to
// every run; RunID and Params are set per run.
type SweepOptions struct {
	Options

	// Concurrent runs; zero uses GOMAXPROCS.
	Workers int

	// Ranking metric, see Metrics. Empty means "sharpe".
	Metric string

	// Constraint, when set, skips parameter sets it rejects.
	Constraint func(strategies.Params) bool
}

// SweepResult is one parameter set. Err is set, and Result empty, when the
// factory rejected the parameters.
type SweepResult struct {
	Params strategies.Params
	Result Result
	Score  stats.Value[float64]
	Err    error
}

var metrics = map[string]func(stats.Summary) stats.Value[float64]{
	"return":        func(s stats.Summary) stats.Value[float64] { return s.Return },
	"annual_return": func(s stats.Summary) stats.Value[float64] { return s.AnnualReturn },
	"cagr":          func(s stats.Summary) stats.Value[float64] { return s.CAGR },
	"sharpe":        func(s stats.Summary) stats.Value[float64] { return s.Sharpe },
	"sortino":       func(s stats.Summary) stats.Value[float64] { return s.Sortino },
	"calmar":        func(s stats.Summary) stats.Value[float64] { return s.Calmar },
	"win_rate":      func(s stats.Summary) stats.Value[float64] { return s.WinRate },
	"profit_factor": func(s stats.Summary) stats.Value[float64] { return s.ProfitFactor },
	"expectancy":    func(s stats.Summary) stats.Value[float64] { return s.Expectancy },
	"sqn":           func(s stats.Summary) stats.Value[float64] { return s.SQN },
	"equity_final":  func(s stats.Summary) stats.Value[float64] { return stats.Of(s.EquityFinal) },

	// Smaller drawdowns rank higher.
	"max_drawdown": func(s stats.Summary) stats.Value[float64] {
		if !s.MaxDrawdown.Valid {
			return s.MaxDrawdown
		}
		return stats.Of(-s.MaxDrawdown.Value)
	},
}

// Metrics lists the names Sweep can rank by.
func Metrics() []string {
	out := make([]string, 0, len(metrics))
	for k := range metrics {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sweep runs the strategy built by factory once per grid combination,
// concurrently, and returns the results best first. Combinations with an
// undefined score rank after every defined one; ties keep grid order.
// Any run error cancels the remaining runs and is returned.
func Sweep(ctx context.Context, data map[string]*market.Series, factory strategies.Factory,
	grid Grid, opt SweepOptions) ([]SweepResult, error) {

	if factory == nil {
		return nil, fmt.Errorf("sweep: factory is required")
	}
	name := opt.Metric
	if name == "" {
		name = "sharpe"
	}
	score, ok := metrics[name]
	if !ok {
		return nil, broker.Invalid("metric", "unknown metric %q", name)
	}

	var combos []strategies.Params
	for _, p := range grid.Combinations() {
		if opt.Constraint == nil || opt.Constraint(p) {
			combos = append(combos, p)
		}
	}
	if len(combos) == 0 {
		return nil, broker.Invalid("grid", "no parameter combinations to run")
	}

	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("sweep started",
		zap.Int("runs", len(combos)),
		zap.Int("workers", workers),
		zap.String("metric", name))

	results := make([]SweepResult, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, p := range combos {
		i, p := i, p
		g.Go(func() error {
			strat, err := factory(p)
			if err != nil {
				if errors.Is(err, broker.ErrValidation) {
					results[i] = SweepResult{Params: p, Err: err}
					return nil
				}
				return err
			}

			ro := opt.Options
			ro.RunID = ""
			ro.Params = p
			ro.Logger = log.With(zap.Int("combo", i))

			res, err := Run(gctx, data, strat, ro)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", formatParams(p), err)
			}
			results[i] = SweepResult{Params: p, Result: res, Score: score(res.Summary)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rank(results)
	return results, nil
}

func rank(rs []SweepResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Score.Valid != b.Score.Valid {
			return a.Score.Valid
		}
		return a.Score.Valid && a.Score.Value > b.Score.Value
	})
}

// Best returns the top ranked result that ran.
func Best(rs []SweepResult) (SweepResult, bool) {
	for _, r := range rs {
		if r.Err == nil {
			return r, true
		}
	}
	return SweepResult{}, false
}
