package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/internal/id"
	"github.com/rustyeddy/backcast/journal"
	"github.com/rustyeddy/backcast/market"
	"github.com/rustyeddy/backcast/sim"
	"github.com/rustyeddy/backcast/stats"
	"github.com/rustyeddy/backcast/strategies"
)

// Options controls one run.
type Options struct {
	Broker sim.Config
	Stats  stats.Options

	// Benchmark names the symbol whose closes give the buy & hold return.
	// Empty uses the only symbol of a single-symbol run.
	Benchmark string

	// Params are recorded with the run; the strategy is already built.
	Params map[string]float64

	Logger  *zap.Logger
	Journal journal.Journal
	RunID   string

	// Extra engine options such as cost models.
	EngineOptions []sim.Option
}

// DefaultOptions is the default broker and stats configuration.
func DefaultOptions() Options {
	return Options{
		Broker: sim.DefaultConfig(),
		Stats:  stats.DefaultOptions(),
	}
}

// Runner drives an engine over a data set with a strategy.
type Runner struct {
	Data     map[string]*market.Series
	Strategy strategies.Strategy
	Options  Options
}

// Run executes the backtest loop:
//  1. engine.Next() resolves orders against the next instant
//  2. strategy.Next(ctx, engine, window) for every symbol with a bar, once
//     its indicator columns are warm
//
// The context is checked between instants. When the run stops early, on
// cancellation, a strategy error or bad data, the partial Result is
// returned with the error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Strategy == nil {
		return Result{}, fmt.Errorf("backtest: Strategy is required")
	}
	if len(r.Data) == 0 {
		return Result{}, broker.Invalid("data", "at least one series is required")
	}

	data := make(map[string]*market.Series, len(r.Data))
	for sym, s := range r.Data {
		if s == nil {
			return Result{}, broker.Invalid("data", "series %q is nil", sym)
		}
		if err := s.Validate(); err != nil {
			return Result{}, err
		}
		data[sym] = s.Clone()
	}

	opt := r.Options
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	runID := opt.RunID
	if runID == "" {
		runID = id.New()
	}
	log = log.With(zap.String("run", runID), zap.String("strategy", r.Strategy.Name()))

	if err := r.Strategy.Init(data); err != nil {
		return Result{}, fmt.Errorf("init %s: %w", r.Strategy.Name(), err)
	}

	engOpts := []sim.Option{sim.WithLogger(log)}
	if opt.Journal != nil {
		engOpts = append(engOpts, sim.WithJournal(opt.Journal, runID))
	}
	engOpts = append(engOpts, opt.EngineOptions...)

	eng, err := sim.NewEngine(opt.Broker, data, engOpts...)
	if err != nil {
		return Result{}, err
	}

	runErr := r.loop(ctx, eng)
	if err := eng.Finish(); err != nil && runErr == nil {
		runErr = err
	}

	res := r.result(runID, eng, data)
	if runErr != nil {
		log.Warn("backtest stopped", zap.Error(runErr))
		return res, runErr
	}

	if opt.Journal != nil {
		if err := opt.Journal.RecordRun(res.Record()); err != nil {
			return res, fmt.Errorf("record run %s: %w", runID, err)
		}
	}

	log.Info("backtest finished",
		zap.Int("bars", res.Summary.Bars),
		zap.Int("trades", res.Summary.Trades),
		zap.Float64("equity", res.Summary.EquityFinal),
		zap.String("return", res.Summary.Return.String()),
	)
	return res, nil
}

func (r *Runner) loop(ctx context.Context, eng *sim.Engine) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := eng.Next()
		if err != nil {
			return err
		}
		if !ok || eng.OutOfMoney() {
			return nil
		}
		for _, sym := range eng.Active() {
			w, ok := eng.Window(sym)
			if !ok || !w.Warm() {
				continue
			}
			if err := r.Strategy.Next(ctx, eng, w); err != nil {
				return fmt.Errorf("%s on %s at %s: %w",
					r.Strategy.Name(), sym, eng.Now().Format(time.RFC3339), err)
			}
		}
	}
}

func (r *Runner) result(runID string, eng *sim.Engine, data map[string]*market.Series) Result {
	opt := r.Options
	so := opt.Stats
	if so.BarsPerYear == 0 {
		so.BarsPerYear = stats.DefaultOptions().BarsPerYear
	}
	if bench := benchmark(opt.Benchmark, eng.Symbols(), data); bench != nil {
		so.Benchmark = bench.Closes()
	}

	trades := eng.TradeLog().All()
	equity := eng.Equity()
	return Result{
		RunID:      runID,
		Strategy:   r.Strategy.Name(),
		Params:     opt.Params,
		Symbols:    eng.Symbols(),
		Equity:     equity,
		Trades:     trades,
		Orders:     eng.OrderHistory(),
		Rejections: eng.Rejections(),
		Summary:    stats.Compute(equity, trades, so),
		OutOfMoney: eng.OutOfMoney(),
	}
}

func benchmark(name string, symbols []string, data map[string]*market.Series) *market.Series {
	if name == "" && len(symbols) == 1 {
		name = symbols[0]
	}
	return data[name]
}

// Run is shorthand for a Runner with the given fields.
func Run(ctx context.Context, data map[string]*market.Series, strat strategies.Strategy, opt Options) (Result, error) {
	r := &Runner{Data: data, Strategy: strat, Options: opt}
	return r.Run(ctx)
}

// IsDataError reports whether err stopped a run because of bad input data.
func IsDataError(err error) bool {
	return errors.Is(err, broker.ErrDataIntegrity) || errors.Is(err, broker.ErrValidation)
}
