package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backcast/backtest"
	"github.com/rustyeddy/backcast/strategies"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a strategy over a parameter grid and rank the results",
	Long: `Sweep runs one backtest per combination of the grid values, in parallel,
and lists the combinations best first by the chosen metric.

Grid values are given as key=v1,v2,... or key=start:stop:step. When the grid
has both fast and slow, combinations with fast >= slow are skipped.

Examples:
  backcast sweep -d SPY=data/spy.csv -s sma-cross -g fast=5:20:5 -g slow=20,40,60
  backcast sweep -c sweep.yaml --metric sqn --workers 4 --top 5`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var (
	swGrid    []string
	swMetric  string
	swWorkers int
	swTop     int
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	addRunFlags(sweepCmd)

	sweepCmd.Flags().StringArrayVarP(&swGrid, "grid", "g", nil, "grid values key=v1,v2 or key=start:stop:step (repeatable)")
	sweepCmd.Flags().StringVarP(&swMetric, "metric", "m", "", "ranking metric ("+strings.Join(backtest.Metrics(), ", ")+")")
	sweepCmd.Flags().IntVarP(&swWorkers, "workers", "w", 0, "concurrent runs (0 = GOMAXPROCS)")
	sweepCmd.Flags().IntVar(&swTop, "top", 10, "rows to print (0 = all)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}

	grid := backtest.Grid(cfg.Strategy.Grid)
	if cmd.Flags().Changed("grid") {
		if grid, err = parseGrid(swGrid); err != nil {
			return err
		}
	}
	if len(grid) == 0 {
		return fmt.Errorf("sweep: no grid given (use --grid or strategy.grid)")
	}
	if cmd.Flags().Changed("metric") {
		cfg.Strategy.Metric = swMetric
	}
	if cmd.Flags().Changed("workers") {
		cfg.Strategy.Workers = swWorkers
	}

	data, err := cfg.LoadData()
	if err != nil {
		return err
	}
	factory, err := strategies.Lookup(cfg.Strategy.Name)
	if err != nil {
		return err
	}

	j, err := cfg.OpenJournal()
	if err != nil {
		return err
	}
	if j != nil {
		defer j.Close()
	}

	opt := backtest.SweepOptions{
		Options: runOptions(cfg, j),
		Workers: cfg.Strategy.Workers,
		Metric:  cfg.Strategy.Metric,
	}
	if _, ok := grid["fast"]; ok {
		if _, ok := grid["slow"]; ok {
			opt.Constraint = func(p strategies.Params) bool { return p["fast"] < p["slow"] }
		}
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt)
	defer stop()

	rs, err := backtest.Sweep(ctx, data, withBase(factory, cfg.Strategy.Params), grid, opt)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	metric := opt.Metric
	if metric == "" {
		metric = "sharpe"
	}
	printSweep(out, rs, metric, swTop)

	if best, ok := backtest.Best(rs); ok {
		fmt.Fprintln(out)
		backtest.PrintResult(out, best.Result)
	}
	return nil
}

// withBase fills parameters the grid does not vary from the configured ones.
func withBase(f strategies.Factory, base map[string]float64) strategies.Factory {
	if len(base) == 0 {
		return f
	}
	return func(p strategies.Params) (strategies.Strategy, error) {
		merged := make(strategies.Params, len(base)+len(p))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range p {
			merged[k] = v
		}
		return f(merged)
	}
}

func printSweep(w io.Writer, rs []backtest.SweepResult, metric string, top int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tParams\t%s\tReturn\tMax DD\tTrades\tRun ID\n", metric)
	for i, r := range rs {
		if top > 0 && i >= top {
			break
		}
		if r.Err != nil {
			fmt.Fprintf(tw, "%d\t%s\t-\t-\t-\t-\t%v\n", i+1, paramString(r.Params), r.Err)
			continue
		}
		s := r.Result.Summary
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			i+1, paramString(r.Params), r.Score, pctString(s.Return.Value, s.Return.Valid),
			pctString(s.MaxDrawdown.Value, s.MaxDrawdown.Valid), s.Trades, r.Result.RunID)
	}
	_ = tw.Flush()
}

func paramString(p strategies.Params) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return strings.Join(parts, " ")
}

func pctString(x float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", x*100)
}
