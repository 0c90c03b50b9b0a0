package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/backcast/backtest"
	"github.com/rustyeddy/backcast/config"
	"github.com/rustyeddy/backcast/journal"
	"github.com/rustyeddy/backcast/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run one backtest and print its statistics",
	Long: `Backtest replays the bar files through the simulated broker with one
strategy and prints the summary statistics.

Flags override the matching config file fields.

Examples:
  backcast backtest -d SPY=data/spy.csv -s sma-cross -p fast=10 -p slow=30
  backcast backtest -c run.yaml --finalize --journal sqlite --journal-path runs.db`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var btOrg bool

func init() {
	rootCmd.AddCommand(backtestCmd)
	addRunFlags(backtestCmd)
	backtestCmd.Flags().BoolVar(&btOrg, "org", false, "also print the run as an org-mode section")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}

	data, err := cfg.LoadData()
	if err != nil {
		return err
	}
	strat, err := strategies.New(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	j, err := cfg.OpenJournal()
	if err != nil {
		return err
	}
	if j != nil {
		defer j.Close()
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt)
	defer stop()

	res, err := backtest.Run(ctx, data, strat, runOptions(cfg, j))
	if err != nil {
		if res.RunID != "" {
			logger.Warn("backtest stopped early",
				zap.String("run_id", res.RunID),
				zap.Int("bars", len(res.Equity)),
				zap.Error(err))
		}
		return fmt.Errorf("backtest: %w", err)
	}

	out := cmd.OutOrStdout()
	backtest.PrintResult(out, res)
	if btOrg {
		fmt.Fprintln(out)
		if err := journal.WriteOrg(out, res.Record()); err != nil {
			return fmt.Errorf("org: %w", err)
		}
	}
	return nil
}

// runOptions maps a validated config onto the runner's options.
func runOptions(cfg *config.Config, j journal.Journal) backtest.Options {
	opt := backtest.DefaultOptions()
	opt.Broker = cfg.BrokerOptions()
	opt.Stats = cfg.StatsOptions()
	opt.Benchmark = cfg.Data.Benchmark
	opt.Params = cfg.Strategy.Params
	opt.Logger = logger
	opt.Journal = j
	return opt
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
