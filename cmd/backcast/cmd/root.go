package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rustyeddy/backcast/config"
)

var rootCmd = &cobra.Command{
	Use:   "backcast",
	Short: "Bar-replay backtester for trading strategies",
	Long: `Backcast replays historical OHLCV bars through a simulated broker and
reports how a strategy would have performed.

It provides tools for:
  - Backtesting a strategy over one or many symbols
  - Sweeping strategy parameters in parallel and ranking the results
  - Journaling trades, equity and run summaries to CSV or SQLite
  - Converting bar files between CSV and Parquet`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogger,
}

var (
	cfgFile  string
	logLevel string

	logger = zap.NewNop()
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides log.level")
}

// loadConfig reads --config, or returns the defaults when none was given.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(cfgFile)
}

func setupLogger(cmd *cobra.Command, args []string) error {
	level := logLevel
	if level == "" && cfgFile != "" {
		if cfg, err := config.LoadFromFile(cfgFile); err == nil {
			level = cfg.Log.Level
		}
	}
	l, err := newLogger(level)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = "warn"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.DisableStacktrace = true
	zc.Sampling = nil
	return zc.Build()
}
