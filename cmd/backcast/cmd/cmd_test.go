package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backcast/backtest"
	"github.com/rustyeddy/backcast/config"
	"github.com/rustyeddy/backcast/market"
)

func TestParseData(t *testing.T) {
	files, err := parseData([]string{"SPY=data/spy.csv", "data/qqq.parquet", " X = x.csv "})
	require.NoError(t, err)
	assert.Equal(t, []config.DataFile{
		{Symbol: "SPY", Path: "data/spy.csv"},
		{Symbol: "qqq", Path: "data/qqq.parquet"},
		{Symbol: "X", Path: "x.csv"},
	}, files)

	_, err = parseData([]string{"SPY="})
	assert.Error(t, err)
	_, err = parseData([]string{"=x.csv"})
	assert.Error(t, err)
}

func TestParseParams(t *testing.T) {
	p, err := parseParams(map[string]string{"fast": "10", "risk_pct": " 0.01"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"fast": 10, "risk_pct": 0.01}, p)

	_, err = parseParams(map[string]string{"fast": "ten"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "param fast")
}

func TestParseGrid(t *testing.T) {
	g, err := parseGrid([]string{"fast=5:20:5", "slow=20, 40", "k=1"})
	require.NoError(t, err)
	assert.Equal(t, backtest.Grid{
		"fast": {5, 10, 15, 20},
		"slow": {20, 40},
		"k":    {1},
	}, g)

	g, err = parseGrid([]string{"x=0.1:0.3:0.1"})
	require.NoError(t, err)
	assert.Len(t, g["x"], 3)

	for _, bad := range []string{"fast", "=1,2", "fast=", "fast=a,b", "fast=5:1:1", "fast=1:5:0", "fast=1:x:1"} {
		_, err := parseGrid([]string{bad})
		assert.Error(t, err, bad)
	}
}

func writeBars(t *testing.T, path string, closes ...float64) {
	t.Helper()
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:   t0.AddDate(0, 0, i),
			Open:   prev,
			High:   max(prev, c) + 0.5,
			Low:    min(prev, c) - 0.5,
			Close:  c,
			Volume: 1000,
		}
		prev = c
	}
	s, err := market.NewSeries("X", bars)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, market.WriteCSV(f, s))
	require.NoError(t, f.Close())
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	require.NoError(t, err, out.String())
	return out.String()
}

// Each command runs once: cobra keeps flag state between executions.
func TestCommands(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "x.csv")
	writeBars(t, csvPath, 100, 110, 120)
	db := filepath.Join(dir, "runs.db")

	out := execute(t, "version")
	assert.Contains(t, out, "backcast version "+version)
	assert.Contains(t, out, "sma-cross")

	cfgPath := filepath.Join(dir, "bt.yaml")
	out = execute(t, "config", "init", "-o", cfgPath)
	assert.Contains(t, out, "Created default configuration")
	out = execute(t, "config", "validate", "-f", cfgPath)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Strategy: sma-cross fast=10 slow=20")

	pqPath := filepath.Join(dir, "x.parquet")
	out = execute(t, "data", "convert", csvPath, pqPath, "--symbol", "X")
	assert.Contains(t, out, "Wrote 3 bars of X")
	out = execute(t, "data", "info", pqPath)
	assert.Contains(t, out, "Bars:          3")
	assert.Contains(t, out, "Timeframe:     D1")
	assert.Contains(t, out, "Bars per Year: 252")

	s, err := market.LoadParquet(pqPath, "X")
	require.NoError(t, err)
	assert.Equal(t, 120.0, s.Last().Close)

	out = execute(t, "backtest",
		"-d", "X="+pqPath,
		"-s", "buy-and-hold",
		"-p", "units=10",
		"--finalize",
		"--journal", "sqlite", "--journal-path", db,
		"--org")
	assert.Contains(t, out, "Strategy:           buy-and-hold")
	assert.Contains(t, out, "Params:             units=10")
	assert.Contains(t, out, "Final Equity:       10200.00")
	assert.Contains(t, out, ":RETURN_PCT:  2.00")

	m := regexp.MustCompile(`Run ID:\s+(\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	runID := m[1]

	out = execute(t, "journal", "runs", "--db", db)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "buy-and-hold")

	out = execute(t, "journal", "show", runID)
	assert.Contains(t, out, ":RUN_ID:      "+runID)

	out = execute(t, "journal", "trades", runID)
	assert.Contains(t, out, "X")
	assert.Contains(t, out, "200.00")

	out = execute(t, "sweep",
		"-d", "X="+csvPath,
		"-s", "buy-and-hold",
		"-g", "units=5,20,10",
		"-m", "equity_final",
		"-w", "2",
		"--top", "2")
	assert.Contains(t, out, "units=20")
	assert.Contains(t, out, "units=10")
	assert.NotContains(t, out, "units=5 ")
	assert.Contains(t, out, "Final Equity:       10400.00")
}
