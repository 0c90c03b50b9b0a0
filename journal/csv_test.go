package journal

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(dir)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, tradeHeader, readCSV(t, filepath.Join(dir, "trades.csv"))[0])
	assert.Equal(t, equityHeader, readCSV(t, filepath.Join(dir, "equity.csv"))[0])
	assert.Equal(t, runHeader, readCSV(t, filepath.Join(dir, "runs.csv"))[0])
}

func TestCSVJournalRecordTrade(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(dir)
	require.NoError(t, err)

	rec := sampleTrade("R1", "T1")
	require.NoError(t, j.RecordTrade(rec))
	require.NoError(t, j.Close())

	rows := readCSV(t, filepath.Join(dir, "trades.csv"))
	require.Len(t, rows, 2)

	want := []string{
		"R1",
		"T1",
		"AAPL",
		"long",
		"123.456000",
		"101.234568",
		"103.345679",
		rec.OpenTime.Format(time.RFC3339),
		rec.CloseTime.Format(time.RFC3339),
		"-12.500000",
		"0.750000",
		"StopLoss",
		"breakout",
	}
	assert.Equal(t, want, rows[1])
}

func TestCSVJournalRecordEquity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(dir)
	require.NoError(t, err)

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		RunID:       "R1",
		Time:        ts,
		Cash:        1000.1,
		Equity:      999.9,
		MarginUsed:  10.5,
		FreeMargin:  989.4,
		DrawdownPct: 0.25,
	}))
	require.NoError(t, j.Close())

	rows := readCSV(t, filepath.Join(dir, "equity.csv"))
	require.Len(t, rows, 2)
	want := []string{
		"R1",
		ts.Format(time.RFC3339),
		"1000.100000",
		"999.900000",
		"10.500000",
		"989.400000",
		"0.250000",
	}
	assert.Equal(t, want, rows[1])
}

func TestCSVJournalRecordRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(dir)
	require.NoError(t, err)

	require.NoError(t, j.RecordRun(RunRecord{
		RunID:    "R1",
		Strategy: "sma-cross",
		Params:   map[string]float64{"slow": 30, "fast": 10},
		Symbols:  []string{"AAPL"},
		Sharpe:   math.NaN(),
		Trades:   3,
	}))
	require.NoError(t, j.Close())

	rows := readCSV(t, filepath.Join(dir, "runs.csv"))
	require.Len(t, rows, 2)
	row := rows[1]
	assert.Equal(t, "sma-cross", row[2])
	assert.Equal(t, "fast=10 slow=30", row[3])
	assert.Equal(t, "", row[12], "undefined sharpe is left empty")
	assert.Equal(t, "3", row[15])
}
