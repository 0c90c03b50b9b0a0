package journal

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleTrade(runID, tradeID string) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		TradeID:    tradeID,
		Symbol:     "AAPL",
		Side:       "long",
		Units:      123.456,
		EntryPrice: 101.2345678,
		ExitPrice:  103.3456789,
		OpenTime:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		CloseTime:  time.Date(2024, 1, 3, 4, 5, 6, 0, time.UTC),
		RealizedPL: -12.5,
		Commission: 0.75,
		Reason:     "StopLoss",
		Tag:        "breakout",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity','runs')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
	assert.True(t, found["runs"])
}

func TestSQLiteRecordTrade(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	rec := sampleTrade("R1", "T1")
	assert.NoError(t, j.RecordTrade(rec))
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		runID, tradeID, symbol string
		units, entry, exit     float64
		openTime, closeTime    time.Time
		realizedPL             float64
		reason                 string
	)

	err = db.QueryRow(`
        SELECT run_id, trade_id, symbol, units, entry_price, exit_price, open_time, close_time, realized_pl, reason
        FROM trades LIMIT 1`).Scan(
		&runID, &tradeID, &symbol, &units, &entry, &exit, &openTime, &closeTime, &realizedPL, &reason,
	)
	require.NoError(t, err)

	assert.Equal(t, rec.RunID, runID)
	assert.Equal(t, rec.TradeID, tradeID)
	assert.Equal(t, rec.Symbol, symbol)
	assert.InDelta(t, rec.Units, units, 1e-6)
	assert.InDelta(t, rec.EntryPrice, entry, 1e-9)
	assert.InDelta(t, rec.ExitPrice, exit, 1e-9)
	assert.True(t, openTime.Equal(rec.OpenTime))
	assert.True(t, closeTime.Equal(rec.CloseTime))
	assert.InDelta(t, rec.RealizedPL, realizedPL, 1e-6)
	assert.Equal(t, rec.Reason, reason)
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	rec := EquitySnapshot{
		RunID:       "R1",
		Time:        ts,
		Cash:        1000.1,
		Equity:      999.9,
		MarginUsed:  10.5,
		FreeMargin:  989.4,
		DrawdownPct: 0.02,
	}
	require.NoError(t, j.RecordEquity(rec))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R2", Time: ts}))

	got, err := j.ListEquity("R1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Time.Equal(ts))
	assert.InDelta(t, rec.Cash, got[0].Cash, 1e-6)
	assert.InDelta(t, rec.Equity, got[0].Equity, 1e-6)
	assert.InDelta(t, rec.MarginUsed, got[0].MarginUsed, 1e-6)
	assert.InDelta(t, rec.FreeMargin, got[0].FreeMargin, 1e-6)
	assert.InDelta(t, rec.DrawdownPct, got[0].DrawdownPct, 1e-9)
}

func TestSQLiteRunRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	run := RunRecord{
		RunID:        "R1",
		Created:      time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		Strategy:     "sma-cross",
		Params:       map[string]float64{"fast": 10, "slow": 30},
		Symbols:      []string{"AAPL", "MSFT"},
		Start:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Bars:         251,
		StartEquity:  10000,
		EndEquity:    11250,
		ReturnPct:    12.5,
		MaxDDPct:     4.2,
		Sharpe:       math.NaN(),
		WinRate:      0.6,
		ProfitFactor: 1.8,
		Trades:       10,
		Wins:         6,
		Losses:       4,
	}
	require.NoError(t, j.RecordRun(run))

	got, err := j.GetRun("R1")
	require.NoError(t, err)
	assert.Equal(t, run.Strategy, got.Strategy)
	assert.Equal(t, run.Params, got.Params)
	assert.Equal(t, run.Symbols, got.Symbols)
	assert.Equal(t, 251, got.Bars)
	assert.InDelta(t, 12.5, got.ReturnPct, 1e-9)
	assert.True(t, math.IsNaN(got.Sharpe))
	assert.False(t, got.OutOfMoney)

	run.OutOfMoney = true
	require.NoError(t, j.RecordRun(run))
	runs, err := j.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].OutOfMoney)

	_, err = j.GetRun("missing")
	assert.ErrorContains(t, err, "not found")
}
