package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; concurrent sweep runs share the journal.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, trade_id, symbol, side, units, entry_price, exit_price, open_time, close_time,
		 realized_pl, commission, reason, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TradeID, t.Symbol, t.Side, t.Units, t.EntryPrice, t.ExitPrice,
		t.OpenTime, t.CloseTime, t.RealizedPL, t.Commission, t.Reason, t.Tag,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, cash, equity, margin_used, free_margin, drawdown_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Cash, e.Equity, e.MarginUsed, e.FreeMargin, e.DrawdownPct,
	)
	return err
}

// RecordRun inserts or replaces the summary row of a run.
func (j *SQLite) RecordRun(r RunRecord) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	_, err = j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, created, strategy, params, symbols, start_time, end_time, bars,
		 start_equity, end_equity, return_pct, max_dd_pct, sharpe, win_rate, profit_factor,
		 trades, wins, losses, out_of_money)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Strategy, string(params), strings.Join(r.Symbols, ","),
		r.Start, r.End, r.Bars, r.StartEquity, r.EndEquity,
		nullable(r.ReturnPct), nullable(r.MaxDDPct), nullable(r.Sharpe),
		nullable(r.WinRate), nullable(r.ProfitFactor),
		r.Trades, r.Wins, r.Losses, r.OutOfMoney,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// sqlite has no NaN; undefined metrics are stored as NULL.
func nullable(x float64) sql.NullFloat64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: x, Valid: true}
}

func fromNull(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}
