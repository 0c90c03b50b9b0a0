package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const tradeColumns = `run_id, trade_id, symbol, side, units, entry_price, exit_price,
	open_time, close_time, realized_pl, commission, reason, tag`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.RunID,
		&rec.TradeID,
		&rec.Symbol,
		&rec.Side,
		&rec.Units,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPL,
		&rec.Commission,
		&rec.Reason,
		&rec.Tag,
	)
	return rec, err
}

// GetTrade returns a single trade record of a run.
func (j *SQLite) GetTrade(runID, tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ? AND trade_id = ?`, runID, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return TradeRecord{}, fmt.Errorf("trade %q not found in run %q", tradeID, runID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns the trades of a run in close order.
func (j *SQLite) ListTrades(runID string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY close_time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ListTradesClosedBetween returns trades of any run whose close_time is
// within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, rowid ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]TradeRecord, error) {
	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns the equity curve of a run.
func (j *SQLite) ListEquity(runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, cash, equity, margin_used, free_margin, drawdown_pct
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Cash, &e.Equity, &e.MarginUsed, &e.FreeMargin, &e.DrawdownPct); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const runColumns = `run_id, created, strategy, params, symbols, start_time, end_time, bars,
	start_equity, end_equity, return_pct, max_dd_pct, sharpe, win_rate, profit_factor,
	trades, wins, losses, out_of_money`

func scanRun(s scanner) (RunRecord, error) {
	var (
		r                                    RunRecord
		params, symbols                      string
		ret, dd, sharpe, winRate, profitFact sql.NullFloat64
	)
	err := s.Scan(
		&r.RunID, &r.Created, &r.Strategy, &params, &symbols, &r.Start, &r.End, &r.Bars,
		&r.StartEquity, &r.EndEquity, &ret, &dd, &sharpe, &winRate, &profitFact,
		&r.Trades, &r.Wins, &r.Losses, &r.OutOfMoney,
	)
	if err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return RunRecord{}, fmt.Errorf("run %s params: %w", r.RunID, err)
	}
	if symbols != "" {
		r.Symbols = strings.Split(symbols, ",")
	}
	r.ReturnPct = fromNull(ret)
	r.MaxDDPct = fromNull(dd)
	r.Sharpe = fromNull(sharpe)
	r.WinRate = fromNull(winRate)
	r.ProfitFactor = fromNull(profitFact)
	return r, nil
}

// GetRun loads the summary row of a run.
func (j *SQLite) GetRun(runID string) (RunRecord, error) {
	row := j.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return RunRecord{}, fmt.Errorf("run %q not found", runID)
		}
		return RunRecord{}, err
	}
	return r, nil
}

// ListRuns returns every recorded run, newest first.
func (j *SQLite) ListRuns() ([]RunRecord, error) {
	rows, err := j.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created DESC, run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
