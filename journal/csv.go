// journal/csv.go
package journal

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	tradeHeader  = []string{"run_id", "trade_id", "symbol", "side", "units", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "commission", "reason", "tag"}
	equityHeader = []string{"run_id", "time", "cash", "equity", "margin_used", "free_margin", "drawdown_pct"}
	runHeader    = []string{"run_id", "created", "strategy", "params", "symbols", "start", "end", "bars", "start_equity", "end_equity", "return_pct", "max_dd_pct", "sharpe", "win_rate", "profit_factor", "trades", "wins", "losses", "out_of_money"}
)

// CSVJournal writes trades.csv, equity.csv and runs.csv into one directory.
type CSVJournal struct {
	mu     sync.Mutex
	trades *csv.Writer
	equity *csv.Writer
	runs   *csv.Writer
	files  []*os.File
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	j := &CSVJournal{}
	open := func(name string, header []string) (*csv.Writer, error) {
		fh, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, fh)
		w := csv.NewWriter(fh)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.trades, err = open("trades.csv", tradeHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.equity, err = open("equity.csv", equityHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.runs, err = open("runs.csv", runHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return write(j.trades, []string{
		t.RunID,
		t.TradeID,
		t.Symbol,
		t.Side,
		f(t.Units),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPL),
		f(t.Commission),
		t.Reason,
		t.Tag,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return write(j.equity, []string{
		e.RunID,
		e.Time.Format(time.RFC3339),
		f(e.Cash),
		f(e.Equity),
		f(e.MarginUsed),
		f(e.FreeMargin),
		f(e.DrawdownPct),
	})
}

func (j *CSVJournal) RecordRun(r RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return write(j.runs, []string{
		r.RunID,
		r.Created.Format(time.RFC3339),
		r.Strategy,
		params(r.Params),
		strings.Join(r.Symbols, " "),
		r.Start.Format(time.RFC3339),
		r.End.Format(time.RFC3339),
		strconv.Itoa(r.Bars),
		f(r.StartEquity),
		f(r.EndEquity),
		f(r.ReturnPct),
		f(r.MaxDDPct),
		f(r.Sharpe),
		f(r.WinRate),
		f(r.ProfitFactor),
		strconv.Itoa(r.Trades),
		strconv.Itoa(r.Wins),
		strconv.Itoa(r.Losses),
		strconv.FormatBool(r.OutOfMoney),
	})
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, w := range []*csv.Writer{j.trades, j.equity, j.runs} {
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	return j.closeFiles()
}

func (j *CSVJournal) closeFiles() error {
	var first error
	for _, fh := range j.files {
		if err := fh.Close(); err != nil && first == nil {
			first = err
		}
	}
	j.files = nil
	return first
}

func write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// params renders k=v pairs in key order.
func params(p map[string]float64) string {
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

// f prints six decimals; undefined values are left empty.
func f(x float64) string {
	if math.IsNaN(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'f', 6, 64)
}
