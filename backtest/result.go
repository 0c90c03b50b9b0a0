package backtest

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/journal"
	"github.com/rustyeddy/backcast/sim"
	"github.com/rustyeddy/backcast/stats"
)

// Result is everything a run produced.
type Result struct {
	RunID    string
	Strategy string
	Params   map[string]float64
	Symbols  []string

	Equity     []broker.EquityPoint
	Trades     []broker.Trade // closed in close order, then open
	Orders     []broker.Order
	Rejections []sim.Rejection

	Summary    stats.Summary
	OutOfMoney bool
}

// Record converts r to the journal's run summary. Percentages are stored
// as percent, undefined metrics as NaN.
func (r Result) Record() journal.RunRecord {
	s := r.Summary
	return journal.RunRecord{
		RunID:        r.RunID,
		Created:      time.Now().UTC(),
		Strategy:     r.Strategy,
		Params:       r.Params,
		Symbols:      r.Symbols,
		Start:        s.Start,
		End:          s.End,
		Bars:         s.Bars,
		StartEquity:  s.EquityStart,
		EndEquity:    s.EquityFinal,
		ReturnPct:    100 * stats.Float(s.Return),
		MaxDDPct:     100 * stats.Float(s.MaxDrawdown),
		Sharpe:       stats.Float(s.Sharpe),
		WinRate:      100 * stats.Float(s.WinRate),
		ProfitFactor: stats.Float(s.ProfitFactor),
		Trades:       s.Trades,
		Wins:         s.Wins,
		Losses:       s.Losses,
		OutOfMoney:   r.OutOfMoney,
	}
}

// ClosedTrades filters Trades to the closed ones.
func (r Result) ClosedTrades() []broker.Trade {
	var out []broker.Trade
	for _, t := range r.Trades {
		if !t.IsOpen {
			out = append(out, t)
		}
	}
	return out
}

// PrintResult writes a header for the run followed by its statistics.
func PrintResult(w io.Writer, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:             %s\n", r.RunID)
	fmt.Fprintf(w, "Strategy:           %s\n", r.Strategy)
	fmt.Fprintf(w, "Symbols:            %s\n", strings.Join(r.Symbols, ", "))
	if len(r.Params) > 0 {
		fmt.Fprintf(w, "Params:             %s\n", formatParams(r.Params))
	}
	if r.OutOfMoney {
		fmt.Fprintln(w, "Out of Money:       yes")
	}
	if n := len(r.Rejections); n > 0 {
		fmt.Fprintf(w, "Rejected Orders:    %d\n", n)
	}
	fmt.Fprintln(w)

	stats.Print(w, r.Summary)
}

func formatParams(p map[string]float64) string {
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
