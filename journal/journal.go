// journal/journal.go
package journal

import (
	"sync"
	"time"
)

// TradeRecord is a closed trade as persisted by a journal.
type TradeRecord struct {
	RunID      string
	TradeID    string
	Symbol     string
	Side       string
	Units      float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Commission float64
	Reason     string
	Tag        string
}

// EquitySnapshot is one point of the equity curve.
type EquitySnapshot struct {
	RunID       string
	Time        time.Time
	Cash        float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	DrawdownPct float64
}

// RunRecord summarises one backtest run. Metrics that could not be computed
// are stored as NaN and come back as NaN.
type RunRecord struct {
	RunID    string
	Created  time.Time
	Strategy string
	Params   map[string]float64
	Symbols  []string

	Start time.Time
	End   time.Time
	Bars  int

	StartEquity float64
	EndEquity   float64

	ReturnPct    float64
	MaxDDPct     float64
	Sharpe       float64
	WinRate      float64
	ProfitFactor float64

	Trades     int
	Wins       int
	Losses     int
	OutOfMoney bool
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordRun(RunRecord) error
	Close() error
}

// Memory keeps everything in process. It is safe for concurrent use so a
// parameter sweep can share one.
type Memory struct {
	mu     sync.Mutex
	trades []TradeRecord
	equity []EquitySnapshot
	runs   []RunRecord
	closed bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordTrade(rec TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, rec)
	return nil
}

func (m *Memory) RecordEquity(rec EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, rec)
	return nil
}

func (m *Memory) RecordRun(rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Trades returns the trades recorded for runID, or all of them when runID
// is empty.
func (m *Memory) Trades(runID string) []TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TradeRecord
	for _, t := range m.trades {
		if runID == "" || t.RunID == runID {
			out = append(out, t)
		}
	}
	return out
}

func (m *Memory) Equity(runID string) []EquitySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EquitySnapshot
	for _, e := range m.equity {
		if runID == "" || e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) Runs() []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunRecord(nil), m.runs...)
}

func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
