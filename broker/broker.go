package broker

import (
	"time"
)

// Broker is the surface a strategy trades through. The simulation engine
// implements it; strategies never touch engine state directly.
type Broker interface {
	Account() Account
	Now() time.Time

	Submit(req OrderRequest) (Order, error)
	Cancel(orderID string) bool
	Orders(symbol string) []Order

	Position(symbol string) Position
	Positions(symbol string) []Position
	Trades(symbol string) []Trade

	CloseTrade(tradeID string, portion float64) error
	ClosePosition(symbol string, portion float64) ([]Trade, error)

	SetStopLoss(tradeID string, price *float64) error
	SetTakeProfit(tradeID string, price *float64) error
}

// Account is a read-only snapshot of the run's account state.
type Account struct {
	Cash       float64
	Equity     float64
	PeakEquity float64
	MarginUsed float64
}

func (a Account) FreeMargin() float64 { return a.Equity - a.MarginUsed }

// EquityPoint is the account valued at the close of one instant.
type EquityPoint struct {
	Time        time.Time
	Cash        float64
	Equity      float64
	MarginUsed  float64
	DrawdownPct float64 // 0..1 below the running peak
}

// Position aggregates open trades for one symbol, or one symbol and side
// when hedging is enabled. Size is signed.
type Position struct {
	Symbol        string
	Side          Side
	Size          float64
	AvgEntryPrice float64

	// Bracket of the most recently opened trade that carries one.
	StopLoss   *float64
	TakeProfit *float64
}

func (p Position) IsOpen() bool  { return p.Size != 0 }
func (p Position) IsLong() bool  { return p.Size > 0 }
func (p Position) IsShort() bool { return p.Size < 0 }

// Trade is an open or closed exposure created by a fill.
type Trade struct {
	ID     string
	Symbol string
	Side   Side
	Units  float64 // always positive; Size() is signed

	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64

	StopLoss   *float64
	TakeProfit *float64

	// Realized, net of both commissions. Zero while open.
	PL         float64
	PLPct      float64
	Commission float64

	IsOpen  bool
	Reason  string
	Tag     string
	OrderID string // order that opened the exposure
}

func (t Trade) Size() float64 { return float64(t.Side) * t.Units }

// Duration is the holding time of a closed trade, zero while open.
func (t Trade) Duration() time.Duration {
	if t.IsOpen || t.ExitTime.IsZero() {
		return 0
	}
	return t.ExitTime.Sub(t.EntryTime)
}

// UnrealizedPL values the trade at mark, before exit costs.
func (t Trade) UnrealizedPL(mark float64) float64 {
	return t.Size() * (mark - t.EntryPrice)
}

// Close reasons recorded on trades.
const (
	ReasonClose       = "Close"
	ReasonNetted      = "Netted"
	ReasonStopLoss    = "StopLoss"
	ReasonTakeProfit  = "TakeProfit"
	ReasonExclusive   = "Exclusive"
	ReasonFinalize    = "Finalize"
	ReasonLiquidation = "Liquidation"
)
