package sim

import (
	"go.uber.org/zap"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/journal"
)

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithJournal records closed trades and the equity curve under runID.
func WithJournal(j journal.Journal, runID string) Option {
	return func(e *Engine) {
		e.journal = j
		e.runID = runID
	}
}

// WithSpreadModel, WithSlippageModel and WithCommissionModel replace the
// models built from the Config rates.
func WithSpreadModel(m SpreadModel) Option {
	return func(e *Engine) { e.costs.Spread = m }
}

func WithSlippageModel(m SlippageModel) Option {
	return func(e *Engine) { e.costs.Slippage = m }
}

func WithCommissionModel(m CommissionModel) Option {
	return func(e *Engine) { e.costs.Commission = m }
}

// TradeClosedListener is notified after each trade (or trade part) closes.
type TradeClosedListener interface {
	OnTradeClosed(t broker.Trade)
}

func WithTradeClosedListener(l TradeClosedListener) Option {
	return func(e *Engine) { e.listener = l }
}
