package sim

import (
	"github.com/rustyeddy/backcast/broker"
)

// TradeLog records every trade the ledger creates. Closed trades are kept
// in close order; open ones are live pointers owned by the ledger.
type TradeLog struct {
	all    []*broker.Trade
	closed []*broker.Trade

	onClose func(broker.Trade)
}

func NewTradeLog() *TradeLog { return &TradeLog{} }

// OnClose registers a hook called with each trade as it closes.
func (l *TradeLog) OnClose(fn func(broker.Trade)) { l.onClose = fn }

func (l *TradeLog) opened(t *broker.Trade) { l.all = append(l.all, t) }

func (l *TradeLog) closedTrade(t *broker.Trade) {
	l.closed = append(l.closed, t)
	if l.onClose != nil {
		l.onClose(*t)
	}
}

// Closed returns closed trades in the order they closed.
func (l *TradeLog) Closed() []broker.Trade {
	out := make([]broker.Trade, len(l.closed))
	for i, t := range l.closed {
		out[i] = *t
	}
	return out
}

// Open returns the trades still open, oldest first.
func (l *TradeLog) Open() []broker.Trade {
	var out []broker.Trade
	for _, t := range l.all {
		if t.IsOpen {
			out = append(out, *t)
		}
	}
	return out
}

// All is Closed followed by Open.
func (l *TradeLog) All() []broker.Trade {
	return append(l.Closed(), l.Open()...)
}

func (l *TradeLog) Len() int { return len(l.all) }
