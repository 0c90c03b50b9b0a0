package strategies

import (
	"errors"
	"math"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/risk"
)

// holding reports whether the symbol already has exposure on side.
func holding(b broker.Broker, symbol string, side broker.Side) bool {
	pos := b.Position(symbol)
	return (side == broker.Long && pos.IsLong()) || (side == broker.Short && pos.IsShort())
}

// flatten queues a full close of any open exposure in symbol. The close
// executes before orders submitted after it on the same bar.
func flatten(b broker.Broker, symbol string) error {
	if !b.Position(symbol).IsOpen() {
		return nil
	}
	_, err := b.ClosePosition(symbol, 1)
	return err
}

// submit sends req and swallows margin rejections: a strategy that cannot
// afford a signal skips it.
func submit(b broker.Broker, req broker.OrderRequest) error {
	_, err := b.Submit(req)
	if errors.Is(err, broker.ErrInsufficientMargin) {
		return nil
	}
	return err
}

// wholeUnits spends fraction of equity at price.
func wholeUnits(equity, fraction, price float64) float64 {
	if price <= 0 || equity <= 0 {
		return 0
	}
	return math.Floor(equity * fraction / price)
}

// bracketed builds a market entry sized so that the stop loses riskPct of
// equity, checked against policy. ok is false when the policy refuses it.
func bracketed(b broker.Broker, p risk.Policy, symbol string, side broker.Side,
	entry, stop, rr, riskPct float64, tag string) (req broker.OrderRequest, ok bool) {

	acct := b.Account()
	tp := risk.TakeProfit(entry, stop, rr)
	size := risk.Calculate(risk.Inputs{
		Equity:     acct.Equity,
		RiskPct:    riskPct,
		EntryPrice: entry,
		StopPrice:  stop,
		MaxUnits:   wholeUnits(acct.Equity, 1, entry),
	})

	// Open trades in symbol are being closed by flatten.
	d := risk.Evaluate(p, risk.TradeIntent{
		Symbol:     symbol,
		Units:      size.Units,
		Entry:      entry,
		Stop:       stop,
		TakeProfit: tp,
	}, acct, 0)
	if !d.Allowed {
		return broker.OrderRequest{}, false
	}

	return broker.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Size:       broker.Units(size.Units),
		StopLoss:   broker.Ptr(stop),
		TakeProfit: broker.Ptr(tp),
		Tag:        tag,
	}, true
}
