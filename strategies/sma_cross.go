package strategies

import (
	"context"
	"fmt"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/indicators"
	"github.com/rustyeddy/backcast/market"
	"github.com/rustyeddy/backcast/risk"
)

const (
	colFastSMA = "sma_fast"
	colSlowSMA = "sma_slow"
)

// SMACross goes long when the fast SMA of closes crosses above the slow one
// and short on the opposite cross, closing any open exposure first.
//
// With RiskPct zero each entry spends Fraction of equity. Otherwise the
// entry carries a stop StopPct away and a target RR times the risk, sized
// by risk.Calculate and checked against Policy.
type SMACross struct {
	Fast, Slow int

	Fraction float64
	RiskPct  float64
	StopPct  float64
	RR       float64
	Policy   risk.Policy
}

func NewSMACross(p Params) (Strategy, error) {
	s := &SMACross{
		Fast:     p.Int("fast", 10),
		Slow:     p.Int("slow", 20),
		Fraction: p.Get("fraction", 0.95),
		RiskPct:  p.Get("risk_pct", 0),
		StopPct:  p.Get("stop_pct", 0.02),
		RR:       p.Get("rr", 2),
		Policy:   risk.DefaultPolicy(),
	}
	s.Policy.MaxRiskPct = p.Get("max_risk_pct", s.Policy.MaxRiskPct)

	switch {
	case s.Fast <= 0 || s.Slow <= 0:
		return nil, broker.Invalid("fast", "periods must be positive, got %d/%d", s.Fast, s.Slow)
	case s.Fast >= s.Slow:
		return nil, broker.Invalid("fast", "must be shorter than slow (%d >= %d)", s.Fast, s.Slow)
	case s.Fraction <= 0 || s.Fraction > 1:
		return nil, broker.Invalid("fraction", "must be in (0, 1], got %g", s.Fraction)
	case s.RiskPct < 0 || s.RiskPct >= 1:
		return nil, broker.Invalid("risk_pct", "must be in [0, 1), got %g", s.RiskPct)
	case s.RiskPct > 0 && (s.StopPct <= 0 || s.StopPct >= 1):
		return nil, broker.Invalid("stop_pct", "must be in (0, 1), got %g", s.StopPct)
	}
	return s, nil
}

func (s *SMACross) Name() string { return "sma-cross" }

func (s *SMACross) Init(data map[string]*market.Series) error {
	for sym, series := range data {
		closes := series.Closes()
		fast, err := indicators.SMA(closes, s.Fast)
		if err != nil {
			return fmt.Errorf("sma-cross %s: %w", sym, err)
		}
		slow, err := indicators.SMA(closes, s.Slow)
		if err != nil {
			return fmt.Errorf("sma-cross %s: %w", sym, err)
		}
		if err := series.AddColumn(colFastSMA, fast); err != nil {
			return err
		}
		if err := series.AddColumn(colSlowSMA, slow); err != nil {
			return err
		}
	}
	return nil
}

func (s *SMACross) Next(ctx context.Context, b broker.Broker, w market.Window) error {
	fast, slow := lastTwo(w, colFastSMA), lastTwo(w, colSlowSMA)

	switch {
	case indicators.Crossover(fast, slow):
		return s.enter(b, w, broker.Long)
	case indicators.Crossover(slow, fast):
		return s.enter(b, w, broker.Short)
	}
	return nil
}

func (s *SMACross) enter(b broker.Broker, w market.Window, side broker.Side) error {
	sym := w.Symbol()
	if holding(b, sym, side) {
		return nil
	}
	if err := flatten(b, sym); err != nil {
		return fmt.Errorf("sma-cross %s: %w", sym, err)
	}

	entry := w.Last().Close
	req := broker.OrderRequest{
		Symbol: sym,
		Side:   side,
		Size:   broker.Units(wholeUnits(b.Account().Equity, s.Fraction, entry)),
		Tag:    s.Name(),
	}
	if s.RiskPct > 0 {
		stop := entry * (1 - float64(side)*s.StopPct)
		var ok bool
		if req, ok = bracketed(b, s.Policy, sym, side, entry, stop, s.RR, s.RiskPct, s.Name()); !ok {
			return nil
		}
	}
	if req.Size.Value() <= 0 {
		return nil
	}
	return submit(b, req)
}

// lastTwo returns column name one bar ago and now.
func lastTwo(w market.Window, name string) []float64 {
	prev, _ := w.Value(name, 1)
	cur, _ := w.Value(name, 0)
	return []float64{prev, cur}
}
