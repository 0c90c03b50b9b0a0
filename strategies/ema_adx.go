package strategies

import (
	"context"
	"fmt"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/indicators"
	"github.com/rustyeddy/backcast/market"
	"github.com/rustyeddy/backcast/risk"
)

// EMAADX trades fast/slow EMA crosses of the close, but only while ADX says
// the market is trending. Stops sit ATRMult average true ranges from the
// entry and targets RR times the risk. Indicators are streamed bar by bar,
// so the series carries no extra columns.
type EMAADX struct {
	FastPeriod int
	SlowPeriod int
	ADXPeriod  int
	ATRPeriod  int

	MinADX  float64
	ATRMult float64
	RR      float64
	RiskPct float64
	Policy  risk.Policy

	state map[string]*emaADXState
}

type emaADXState struct {
	fast, slow *indicators.ExponentialMA
	adx        *indicators.ADX
	atr        *indicators.AverageTR

	lastDiff     float64
	haveLastDiff bool
}

func NewEMAADX(p Params) (Strategy, error) {
	s := &EMAADX{
		FastPeriod: p.Int("fast", 10),
		SlowPeriod: p.Int("slow", 30),
		ADXPeriod:  p.Int("adx", 14),
		ATRPeriod:  p.Int("atr", 14),
		MinADX:     p.Get("min_adx", 20),
		ATRMult:    p.Get("atr_mult", 2),
		RR:         p.Get("rr", 2),
		RiskPct:    p.Get("risk_pct", 0.01),
		Policy:     risk.DefaultPolicy(),
	}
	s.Policy.MaxRiskPct = p.Get("max_risk_pct", s.Policy.MaxRiskPct)

	switch {
	case s.FastPeriod <= 0 || s.SlowPeriod <= 0 || s.ADXPeriod <= 0 || s.ATRPeriod <= 0:
		return nil, broker.Invalid("period", "all periods must be positive")
	case s.FastPeriod >= s.SlowPeriod:
		return nil, broker.Invalid("fast", "must be shorter than slow (%d >= %d)", s.FastPeriod, s.SlowPeriod)
	case s.ATRMult <= 0:
		return nil, broker.Invalid("atr_mult", "must be positive, got %g", s.ATRMult)
	case s.RiskPct <= 0 || s.RiskPct >= 1:
		return nil, broker.Invalid("risk_pct", "must be in (0, 1), got %g", s.RiskPct)
	}
	return s, nil
}

func (s *EMAADX) Name() string { return "ema-adx" }

func (s *EMAADX) Init(data map[string]*market.Series) error {
	s.state = make(map[string]*emaADXState, len(data))
	for sym := range data {
		s.state[sym] = &emaADXState{
			fast: indicators.NewEMA(s.FastPeriod),
			slow: indicators.NewEMA(s.SlowPeriod),
			adx:  indicators.NewADX(s.ADXPeriod),
			atr:  indicators.NewATR(s.ATRPeriod),
		}
	}
	return nil
}

func (s *EMAADX) Next(ctx context.Context, b broker.Broker, w market.Window) error {
	st, ok := s.state[w.Symbol()]
	if !ok {
		return fmt.Errorf("ema-adx: %s was not initialised", w.Symbol())
	}

	bar := w.Last()
	for _, ind := range []indicators.Indicator{st.fast, st.slow, st.adx, st.atr} {
		ind.Update(bar)
	}
	if !st.fast.Ready() || !st.slow.Ready() || !st.adx.Ready() || !st.atr.Ready() {
		return nil
	}

	diff := st.fast.Value() - st.slow.Value()
	if !st.haveLastDiff {
		st.lastDiff, st.haveLastDiff = diff, true
		return nil
	}
	bull := diff > 0 && st.lastDiff <= 0
	bear := diff < 0 && st.lastDiff >= 0
	st.lastDiff = diff

	if st.adx.Value() < s.MinADX {
		return nil
	}
	switch {
	case bull:
		return s.enter(b, bar, w.Symbol(), broker.Long, st.atr.Value())
	case bear:
		return s.enter(b, bar, w.Symbol(), broker.Short, st.atr.Value())
	}
	return nil
}

func (s *EMAADX) enter(b broker.Broker, bar market.Bar, sym string, side broker.Side, atr float64) error {
	if holding(b, sym, side) {
		return nil
	}
	if err := flatten(b, sym); err != nil {
		return fmt.Errorf("ema-adx %s: %w", sym, err)
	}

	entry := bar.Close
	stop := entry - float64(side)*s.ATRMult*atr
	if stop <= 0 {
		return nil
	}
	req, ok := bracketed(b, s.Policy, sym, side, entry, stop, s.RR, s.RiskPct, s.Name())
	if !ok {
		return nil
	}
	return submit(b, req)
}
