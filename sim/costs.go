package sim

import (
	"math"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/market"
)

// SpreadModel adjusts a raw execution price for the bid-ask spread. Buys
// come out higher, sells lower.
type SpreadModel interface {
	Adjust(side broker.Side, price float64) float64
}

// SlippageModel returns the adverse price move, >= 0, for filling units at
// price inside bar.
type SlippageModel interface {
	Slip(units, price float64, bar market.Bar) float64
}

// CommissionModel returns the fee charged for one fill.
type CommissionModel interface {
	Commission(units, price float64) float64
}

// RelativeSpread is a spread expressed as a fraction of price.
type RelativeSpread float64

func (s RelativeSpread) Adjust(side broker.Side, price float64) float64 {
	return price * (1 + float64(side)*float64(s))
}

type NoSlippage struct{}

func (NoSlippage) Slip(float64, float64, market.Bar) float64 { return 0 }

// RangeSlippage moves the price by Coeff of the bar range, scaled by the
// order's share of the bar volume. Without volume data the full coefficient
// applies.
type RangeSlippage struct {
	Coeff float64
}

func (s RangeSlippage) Slip(units, _ float64, bar market.Bar) float64 {
	if s.Coeff <= 0 {
		return 0
	}
	participation := 1.0
	if v := bar.Volume; v > 0 && !math.IsNaN(v) {
		participation = math.Min(1, math.Abs(units)/v)
	}
	return s.Coeff * bar.Range() * participation
}

// RateCommission charges a fraction of the traded notional.
type RateCommission float64

func (r RateCommission) Commission(units, price float64) float64 {
	return math.Abs(units) * price * float64(r)
}

// FixedPlusRate charges a flat fee per fill plus a fraction of the notional.
type FixedPlusRate struct {
	Fixed float64
	Rate  float64
}

func (c FixedPlusRate) Commission(units, price float64) float64 {
	return c.Fixed + math.Abs(units)*price*c.Rate
}

// CommissionFunc adapts a plain function.
type CommissionFunc func(units, price float64) float64

func (f CommissionFunc) Commission(units, price float64) float64 { return f(units, price) }

// Costs bundles the three models used by the ledger.
type Costs struct {
	Spread     SpreadModel
	Slippage   SlippageModel
	Commission CommissionModel
}

// entryPrice applies spread and slippage to an opening fill.
func (c Costs) entryPrice(side broker.Side, units, raw float64, bar market.Bar) float64 {
	p := c.Spread.Adjust(side, raw)
	return p + float64(side)*c.Slippage.Slip(units, raw, bar)
}

func (c Costs) fee(units, price float64) float64 {
	fee := c.Commission.Commission(units, price)
	if fee < 0 || math.IsNaN(fee) {
		return 0
	}
	return fee
}
