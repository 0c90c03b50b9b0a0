package sim

import (
	"math"

	"github.com/rustyeddy/backcast/broker"
)

// Config holds the broker options of one run.
type Config struct {
	Cash float64

	// Relative bid-ask spread applied to opening fills.
	Spread float64

	// Commission = CommissionFixed + |units|*price*Commission, per fill.
	Commission      float64
	CommissionFixed float64

	// Slippage coefficient for RangeSlippage; zero disables slippage.
	Slippage float64

	// Required margin ratio, 1 for an unleveraged account.
	Margin float64

	TradeOnClose    bool
	Hedging         bool
	ExclusiveOrders bool
	FinalizeTrades  bool

	// Seed for order and trade ids.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		Cash:   10000,
		Margin: 1,
		Seed:   1,
	}
}

func (c Config) Validate() error {
	finite := func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

	if !finite(c.Cash) || c.Cash <= 0 {
		return broker.Invalid("cash", "must be positive, got %v", c.Cash)
	}
	if !finite(c.Spread) || c.Spread < 0 || c.Spread >= 1 {
		return broker.Invalid("spread", "must be in [0, 1), got %v", c.Spread)
	}
	if !finite(c.Commission) || c.Commission < 0 || c.Commission >= 1 {
		return broker.Invalid("commission", "must be in [0, 1), got %v", c.Commission)
	}
	if !finite(c.CommissionFixed) || c.CommissionFixed < 0 {
		return broker.Invalid("commission_fixed", "must be >= 0, got %v", c.CommissionFixed)
	}
	if !finite(c.Slippage) || c.Slippage < 0 {
		return broker.Invalid("slippage", "must be >= 0, got %v", c.Slippage)
	}
	if !finite(c.Margin) || c.Margin <= 0 || c.Margin > 1 {
		return broker.Invalid("margin", "must be in (0, 1], got %v", c.Margin)
	}
	return nil
}

// costs builds the default models from the rates in c.
func (c Config) costs() Costs {
	out := Costs{
		Spread:     RelativeSpread(c.Spread),
		Slippage:   NoSlippage{},
		Commission: RateCommission(c.Commission),
	}
	if c.CommissionFixed > 0 {
		out.Commission = FixedPlusRate{Fixed: c.CommissionFixed, Rate: c.Commission}
	}
	if c.Slippage > 0 {
		out.Slippage = RangeSlippage{Coeff: c.Slippage}
	}
	return out
}
