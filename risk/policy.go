package risk

// Policy holds the pre-trade limits a strategy checks before submitting.
type Policy struct {
	// Risk limits
	DefaultRiskPct float64 // 0.01
	MaxRiskPct     float64 // 0.02

	// Circuit breaker on drawdown from peak equity
	MaxDrawdownPct float64 // 0.25

	// Exposure limits
	MaxOpenTrades int     // 3
	MaxMarginPct  float64 // 0.5

	// Trade constraints
	MinRR float64 // 1.5
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultRiskPct: 0.01,
		MaxRiskPct:     0.02,
		MaxDrawdownPct: 0.25,
		MaxOpenTrades:  1,
		MaxMarginPct:   1,
		MinRR:          1,
	}
}

type TradeIntent struct {
	Symbol string
	Units  float64

	Entry      float64
	Stop       float64
	TakeProfit float64
}
