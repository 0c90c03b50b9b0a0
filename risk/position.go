package risk

import "math"

type Inputs struct {
	Equity     float64
	RiskPct    float64 // 0.01
	EntryPrice float64
	StopPrice  float64

	// Upper bound on units, typically what free margin can pay for. Zero
	// means no bound.
	MaxUnits float64
}

type Result struct {
	Units        float64
	StopDistance float64
	RiskAmount   float64
}

// Calculate sizes a position so that hitting the stop loses RiskPct of
// equity. Units are whole; a stop at the entry sizes to zero.
func Calculate(in Inputs) Result {
	dist := math.Abs(in.EntryPrice - in.StopPrice)
	riskAmt := in.Equity * in.RiskPct

	res := Result{StopDistance: dist, RiskAmount: riskAmt}
	if dist == 0 || riskAmt <= 0 {
		return res
	}
	units := math.Floor(riskAmt / dist)
	if in.MaxUnits > 0 {
		units = math.Min(units, math.Floor(in.MaxUnits))
	}
	res.Units = units
	return res
}

// UnitsForRisk is Calculate without a bound.
func UnitsForRisk(equity, riskPct, entry, stop float64) float64 {
	return Calculate(Inputs{Equity: equity, RiskPct: riskPct, EntryPrice: entry, StopPrice: stop}).Units
}
