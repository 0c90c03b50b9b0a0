package risk

import "math"

// PlannedRisk is the loss, in account currency, if the stop is hit.
func PlannedRisk(units, entry, stop float64) float64 {
	return math.Abs(units) * math.Abs(entry-stop)
}

// RR is the reward to risk ratio of a bracket, 0 when there is no risk.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

func RiskPct(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / equity
}

// TakeProfit places a target rr times the stop distance beyond entry, on the
// opposite side of the stop.
func TakeProfit(entry, stop, rr float64) float64 {
	return entry + (entry-stop)*rr
}
