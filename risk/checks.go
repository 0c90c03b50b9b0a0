package risk

import (
	"fmt"

	"github.com/rustyeddy/backcast/broker"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk    float64
	PlannedRiskPct float64
	PlannedRR      float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Evaluate checks intent against policy p given the account and the number
// of trades already open. Zero limits in p are not enforced.
func Evaluate(p Policy, intent TradeIntent, acct broker.Account, openTrades int) Decision {
	d := Decision{Allowed: true}

	if intent.Stop == 0 || intent.Entry == 0 {
		d.add("NO_STOP_OR_ENTRY", "entry/stop must be set")
		return d
	}
	if intent.Units == 0 {
		d.add("NO_UNITS", "units must be non-zero")
		return d
	}

	d.PlannedRisk = PlannedRisk(intent.Units, intent.Entry, intent.Stop)
	d.PlannedRiskPct = RiskPct(d.PlannedRisk, acct.Equity)
	if intent.TakeProfit != 0 {
		d.PlannedRR = RR(intent.Entry, intent.Stop, intent.TakeProfit)
	}

	if p.MaxRiskPct > 0 && d.PlannedRiskPct > p.MaxRiskPct {
		d.add("RISK_TOO_HIGH",
			fmt.Sprintf("planned risk %.2f%% exceeds max %.2f%%",
				100*d.PlannedRiskPct, 100*p.MaxRiskPct))
	}
	if p.MinRR > 0 && intent.TakeProfit != 0 && d.PlannedRR < p.MinRR {
		d.add("RR_TOO_LOW",
			fmt.Sprintf("RR %.2f below minimum %.2f", d.PlannedRR, p.MinRR))
	}

	if p.MaxOpenTrades > 0 && openTrades >= p.MaxOpenTrades {
		d.add("TOO_MANY_OPEN_TRADES",
			fmt.Sprintf("open trades %d >= max %d", openTrades, p.MaxOpenTrades))
	}

	if p.MaxMarginPct > 0 && acct.Equity > 0 && acct.MarginUsed/acct.Equity > p.MaxMarginPct {
		d.add("MARGIN_TOO_HIGH",
			fmt.Sprintf("margin used %.2f%% exceeds max %.2f%%",
				100*(acct.MarginUsed/acct.Equity), 100*p.MaxMarginPct))
	}

	if p.MaxDrawdownPct > 0 && acct.PeakEquity > 0 {
		if dd := 1 - acct.Equity/acct.PeakEquity; dd >= p.MaxDrawdownPct {
			d.add("DRAWDOWN_LIMIT",
				fmt.Sprintf("drawdown %.2f%% reached limit %.2f%%", 100*dd, 100*p.MaxDrawdownPct))
		}
	}

	return d
}
