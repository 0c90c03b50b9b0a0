// Package stats turns an equity curve and a trade list into a run summary.
// Every function here is pure; ratios and returns are fractions (0.05 is 5%).
package stats

import (
	"math"
	"time"

	"github.com/rustyeddy/backcast/broker"
)

const year = time.Duration(365.25 * 24 * float64(time.Hour))

type Options struct {
	// Number of bars in a year, used to annualize per-bar figures.
	BarsPerYear float64

	// Annual risk-free rate for Sharpe and Sortino.
	RiskFreeRate float64

	// Closes of a benchmark over the run; enables BuyHoldReturn.
	Benchmark []float64
}

func DefaultOptions() Options {
	return Options{BarsPerYear: 252}
}

type Summary struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Bars     int

	// Fraction of bars with at least one open trade.
	Exposure Value[float64]

	EquityStart float64
	EquityFinal float64
	EquityPeak  float64

	Return        Value[float64]
	AnnualReturn  Value[float64]
	CAGR          Value[float64]
	BuyHoldReturn Value[float64]
	Volatility    Value[float64]
	Sharpe        Value[float64]
	Sortino       Value[float64]
	Calmar        Value[float64]

	MaxDrawdown         Value[float64]
	AvgDrawdown         Value[float64]
	MaxDrawdownDuration Value[time.Duration]
	AvgDrawdownDuration Value[time.Duration]

	// Closed trades only; trades left open at the end are counted in
	// OpenTrades and nowhere else.
	Trades       int
	Wins         int
	Losses       int
	OpenTrades   int
	WinRate      Value[float64]
	BestTrade    Value[float64]
	WorstTrade   Value[float64]
	AvgTrade     Value[float64]
	MaxHolding   Value[time.Duration]
	AvgHolding   Value[time.Duration]
	ProfitFactor Value[float64]
	Expectancy   Value[float64]
	SQN          Value[float64]
	Kelly        Value[float64]
	Commissions  float64
}

// Compute summarizes a run. equity is the per-instant curve, trades every
// trade of the run, open or closed.
func Compute(equity []broker.EquityPoint, trades []broker.Trade, opt Options) Summary {
	if opt.BarsPerYear <= 0 {
		opt.BarsPerYear = DefaultOptions().BarsPerYear
	}

	var s Summary
	s.Bars = len(equity)
	curve(&s, equity, opt)
	drawdowns(&s, equity)
	tradeStats(&s, equity, trades)

	if n := len(opt.Benchmark); n > 1 && opt.Benchmark[0] > 0 {
		s.BuyHoldReturn = finite(opt.Benchmark[n-1]/opt.Benchmark[0] - 1)
	}
	if s.AnnualReturn.Valid && s.MaxDrawdown.Valid && s.MaxDrawdown.Value > 0 {
		s.Calmar = finite(s.AnnualReturn.Value / s.MaxDrawdown.Value)
	}
	return s
}

func curve(s *Summary, equity []broker.EquityPoint, opt Options) {
	if len(equity) == 0 {
		return
	}
	first, last := equity[0], equity[len(equity)-1]
	s.Start, s.End = first.Time, last.Time
	s.Duration = last.Time.Sub(first.Time)
	s.EquityStart, s.EquityFinal = first.Equity, last.Equity
	for _, p := range equity {
		s.EquityPeak = math.Max(s.EquityPeak, p.Equity)
	}
	if first.Equity <= 0 {
		return
	}

	growth := last.Equity / first.Equity
	s.Return = finite(growth - 1)

	n := len(equity) - 1
	if n > 0 {
		s.AnnualReturn = compound(growth, opt.BarsPerYear/float64(n))
	}
	if s.Duration > 0 {
		s.CAGR = compound(growth, float64(year)/float64(s.Duration))
	}

	rets := returns(equity)
	if len(rets) < 2 {
		return
	}
	mean, sd := meanStd(rets)
	ann := math.Sqrt(opt.BarsPerYear)
	rf := opt.RiskFreeRate / opt.BarsPerYear

	s.Volatility = finite(sd * ann)
	if sd > 0 {
		s.Sharpe = finite((mean - rf) / sd * ann)
	}
	var down float64
	for _, r := range rets {
		if d := r - rf; d < 0 {
			down += d * d
		}
	}
	if down > 0 {
		s.Sortino = finite((mean - rf) / math.Sqrt(down/float64(len(rets))) * ann)
	}
}

// compound raises growth to power, treating a wiped-out account as -100%.
func compound(growth, power float64) Value[float64] {
	if growth <= 0 {
		return Of(-1.0)
	}
	return finite(math.Pow(growth, power) - 1)
}

// returns are the simple per-bar returns. Steps from a non-positive equity
// have no meaningful return and are left out.
func returns(equity []broker.EquityPoint) []float64 {
	out := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		out = append(out, equity[i].Equity/prev-1)
	}
	return out
}

// meanStd returns the mean and sample standard deviation of xs.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// drawdowns measures drawdown from the running peak. A drawdown period runs
// from the peak it fell from to the point equity regains that peak, or to
// the end of the curve.
func drawdowns(s *Summary, equity []broker.EquityPoint) {
	if len(equity) == 0 {
		return
	}

	peak, peakAt := equity[0].Equity, equity[0].Time
	var inDD bool
	var depth, maxDD float64
	var depths []float64
	var lengths []time.Duration
	closePeriod := func(at time.Time) {
		depths = append(depths, depth)
		lengths = append(lengths, at.Sub(peakAt))
		inDD, depth = false, 0
	}

	for _, p := range equity {
		if p.Equity >= peak {
			if inDD {
				closePeriod(p.Time)
			}
			peak, peakAt = p.Equity, p.Time
			continue
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Equity) / peak
		inDD = true
		depth = math.Max(depth, dd)
		maxDD = math.Max(maxDD, dd)
	}
	if inDD {
		closePeriod(equity[len(equity)-1].Time)
	}

	s.MaxDrawdown = Of(maxDD)
	if len(depths) == 0 {
		return
	}
	var sumDepth float64
	var sumLen, maxLen time.Duration
	for i := range depths {
		sumDepth += depths[i]
		sumLen += lengths[i]
		if lengths[i] > maxLen {
			maxLen = lengths[i]
		}
	}
	s.AvgDrawdown = Of(sumDepth / float64(len(depths)))
	s.MaxDrawdownDuration = Of(maxLen)
	s.AvgDrawdownDuration = Of(sumLen / time.Duration(len(depths)))
}

func tradeStats(s *Summary, equity []broker.EquityPoint, trades []broker.Trade) {
	var closed []broker.Trade
	for _, t := range trades {
		s.Commissions += t.Commission
		if t.IsOpen {
			s.OpenTrades++
			continue
		}
		closed = append(closed, t)
	}
	s.Exposure = exposure(equity, trades)

	s.Trades = len(closed)
	if s.Trades == 0 {
		return
	}

	var pls, pcts []float64
	var grossWin, grossLoss float64
	var held, maxHeld time.Duration
	best, worst := math.Inf(-1), math.Inf(1)
	for _, t := range closed {
		pls = append(pls, t.PL)
		pcts = append(pcts, t.PLPct)
		best = math.Max(best, t.PLPct)
		worst = math.Min(worst, t.PLPct)
		switch {
		case t.PL > 0:
			s.Wins++
			grossWin += t.PL
		case t.PL < 0:
			s.Losses++
			grossLoss -= t.PL
		}
		d := t.ExitTime.Sub(t.EntryTime)
		held += d
		if d > maxHeld {
			maxHeld = d
		}
	}

	n := float64(s.Trades)
	winRate := float64(s.Wins) / n
	s.WinRate = Of(winRate)
	s.BestTrade = Of(best)
	s.WorstTrade = Of(worst)
	meanPct, _ := meanStd(pcts)
	s.AvgTrade = finite(meanPct)
	s.MaxHolding = Of(maxHeld)
	s.AvgHolding = Of(held / time.Duration(s.Trades))

	if grossLoss > 0 {
		s.ProfitFactor = finite(grossWin / grossLoss)
	}
	meanPL, sdPL := meanStd(pls)
	s.Expectancy = finite(meanPL)
	if sdPL > 0 {
		s.SQN = finite(math.Sqrt(n) * meanPL / sdPL)
	}
	if s.Wins > 0 && s.Losses > 0 {
		avgWin := grossWin / float64(s.Wins)
		avgLoss := grossLoss / float64(s.Losses)
		s.Kelly = finite(winRate - (1-winRate)/(avgWin/avgLoss))
	}
}

// exposure is the share of curve points at which some trade was open.
func exposure(equity []broker.EquityPoint, trades []broker.Trade) Value[float64] {
	if len(equity) == 0 {
		return None[float64]()
	}
	var exposed int
	for _, p := range equity {
		for _, t := range trades {
			if p.Time.Before(t.EntryTime) {
				continue
			}
			if t.IsOpen || p.Time.Before(t.ExitTime) {
				exposed++
				break
			}
		}
	}
	return Of(float64(exposed) / float64(len(equity)))
}
