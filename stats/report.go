package stats

import (
	"fmt"
	"io"
	"time"
)

func pct(v Value[float64]) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v.Value*100)
}

func num(v Value[float64]) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v.Value)
}

// Print writes s as a plain text report.
func Print(w io.Writer, s Summary) {
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:              %s\n", s.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:                %s\n", s.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:           %s\n", s.Duration)
	fmt.Fprintf(w, "Bars:               %d\n", s.Bars)
	fmt.Fprintf(w, "Exposure:           %s\n", pct(s.Exposure))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Equity:       %.2f\n", s.EquityStart)
	fmt.Fprintf(w, "Final Equity:       %.2f\n", s.EquityFinal)
	fmt.Fprintf(w, "Peak Equity:        %.2f\n", s.EquityPeak)
	fmt.Fprintf(w, "Return:             %s\n", pct(s.Return))
	if s.BuyHoldReturn.Valid {
		fmt.Fprintf(w, "Buy & Hold Return:  %s\n", pct(s.BuyHoldReturn))
	}
	fmt.Fprintf(w, "Return (Ann.):      %s\n", pct(s.AnnualReturn))
	fmt.Fprintf(w, "CAGR:               %s\n", pct(s.CAGR))
	fmt.Fprintf(w, "Volatility (Ann.):  %s\n", pct(s.Volatility))
	fmt.Fprintf(w, "Sharpe Ratio:       %s\n", num(s.Sharpe))
	fmt.Fprintf(w, "Sortino Ratio:      %s\n", num(s.Sortino))
	fmt.Fprintf(w, "Calmar Ratio:       %s\n", num(s.Calmar))
	fmt.Fprintf(w, "Max Drawdown:       %s\n", pct(s.MaxDrawdown))
	fmt.Fprintf(w, "Avg Drawdown:       %s\n", pct(s.AvgDrawdown))
	fmt.Fprintf(w, "Max DD Duration:    %s\n", s.MaxDrawdownDuration)
	fmt.Fprintf(w, "Avg DD Duration:    %s\n", s.AvgDrawdownDuration)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:             %d\n", s.Trades)
	fmt.Fprintf(w, "Wins:               %d\n", s.Wins)
	fmt.Fprintf(w, "Losses:             %d\n", s.Losses)
	if s.OpenTrades > 0 {
		fmt.Fprintf(w, "Still Open:         %d\n", s.OpenTrades)
	}
	fmt.Fprintf(w, "Win Rate:           %s\n", pct(s.WinRate))
	fmt.Fprintf(w, "Best Trade:         %s\n", pct(s.BestTrade))
	fmt.Fprintf(w, "Worst Trade:        %s\n", pct(s.WorstTrade))
	fmt.Fprintf(w, "Avg Trade:          %s\n", pct(s.AvgTrade))
	fmt.Fprintf(w, "Max Holding:        %s\n", s.MaxHolding)
	fmt.Fprintf(w, "Avg Holding:        %s\n", s.AvgHolding)
	fmt.Fprintf(w, "Profit Factor:      %s\n", num(s.ProfitFactor))
	fmt.Fprintf(w, "Expectancy:         %s\n", num(s.Expectancy))
	fmt.Fprintf(w, "SQN:                %s\n", num(s.SQN))
	fmt.Fprintf(w, "Kelly Criterion:    %s\n", pct(s.Kelly))
	fmt.Fprintf(w, "Commissions:        %.2f\n", s.Commissions)
	fmt.Fprintln(w)
}
