package stats

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backcast/broker"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time { return day0.AddDate(0, 0, i) }

func curveOf(values ...float64) []broker.EquityPoint {
	out := make([]broker.EquityPoint, len(values))
	for i, v := range values {
		out[i] = broker.EquityPoint{Time: day(i), Cash: v, Equity: v}
	}
	return out
}

func closedTrade(entry, exit int, pl, pct float64) broker.Trade {
	return broker.Trade{
		ID:        "T",
		Symbol:    "X",
		Side:      broker.Long,
		Units:     1,
		EntryTime: day(entry),
		ExitTime:  day(exit),
		PL:        pl,
		PLPct:     pct,
	}
}

func TestComputeCurve(t *testing.T) {
	t.Parallel()

	s := Compute(curveOf(100, 110, 99, 121), nil, DefaultOptions())

	assert.Equal(t, 4, s.Bars)
	assert.Equal(t, day(0), s.Start)
	assert.Equal(t, day(3), s.End)
	assert.Equal(t, 72*time.Hour, s.Duration)
	assert.Equal(t, 121.0, s.EquityPeak)

	require.True(t, s.Return.Valid)
	assert.InDelta(t, 0.21, s.Return.Value, 1e-12)
	require.True(t, s.AnnualReturn.Valid)
	assert.InDelta(t, math.Pow(1.21, 252.0/3)-1, s.AnnualReturn.Value, 1e-6*s.AnnualReturn.Value)
	assert.True(t, s.CAGR.Valid)

	rets := []float64{0.1, -0.1, 121.0/99 - 1}
	mean := (rets[0] + rets[1] + rets[2]) / 3
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / 2)
	require.True(t, s.Sharpe.Valid)
	assert.InDelta(t, mean/sd*math.Sqrt(252), s.Sharpe.Value, 1e-9)
	assert.InDelta(t, sd*math.Sqrt(252), s.Volatility.Value, 1e-9)

	down := math.Sqrt(0.01 / 3)
	require.True(t, s.Sortino.Valid)
	assert.InDelta(t, mean/down*math.Sqrt(252), s.Sortino.Value, 1e-9)

	require.True(t, s.MaxDrawdown.Valid)
	assert.InDelta(t, 0.1, s.MaxDrawdown.Value, 1e-12)
	assert.InDelta(t, 0.1, s.AvgDrawdown.Value, 1e-12)
	assert.Equal(t, Of(48*time.Hour), s.MaxDrawdownDuration)
	assert.Equal(t, Of(48*time.Hour), s.AvgDrawdownDuration)
	require.True(t, s.Calmar.Valid)
	assert.InDelta(t, s.AnnualReturn.Value/0.1, s.Calmar.Value, 1e-6*s.Calmar.Value)
}

func TestComputeBarsPerYear(t *testing.T) {
	t.Parallel()

	eq := curveOf(100, 101, 100.5, 102)
	daily := Compute(eq, nil, Options{BarsPerYear: 252})
	hourly := Compute(eq, nil, Options{BarsPerYear: 252 * 24})

	assert.InDelta(t, daily.Sharpe.Value*math.Sqrt(24), hourly.Sharpe.Value, 1e-9)
	assert.Equal(t, daily.Return, hourly.Return)
}

func TestComputeUndefined(t *testing.T) {
	t.Parallel()

	t.Run("empty curve", func(t *testing.T) {
		t.Parallel()
		s := Compute(nil, nil, DefaultOptions())
		assert.Zero(t, s.Bars)
		assert.False(t, s.Return.Valid)
		assert.False(t, s.Sharpe.Valid)
		assert.False(t, s.MaxDrawdown.Valid)
		assert.False(t, s.Exposure.Valid)
		assert.False(t, s.WinRate.Valid)
	})

	t.Run("flat curve", func(t *testing.T) {
		t.Parallel()
		s := Compute(curveOf(100, 100, 100), nil, DefaultOptions())
		assert.Equal(t, Of(0.0), s.Return)
		assert.Equal(t, Of(0.0), s.Volatility)
		assert.False(t, s.Sharpe.Valid, "zero variance")
		assert.False(t, s.Sortino.Valid)
		assert.Equal(t, Of(0.0), s.MaxDrawdown)
		assert.False(t, s.AvgDrawdown.Valid)
		assert.False(t, s.Calmar.Valid)
		assert.Equal(t, Of(0.0), s.Exposure)
	})

	t.Run("no trades", func(t *testing.T) {
		t.Parallel()
		s := Compute(curveOf(100, 101), nil, DefaultOptions())
		assert.Zero(t, s.Trades)
		assert.False(t, s.WinRate.Valid)
		assert.False(t, s.ProfitFactor.Valid)
		assert.False(t, s.AvgHolding.Valid)
		assert.False(t, s.SQN.Valid)
	})

	t.Run("only winners", func(t *testing.T) {
		t.Parallel()
		s := Compute(curveOf(100, 110), []broker.Trade{closedTrade(0, 1, 10, 0.1)}, DefaultOptions())
		assert.Equal(t, Of(1.0), s.WinRate)
		assert.False(t, s.ProfitFactor.Valid)
		assert.False(t, s.Kelly.Valid)
		assert.False(t, s.SQN.Valid)
	})

	t.Run("wiped out", func(t *testing.T) {
		t.Parallel()
		s := Compute(curveOf(100, 50, -10), nil, DefaultOptions())
		assert.Equal(t, Of(-1.0), s.AnnualReturn)
		assert.InDelta(t, -1.1, s.Return.Value, 1e-12)
		assert.InDelta(t, 1.1, s.MaxDrawdown.Value, 1e-12)
	})
}

func TestComputeTrades(t *testing.T) {
	t.Parallel()

	open := broker.Trade{ID: "O", Symbol: "X", Side: broker.Long, Units: 1, EntryTime: day(2), IsOpen: true, Commission: 1}
	a := closedTrade(0, 1, 10, 0.1)
	a.Commission = 2
	trades := []broker.Trade{
		a,
		closedTrade(1, 2, -5, -0.05),
		closedTrade(0, 3, 20, 0.2),
		open,
	}
	s := Compute(curveOf(100, 110, 105, 125), trades, DefaultOptions())

	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.OpenTrades)
	assert.InDelta(t, 2.0/3, s.WinRate.Value, 1e-12)
	assert.InDelta(t, 6, s.ProfitFactor.Value, 1e-12)
	assert.InDelta(t, 25.0/3, s.Expectancy.Value, 1e-12)
	assert.InDelta(t, 5.0/9, s.Kelly.Value, 1e-12)
	assert.Equal(t, Of(0.2), s.BestTrade)
	assert.Equal(t, Of(-0.05), s.WorstTrade)
	assert.InDelta(t, 0.25/3, s.AvgTrade.Value, 1e-12)
	assert.Equal(t, Of(72*time.Hour), s.MaxHolding)
	assert.Equal(t, Of(40*time.Hour), s.AvgHolding)
	assert.InDelta(t, 3, s.Commissions, 1e-12)

	pls := []float64{10, -5, 20}
	mean := 25.0 / 3
	var ss float64
	for _, x := range pls {
		ss += (x - mean) * (x - mean)
	}
	assert.InDelta(t, math.Sqrt(3)*mean/math.Sqrt(ss/2), s.SQN.Value, 1e-9)

	assert.Equal(t, Of(1.0), s.Exposure)
}

func TestExposure(t *testing.T) {
	t.Parallel()

	trades := []broker.Trade{
		closedTrade(0, 1, 1, 0.01),
		{ID: "O", EntryTime: day(2), IsOpen: true},
	}
	assert.Equal(t, Of(0.75), exposure(curveOf(1, 1, 1, 1), trades))
}

func TestBuyHold(t *testing.T) {
	t.Parallel()

	opt := DefaultOptions()
	opt.Benchmark = []float64{50, 55, 60}
	s := Compute(curveOf(100, 100, 100), nil, opt)
	require.True(t, s.BuyHoldReturn.Valid)
	assert.InDelta(t, 0.2, s.BuyHoldReturn.Value, 1e-12)

	assert.False(t, Compute(curveOf(100, 100), nil, DefaultOptions()).BuyHoldReturn.Valid)
}

func TestValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "n/a", None[float64]().String())
	assert.Equal(t, "0.1250", Of(0.125).String())
	assert.Equal(t, "1h0m0s", Of(time.Hour).String())
	assert.Equal(t, 3.0, None[float64]().Or(3))
	assert.True(t, math.IsNaN(Float(None[float64]())))
	assert.Equal(t, 2.0, Float(Of(2.0)))
	assert.False(t, finite(math.Inf(1)).Valid)

	out, err := json.Marshal(struct {
		A Value[float64]
		B Value[float64]
	}{A: Of(1.5), B: None[float64]()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":1.5,"B":null}`, string(out))
}

func TestPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Print(&buf, Compute(curveOf(100, 110), nil, DefaultOptions()))
	out := buf.String()

	assert.Contains(t, out, "Return:             10.00%")
	assert.Contains(t, out, "Win Rate:           n/a")
	assert.Contains(t, out, "Trades:             0")
	assert.NotContains(t, out, "Buy & Hold")
}
