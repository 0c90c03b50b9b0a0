package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backcast/market"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testBars() []market.Bar {
	hl := [][3]float64{
		{105, 99, 102},
		{107, 101, 105},
		{108, 104, 106},
		{110, 105, 108},
		{112, 107, 110},
		{113, 109, 111},
		{115, 110, 113},
		{116, 112, 114},
		{118, 113, 116},
		{120, 115, 118},
	}
	out := make([]market.Bar, len(hl))
	for i, v := range hl {
		out[i] = market.Bar{
			Time:  baseTime.Add(time.Duration(i) * time.Hour),
			Open:  v[2],
			High:  v[0],
			Low:   v[1],
			Close: v[2],
		}
	}
	return out
}

func TestSimpleMAStreaming(t *testing.T) {
	bars := testBars()

	t.Run("basic functionality", func(t *testing.T) {
		ma := NewMA(3)
		assert.Equal(t, "MA(3)", ma.Name())
		assert.Equal(t, 3, ma.Warmup())
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())

		ma.Update(bars[0])
		ma.Update(bars[1])
		assert.False(t, ma.Ready())

		ma.Update(bars[2])
		assert.True(t, ma.Ready())
		assert.InDelta(t, (102.0+105.0+106.0)/3.0, ma.Value(), 0.001)

		// should use last 3
		ma.Update(bars[3])
		assert.InDelta(t, (105.0+106.0+108.0)/3.0, ma.Value(), 0.001)
	})

	t.Run("reset functionality", func(t *testing.T) {
		ma := NewMA(2)
		ma.Update(bars[0])
		ma.Update(bars[1])
		assert.True(t, ma.Ready())

		ma.Reset()
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())
	})
}

func TestSimpleMAMatchesBatchAfterReset(t *testing.T) {
	bars := testBars()
	xs := make([]float64, len(bars))
	for i, b := range bars {
		xs[i] = b.Close
	}
	batch, err := SMA(xs, 4)
	require.NoError(t, err)

	ma := NewMA(4)
	for _, b := range bars[:6] {
		ma.Update(b)
	}
	ma.Reset()
	for i, b := range bars {
		ma.Update(b)
		if i < 3 {
			assert.False(t, ma.Ready(), "bar %d", i)
			continue
		}
		require.True(t, ma.Ready(), "bar %d", i)
		assert.InDelta(t, batch[i], ma.Value(), 1e-9, "bar %d", i)
	}
}

func TestExponentialMAStreaming(t *testing.T) {
	bars := testBars()

	ema := NewEMA(3)
	assert.Equal(t, "EMA(3)", ema.Name())
	assert.Equal(t, 3, ema.Warmup())
	assert.Equal(t, 0.0, ema.Value())

	ema.Update(bars[0])
	ema.Update(bars[1])
	assert.False(t, ema.Ready())

	ema.Update(bars[2])
	assert.True(t, ema.Ready())
	expectedSMA := (102.0 + 105.0 + 106.0) / 3.0
	assert.InDelta(t, expectedSMA, ema.Value(), 0.001)

	// multiplier = 2/(3+1) = 0.5
	ema.Update(bars[3])
	assert.InDelta(t, (108.0-expectedSMA)*0.5+expectedSMA, ema.Value(), 0.001)

	ema.Reset()
	assert.False(t, ema.Ready())
}

func TestAverageTrueRangeStreaming(t *testing.T) {
	bars := []market.Bar{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 13, Low: 11, Close: 12},
	}

	atr := NewATR(3)
	assert.Equal(t, "ATR(3)", atr.Name())
	assert.Equal(t, 4, atr.Warmup()) // period + 1
	assert.False(t, atr.Ready())

	for _, b := range bars[:3] {
		atr.Update(b)
	}
	assert.False(t, atr.Ready())

	atr.Update(bars[3])
	assert.True(t, atr.Ready())
	assert.InDelta(t, 2.0, atr.Value(), 0.001)

	atr.Reset()
	assert.False(t, atr.Ready())
	assert.Equal(t, 0.0, atr.Value())
}

func TestADXStreaming(t *testing.T) {
	adx := NewADX(3)
	assert.Equal(t, "ADX(3)", adx.Name())
	assert.Equal(t, 7, adx.Warmup())

	bars := testBars()
	for i, b := range bars {
		adx.Update(b)
		if i < adx.Warmup()-1 {
			assert.False(t, adx.Ready(), "bar %d", i)
		}
	}
	assert.True(t, adx.Ready())
	// a steady uptrend has no down moves, so DX is 100 throughout
	assert.InDelta(t, 100.0, adx.Value(), 1e-9)

	adx.Reset()
	assert.False(t, adx.Ready())
	assert.Equal(t, 3, adx.Period)
}

func TestIndicatorInterface(t *testing.T) {
	var _ Indicator = &SimpleMA{}
	var _ Indicator = &ExponentialMA{}
	var _ Indicator = &AverageTR{}
	var _ Indicator = &ADX{}

	for _, ind := range []Indicator{NewMA(3), NewEMA(3), NewATR(2), NewADX(2)} {
		assert.False(t, ind.Ready(), "indicator %s should not be ready initially", ind.Name())
		for _, b := range testBars() {
			ind.Update(b)
		}
		assert.True(t, ind.Ready(), "indicator %s should be ready after warmup", ind.Name())
		assert.Greater(t, ind.Value(), 0.0, "indicator %s should have positive value", ind.Name())
		ind.Reset()
		assert.False(t, ind.Ready(), "indicator %s should not be ready after reset", ind.Name())
	}
}

func TestStreamingVsBatchConsistency(t *testing.T) {
	bars := testBars()
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	ma := NewMA(5)
	ema := NewEMA(5)
	atr := NewATR(5)
	for _, b := range bars {
		ma.Update(b)
		ema.Update(b)
		atr.Update(b)
	}

	sma, _ := Last(SMA(closes, 5))
	assert.InDelta(t, sma, ma.Value(), 0.001)
	e, _ := Last(EMA(closes, 5))
	assert.InDelta(t, e, ema.Value(), 0.001)
	a, _ := Last(ATR(bars, 5))
	assert.InDelta(t, a, atr.Value(), 0.001)
}
