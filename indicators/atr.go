package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backcast/market"
)

// ATR returns Wilder's Average True Range per bar. The first period values
// are NaN: a true range needs the previous close and the seed needs period
// ranges.
func ATR(bars []market.Bar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := make([]float64, len(bars))
	a := NewATR(period)
	for i, b := range bars {
		a.Update(b)
		out[i] = math.NaN()
		if a.Ready() {
			out[i] = a.Value()
		}
	}
	return out, nil
}

// AverageTR is a streaming Average True Range indicator.
type AverageTR struct {
	period      int
	atr         float64
	count       int
	warmupSum   float64
	prev        market.Bar
	hasPrevious bool
}

// NewATR creates a new Average True Range indicator with the given period
func NewATR(period int) *AverageTR {
	return &AverageTR{
		period: period,
	}
}

func (a *AverageTR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *AverageTR) Warmup() int {
	// Need period+1 bars because TR requires the previous bar
	return a.period + 1
}

func (a *AverageTR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrevious = false
}

func (a *AverageTR) Update(b market.Bar) {
	if !a.hasPrevious {
		a.prev = b
		a.hasPrevious = true
		return
	}

	tr := trueRange(b, a.prev)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		// Wilder's smoothing
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prev = b
}

func (a *AverageTR) Ready() bool {
	return a.count >= a.period
}

func (a *AverageTR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

// trueRange calculates the True Range for a bar given the previous bar
func trueRange(current, previous market.Bar) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)

	return math.Max(highLow, math.Max(highClose, lowClose))
}
