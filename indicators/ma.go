package indicators

import (
	"fmt"
	"math"
)

// SMA returns the simple moving average of xs over period. The first
// period-1 values are NaN, as is any window containing a NaN.
func SMA(xs []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := make([]float64, len(xs))
	m := NewMA(period)
	for i, x := range xs {
		m.win.push(x)
		out[i], _ = m.win.mean()
	}
	return out, nil
}

// EMA returns the exponential moving average of xs over period, seeded with
// the simple average of the first full window free of NaNs. Values before
// the seed are NaN.
func EMA(xs []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := make([]float64, len(xs))
	e := NewEMA(period)
	for i, x := range xs {
		e.add(x)
		out[i] = math.NaN()
		if e.Ready() {
			out[i] = e.Value()
		}
	}
	return out, nil
}

// Last returns the final value of a batch result, or an error when the input
// was too short to produce one.
func Last(values []float64, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	if len(values) == 0 || math.IsNaN(values[len(values)-1]) {
		return 0, fmt.Errorf("not enough data: got %d values", len(values))
	}
	return values[len(values)-1], nil
}

// Crossover reports whether a crossed above b at the last index: a was at
// or below b one bar earlier and is above it now.
func Crossover(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	prevA, prevB, curA, curB := a[n-2], b[n-2], a[n-1], b[n-1]
	for _, v := range []float64{prevA, prevB, curA, curB} {
		if math.IsNaN(v) {
			return false
		}
	}
	return prevA <= prevB && curA > curB
}
