package market

import (
	"math"
	"time"
)

// Bar is one OHLCV observation for a symbol.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range is High - Low.
func (b Bar) Range() float64 { return b.High - b.Low }

// Problem returns a description of what is wrong with the bar's prices, or
// "" when it is usable. Volume may be NaN (not every source has it).
func (b Bar) Problem() string {
	for _, p := range []struct {
		name string
		v    float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return p.name + " is missing"
		}
		if p.v <= 0 {
			return p.name + " is not positive"
		}
	}
	if b.High < b.Low {
		return "high below low"
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return "open/close outside high/low"
	}
	return ""
}
