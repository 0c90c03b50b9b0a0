package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backcast/market"
)

// ADX implements Wilder's Average Directional Index (trend strength).
// Usage:
//
//	adx := indicators.NewADX(14)
//	adx.Update(bar)
//	if adx.Ready() && adx.Value() >= 20 { ... }
type ADX struct {
	Period int

	prev     market.Bar
	havePrev bool

	// Wilder-smoothed values after warmup
	tr  float64
	pdm float64
	mdm float64

	adx   float64
	dxSum float64

	// bars processed, including the first prev seed
	count int
	ready bool
}

func NewADX(period int) *ADX {
	return &ADX{Period: period}
}

func (a *ADX) Name() string { return fmt.Sprintf("ADX(%d)", a.Period) }

// Warmup is Period bars to seed the smoothed ranges, Period DX values to
// seed the ADX, plus the first bar.
func (a *ADX) Warmup() int { return 2*a.Period + 1 }

func (a *ADX) Reset() { *a = ADX{Period: a.Period} }

func (a *ADX) Value() float64 {
	if !a.ready {
		return 0
	}
	return a.adx
}

func (a *ADX) Ready() bool {
	return a.ready
}

func (a *ADX) Update(b market.Bar) {
	if !a.havePrev {
		a.prev = b
		a.havePrev = true
		a.count = 1
		return
	}

	upMove := b.High - a.prev.High
	downMove := a.prev.Low - b.Low

	var pdm, mdm float64
	if upMove > downMove && upMove > 0 {
		pdm = upMove
	}
	if downMove > upMove && downMove > 0 {
		mdm = downMove
	}
	tr := trueRange(b, a.prev)

	a.prev = b
	a.count++

	p := float64(a.Period)

	// Phase A: simple averages of the first Period samples.
	if a.count <= a.Period+1 {
		a.tr += tr
		a.pdm += pdm
		a.mdm += mdm
		if a.count == a.Period+1 {
			a.tr /= p
			a.pdm /= p
			a.mdm /= p
		}
		return
	}

	a.tr = (a.tr*(p-1) + tr) / p
	a.pdm = (a.pdm*(p-1) + pdm) / p
	a.mdm = (a.mdm*(p-1) + mdm) / p
	if a.tr == 0 {
		return
	}

	pdi := 100 * a.pdm / a.tr
	mdi := 100 * a.mdm / a.tr
	den := pdi + mdi
	if den == 0 {
		return
	}
	dx := 100 * math.Abs(pdi-mdi) / den

	// Phase B: seed ADX with the mean of the first Period DX values.
	if !a.ready {
		if a.count >= a.Period+2 {
			a.dxSum += dx
		}
		if a.count == 2*a.Period+1 {
			a.adx = a.dxSum / p
			a.ready = true
		}
		return
	}
	a.adx = (a.adx*(p-1) + dx) / p
}
