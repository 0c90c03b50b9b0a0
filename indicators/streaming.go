package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backcast/market"
)

// rolling holds the last n values and their sum. NaNs are counted instead
// of summed so a window with a gap never reports a mean.
type rolling struct {
	buf  []float64
	next int
	full bool
	sum  float64
	nan  int
}

func newRolling(n int) rolling {
	if n < 1 {
		n = 1
	}
	return rolling{buf: make([]float64, n)}
}

func (r *rolling) push(x float64) {
	if r.full {
		if old := r.buf[r.next]; math.IsNaN(old) {
			r.nan--
		} else {
			r.sum -= old
		}
	}
	r.buf[r.next] = x
	if math.IsNaN(x) {
		r.nan++
	} else {
		r.sum += x
	}
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *rolling) mean() (float64, bool) {
	if !r.full || r.nan > 0 {
		return math.NaN(), false
	}
	return r.sum / float64(len(r.buf)), true
}

func (r *rolling) reset() {
	r.next, r.full, r.sum, r.nan = 0, false, 0, 0
}

// SimpleMA is a streaming simple moving average of closes. SMA runs the
// same window over a whole column.
type SimpleMA struct {
	period int
	win    rolling
}

// NewMA returns a SimpleMA over period closes.
func NewMA(period int) *SimpleMA {
	return &SimpleMA{period: period, win: newRolling(period)}
}

func (m *SimpleMA) Name() string { return fmt.Sprintf("MA(%d)", m.period) }

func (m *SimpleMA) Warmup() int { return m.period }

func (m *SimpleMA) Reset() { m.win.reset() }

func (m *SimpleMA) Update(b market.Bar) { m.win.push(b.Close) }

func (m *SimpleMA) Ready() bool {
	_, ok := m.win.mean()
	return ok
}

func (m *SimpleMA) Value() float64 {
	v, ok := m.win.mean()
	if !ok {
		return 0
	}
	return v
}

// ExponentialMA is a streaming exponential moving average of closes. It is
// seeded with the mean of the first full window, so a NaN during warm-up
// delays the seed instead of poisoning it.
type ExponentialMA struct {
	period int
	alpha  float64
	seed   rolling
	ema    float64
	ready  bool
}

// NewEMA returns an ExponentialMA with smoothing 2/(period+1).
func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period: period,
		alpha:  2.0 / float64(period+1),
		seed:   newRolling(period),
	}
}

func (e *ExponentialMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }

func (e *ExponentialMA) Warmup() int { return e.period }

func (e *ExponentialMA) Reset() {
	e.seed.reset()
	e.ema, e.ready = 0, false
}

func (e *ExponentialMA) Update(b market.Bar) { e.add(b.Close) }

func (e *ExponentialMA) add(x float64) {
	if e.ready {
		e.ema += (x - e.ema) * e.alpha
		return
	}
	e.seed.push(x)
	if v, ok := e.seed.mean(); ok {
		e.ema, e.ready = v, true
	}
}

func (e *ExponentialMA) Ready() bool { return e.ready }

func (e *ExponentialMA) Value() float64 {
	if !e.ready {
		return 0
	}
	return e.ema
}
