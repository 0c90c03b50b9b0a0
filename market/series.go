package market

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/backcast/broker"
)

// Reserved column names; extra columns cannot shadow them.
var reserved = map[string]bool{
	"time": true, "open": true, "high": true, "low": true, "close": true, "volume": true,
}

// Series is the read-only price history of one symbol plus any indicator
// columns the strategy appends before the run starts.
type Series struct {
	Symbol string

	bars    []Bar
	columns map[string][]float64
	names   []string
}

// NewSeries checks the structure of bars (non-empty, strictly increasing
// timestamps) and takes ownership of the slice. Price values are checked by
// Validate so callers can decide when bad prices are rejected.
func NewSeries(symbol string, bars []Bar) (*Series, error) {
	if symbol == "" {
		return nil, broker.Invalid("symbol", "is required")
	}
	if len(bars) == 0 {
		return nil, broker.Invalid(symbol, "no bars")
	}
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Time, bars[i].Time
		if cur.Equal(prev) {
			return nil, broker.Invalid(symbol, "duplicate timestamp %s at row %d", cur.Format(time.RFC3339), i)
		}
		if cur.Before(prev) {
			return nil, broker.Invalid(symbol, "timestamps not increasing at row %d (%s after %s)",
				i, cur.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return &Series{
		Symbol:  symbol,
		bars:    bars,
		columns: make(map[string][]float64),
	}, nil
}

// Validate reports the first bar with a missing or inconsistent price.
func (s *Series) Validate() error {
	for i, b := range s.bars {
		if p := b.Problem(); p != "" {
			return broker.Invalid(s.Symbol, "row %d (%s): %s", i, b.Time.Format(time.RFC3339), p)
		}
	}
	return nil
}

func (s *Series) Len() int          { return len(s.bars) }
func (s *Series) Bar(i int) Bar     { return s.bars[i] }
func (s *Series) First() Bar        { return s.bars[0] }
func (s *Series) Last() Bar         { return s.bars[len(s.bars)-1] }
func (s *Series) Columns() []string { return append([]string(nil), s.names...) }

// Closes returns a copy of the close prices, convenient for indicators.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// AddColumn attaches an indicator column. It must have one value per bar;
// NaN marks warm-up values.
func (s *Series) AddColumn(name string, values []float64) error {
	if name == "" || reserved[name] {
		return broker.Invalid("column", "name %q is reserved or empty", name)
	}
	if len(values) != len(s.bars) {
		return broker.Invalid("column "+name, "has %d values, series has %d bars", len(values), len(s.bars))
	}
	if _, ok := s.columns[name]; !ok {
		s.names = append(s.names, name)
	}
	s.columns[name] = append([]float64(nil), values...)
	return nil
}

// Clone copies the series. Bars are shared, columns are not, so a clone
// can take new indicator columns without touching the original.
func (s *Series) Clone() *Series {
	c := &Series{
		Symbol:  s.Symbol,
		bars:    s.bars,
		columns: make(map[string][]float64, len(s.columns)),
		names:   append([]string(nil), s.names...),
	}
	for k, v := range s.columns {
		c.columns[k] = v
	}
	return c
}

// Value returns column name at bar i.
func (s *Series) Value(name string, i int) (float64, bool) {
	col, ok := s.columns[name]
	if !ok || i < 0 || i >= len(col) {
		return math.NaN(), false
	}
	return col[i], true
}

// IndexOf finds the bar stamped exactly t.
func (s *Series) IndexOf(t time.Time) (int, bool) {
	i := sort.Search(len(s.bars), func(i int) bool { return !s.bars[i].Time.Before(t) })
	if i < len(s.bars) && s.bars[i].Time.Equal(t) {
		return i, true
	}
	return -1, false
}

// Until returns the window of bars at or before t.
func (s *Series) Until(t time.Time) Window {
	n := sort.Search(len(s.bars), func(i int) bool { return s.bars[i].Time.After(t) })
	return Window{s: s, n: n}
}

// Window returns a view of the first n bars.
func (s *Series) Window(n int) Window {
	if n < 0 {
		n = 0
	}
	if n > len(s.bars) {
		n = len(s.bars)
	}
	return Window{s: s, n: n}
}

// Window is a look-ahead free view over a series: it exposes only the bars
// up to the current one.
type Window struct {
	s *Series
	n int
}

func (w Window) Symbol() string { return w.s.Symbol }
func (w Window) Len() int       { return w.n }
func (w Window) Bar(i int) Bar  { return w.s.bars[:w.n][i] }

// Last is the current bar.
func (w Window) Last() Bar { return w.s.bars[w.n-1] }

// Ago returns the bar k bars before the current one (0 is current).
func (w Window) Ago(k int) (Bar, bool) {
	i := w.n - 1 - k
	if k < 0 || i < 0 {
		return Bar{}, false
	}
	return w.s.bars[i], true
}

// Value reads column name k bars ago.
func (w Window) Value(name string, k int) (float64, bool) {
	i := w.n - 1 - k
	if k < 0 || i < 0 {
		return math.NaN(), false
	}
	return w.s.Value(name, i)
}

// Warm reports whether every indicator column has a value at the current bar.
func (w Window) Warm() bool {
	if w.n == 0 {
		return false
	}
	for _, name := range w.s.names {
		if math.IsNaN(w.s.columns[name][w.n-1]) {
			return false
		}
	}
	return true
}

// Closes copies the visible close prices.
func (w Window) Closes() []float64 {
	out := make([]float64, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.s.bars[i].Close
	}
	return out
}
