package market

import (
	"sort"
	"time"
)

// Clock steps through the sorted union of all series timestamps. At each
// instant the symbols that have a bar are reported in lexicographic order;
// symbols without a bar at that instant are skipped.
type Clock struct {
	symbols []string
	series  map[string]*Series
	times   []time.Time

	pos    int            // index into times, -1 before the first Next
	cursor map[string]int // last consumed bar index per symbol
	active []string
}

func NewClock(series map[string]*Series) *Clock {
	c := &Clock{
		series: series,
		cursor: make(map[string]int, len(series)),
		pos:    -1,
	}

	seen := make(map[int64]time.Time)
	for sym, s := range series {
		c.symbols = append(c.symbols, sym)
		c.cursor[sym] = -1
		for _, b := range s.bars {
			seen[b.Time.UnixNano()] = b.Time
		}
	}
	sort.Strings(c.symbols)

	c.times = make([]time.Time, 0, len(seen))
	for _, t := range seen {
		c.times = append(c.times, t)
	}
	sort.Slice(c.times, func(i, j int) bool { return c.times[i].Before(c.times[j]) })
	return c
}

// Next advances to the next instant. It returns false once exhausted.
func (c *Clock) Next() bool {
	if c.pos+1 >= len(c.times) {
		c.pos = len(c.times)
		c.active = nil
		return false
	}
	c.pos++
	now := c.times[c.pos]

	c.active = c.active[:0]
	for _, sym := range c.symbols {
		s := c.series[sym]
		next := c.cursor[sym] + 1
		if next < len(s.bars) && s.bars[next].Time.Equal(now) {
			c.cursor[sym] = next
			c.active = append(c.active, sym)
		}
	}
	return true
}

func (c *Clock) Now() time.Time {
	if c.pos < 0 || c.pos >= len(c.times) {
		return time.Time{}
	}
	return c.times[c.pos]
}

// Index is the number of instants consumed minus one.
func (c *Clock) Index() int { return c.pos }
func (c *Clock) Len() int   { return len(c.times) }

// Done reports whether the last instant has been consumed.
func (c *Clock) Done() bool { return c.pos >= len(c.times)-1 }

// Symbols returns every symbol on the clock, sorted.
func (c *Clock) Symbols() []string { return append([]string(nil), c.symbols...) }

// Active lists symbols with a bar at the current instant, sorted.
func (c *Clock) Active() []string { return append([]string(nil), c.active...) }

// Current returns the symbol's bar at the current instant.
func (c *Clock) Current(symbol string) (Bar, bool) {
	i, ok := c.cursor[symbol]
	if !ok || i < 0 {
		return Bar{}, false
	}
	b := c.series[symbol].bars[i]
	if !b.Time.Equal(c.Now()) {
		return Bar{}, false
	}
	return b, true
}

// Latest returns the most recent bar of the symbol at or before now, and
// its index in the series.
func (c *Clock) Latest(symbol string) (Bar, int, bool) {
	i, ok := c.cursor[symbol]
	if !ok || i < 0 {
		return Bar{}, -1, false
	}
	return c.series[symbol].bars[i], i, true
}

// Window is the look-ahead free view of the symbol at the current instant.
func (c *Clock) Window(symbol string) (Window, bool) {
	i, ok := c.cursor[symbol]
	if !ok || i < 0 {
		return Window{}, false
	}
	return c.series[symbol].Window(i + 1), true
}
