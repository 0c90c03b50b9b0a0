// Package indicators provides technical analysis indicators for strategies.
//
// Batch functions (SMA, EMA, ATR) return one value per input bar with NaN
// during warm-up, the shape series columns expect. The streaming types
// implement Indicator and are fed one closed bar at a time.
package indicators

import "github.com/rustyeddy/backcast/market"

// Indicator computes a single streaming value from bars.
// It is deterministic and safe to use in replays and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "ATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* bar and updates internal state.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current value, 0 until Ready.
	Value() float64
}
