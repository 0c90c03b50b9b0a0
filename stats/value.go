package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Value is a statistic that may be undefined: a ratio over zero variance, a
// trade metric without trades, anything over an empty curve.
type Value[T any] struct {
	Value T
	Valid bool
}

func Of[T any](v T) Value[T] { return Value[T]{Value: v, Valid: true} }

func None[T any]() Value[T] { return Value[T]{} }

// Or returns the value, or def when undefined.
func (v Value[T]) Or(def T) T {
	if !v.Valid {
		return def
	}
	return v.Value
}

func (v Value[T]) String() string {
	if !v.Valid {
		return "n/a"
	}
	switch x := any(v.Value).(type) {
	case float64:
		return fmt.Sprintf("%.4f", x)
	case time.Duration:
		return x.String()
	}
	return fmt.Sprint(v.Value)
}

// MarshalJSON writes null for undefined values.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Value)
}

// Float returns the float, NaN when undefined. Used by the journal, which
// stores undefined metrics as NULL.
func Float(v Value[float64]) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Value
}

// finite wraps x, undefined when it is NaN or infinite.
func finite(x float64) Value[float64] {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return None[float64]()
	}
	return Of(x)
}
