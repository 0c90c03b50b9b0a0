package broker

import (
	"fmt"
	"math"
	"time"
)

// Side: +1 long, -1 short
type Side int8

const (
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return fmt.Sprintf("side(%d)", int8(s))
}

func (s Side) Opposite() Side { return -s }

func (s Side) Valid() bool { return s == Long || s == Short }

type Kind uint8

const (
	Market Kind = iota
	Limit
	Stop
	StopLimit
)

func (k Kind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop-limit"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type Status uint8

const (
	Pending Status = iota
	Triggered
	Filled
	Cancelled
	Expired
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Triggered:
		return "triggered"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Active reports whether the order can still execute.
func (s Status) Active() bool { return s == Pending || s == Triggered }

// Leg identifies what an order does. Anything but Entry is attached to an
// open trade through ParentTrade.
type Leg uint8

const (
	Entry Leg = iota
	StopLossLeg
	TakeProfitLeg
	CloseLeg
)

func (l Leg) String() string {
	switch l {
	case StopLossLeg:
		return "stop-loss"
	case TakeProfitLeg:
		return "take-profit"
	case CloseLeg:
		return "close"
	}
	return "entry"
}

// Size is either an absolute number of units or a fraction of available
// equity. Fractions are turned into units when the order is submitted.
type Size struct {
	value    float64
	fraction bool
}

// Units requests an absolute quantity. Fractional quantities are allowed.
func Units(x float64) Size { return Size{value: x} }

// Fraction requests f of the available margin-adjusted equity, 0 < f <= 1.
func Fraction(f float64) Size { return Size{value: f, fraction: true} }

func (s Size) Value() float64   { return s.value }
func (s Size) IsFraction() bool { return s.fraction }

func (s Size) Validate() error {
	if math.IsNaN(s.value) || math.IsInf(s.value, 0) {
		return Invalid("size", "must be finite, got %v", s.value)
	}
	if s.fraction {
		if s.value <= 0 || s.value > 1 {
			return Invalid("size", "fraction must be in (0, 1], got %v", s.value)
		}
		return nil
	}
	if s.value <= 0 {
		return Invalid("size", "units must be positive, got %v", s.value)
	}
	return nil
}

func (s Size) String() string {
	if s.fraction {
		return fmt.Sprintf("%.4g of equity", s.value)
	}
	return fmt.Sprintf("%g units", s.value)
}

// OrderRequest is what a strategy submits. Limit and Stop pick the order
// kind: neither is market, both is stop-limit.
type OrderRequest struct {
	Symbol string
	Side   Side
	Size   Size

	Limit *float64
	Stop  *float64

	// Optional bracket, attached to the trade the order opens.
	StopLoss   *float64
	TakeProfit *float64

	Tag string
}

func (r OrderRequest) Kind() Kind {
	switch {
	case r.Limit != nil && r.Stop != nil:
		return StopLimit
	case r.Limit != nil:
		return Limit
	case r.Stop != nil:
		return Stop
	}
	return Market
}

// Order is a pending or historical order owned by the engine.
type Order struct {
	ID     string
	Seq    uint64 // submission sequence, the tie-breaker for same-bar fills
	Symbol string
	Side   Side
	Kind   Kind
	Units  float64 // resolved absolute quantity, always positive

	Limit *float64
	Stop  *float64

	StopLoss   *float64
	TakeProfit *float64

	Tag       string
	Status    Status
	Submitted time.Time

	// Contingent orders only.
	Leg         Leg
	ParentTrade string
	OCOGroup    string

	Note string // why it was cancelled or expired
}

func (o Order) IsContingent() bool { return o.Leg != Entry }

// Fill is an executed order at the book's raw execution price. Cost models
// (spread, slippage) are applied by the ledger.
type Fill struct {
	OrderID string
	Symbol  string
	Side    Side
	Units   float64
	Price   float64
	Time    time.Time
}

func (f Fill) SignedUnits() float64 { return float64(f.Side) * f.Units }

// Ptr is a small helper for building requests with optional prices.
func Ptr(x float64) *float64 { return &x }
