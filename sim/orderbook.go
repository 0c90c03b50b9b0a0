package sim

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/market"
)

// Executor applies a triggered order at price and time. It returns the fill
// and whether the order executed; a false return leaves the order status to
// the executor (usually cancelled with a note).
type Executor func(o *broker.Order, price float64, at time.Time) (broker.Fill, bool)

type entry struct {
	order  *broker.Order
	liveAt time.Time // bars stamped before liveAt do not see the order
}

// OrderBook holds the active orders of one symbol in submission order.
type OrderBook struct {
	Symbol string
	orders []entry
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{Symbol: symbol}
}

// Add queues o. Contingent legs pass the first bar time they may trigger at;
// entries pass the zero time.
func (b *OrderBook) Add(o *broker.Order, liveAt time.Time) {
	b.orders = append(b.orders, entry{order: o, liveAt: liveAt})
}

func (b *OrderBook) Len() int { return len(b.orders) }

// Active returns the queued orders in submission order.
func (b *OrderBook) Active() []*broker.Order {
	out := make([]*broker.Order, len(b.orders))
	for i, e := range b.orders {
		out[i] = e.order
	}
	return out
}

func (b *OrderBook) Get(id string) *broker.Order {
	for _, e := range b.orders {
		if e.order.ID == id {
			return e.order
		}
	}
	return nil
}

// Entries counts queued orders that are not attached to a trade.
func (b *OrderBook) Entries() []*broker.Order {
	var out []*broker.Order
	for _, e := range b.orders {
		if e.order.Leg == broker.Entry {
			out = append(out, e.order)
		}
	}
	return out
}

// ForTrade returns the orders attached to tradeID.
func (b *OrderBook) ForTrade(tradeID string) []*broker.Order {
	var out []*broker.Order
	for _, e := range b.orders {
		if e.order.ParentTrade == tradeID {
			out = append(out, e.order)
		}
	}
	return out
}

// Leg finds the active stop-loss or take-profit order of a trade.
func (b *OrderBook) Leg(tradeID string, leg broker.Leg) *broker.Order {
	for _, e := range b.orders {
		if e.order.ParentTrade == tradeID && e.order.Leg == leg {
			return e.order
		}
	}
	return nil
}

// Cancel marks the order cancelled and drops it. It reports false when the
// order is not queued here.
func (b *OrderBook) Cancel(id, note string) bool {
	for i, e := range b.orders {
		if e.order.ID == id {
			e.order.Status = broker.Cancelled
			e.order.Note = note
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return true
		}
	}
	return false
}

// CancelForTrade cancels every order attached to tradeID.
func (b *OrderBook) CancelForTrade(tradeID, note string) []*broker.Order {
	var out []*broker.Order
	for _, o := range b.ForTrade(tradeID) {
		if b.Cancel(o.ID, note) {
			out = append(out, o)
		}
	}
	return out
}

// Retarget moves orders attached to one trade onto another, used when a
// partial close replaces the open trade.
func (b *OrderBook) Retarget(from, to string) {
	for _, e := range b.orders {
		if e.order.ParentTrade == from {
			e.order.ParentTrade = to
			if e.order.OCOGroup == from {
				e.order.OCOGroup = to
			}
		}
	}
}

// Expire marks every queued order expired and empties the book.
func (b *OrderBook) Expire(note string) []*broker.Order {
	out := b.Active()
	for _, o := range out {
		o.Status = broker.Expired
		o.Note = note
	}
	b.orders = nil
	return out
}

// Resolve matches the queued orders against bar and hands every triggered
// order to exec. prev is the symbol's previous bar, nil on its first bar.
//
// Orders are processed in four passes: market (and close) orders, stops,
// limits (including stop-limits triggered in the stop pass), then the
// stop-loss/take-profit legs of open trades. Within a pass submission order
// wins. When both legs of one trade can trigger in the same bar the
// stop-loss is taken.
func (b *OrderBook) Resolve(bar market.Bar, prev *market.Bar, tradeOnClose bool, exec Executor) []broker.Fill {
	var fills []broker.Fill
	run := func(o *broker.Order, price float64, at time.Time) {
		f, ok := exec(o, price, at)
		if ok {
			o.Status = broker.Filled
			fills = append(fills, f)
		}
		b.drop(o)
	}

	// 1. market
	b.each(bar, func(o *broker.Order) bool {
		return o.Kind == broker.Market && o.Leg != broker.StopLossLeg && o.Leg != broker.TakeProfitLeg
	}, func(o *broker.Order) {
		if tradeOnClose && prev != nil {
			run(o, prev.Close, prev.Time)
			return
		}
		run(o, bar.Open, bar.Time)
	})

	// 2. stops
	b.each(bar, func(o *broker.Order) bool {
		return o.Leg == broker.Entry && o.Status == broker.Pending &&
			(o.Kind == broker.Stop || o.Kind == broker.StopLimit)
	}, func(o *broker.Order) {
		price, hit := stopFill(o.Side, *o.Stop, bar)
		switch {
		case !hit:
		case o.Kind == broker.StopLimit:
			o.Status = broker.Triggered
		default:
			run(o, price, bar.Time)
		}
	})

	// 3. limits
	b.each(bar, func(o *broker.Order) bool {
		return o.Leg == broker.Entry &&
			(o.Kind == broker.Limit || (o.Kind == broker.StopLimit && o.Status == broker.Triggered))
	}, func(o *broker.Order) {
		if price, hit := limitFill(o.Side, *o.Limit, bar); hit {
			run(o, price, bar.Time)
		}
	})

	// 4. stop-loss / take-profit
	var legs []*broker.Order
	for _, e := range b.orders {
		if !e.liveAt.After(bar.Time) && (e.order.Leg == broker.StopLossLeg || e.order.Leg == broker.TakeProfitLeg) {
			legs = append(legs, e.order)
		}
	}
	for _, o := range orderLegs(legs) {
		if !o.Status.Active() {
			continue
		}
		var (
			price float64
			hit   bool
		)
		if o.Leg == broker.StopLossLeg {
			price, hit = stopFill(o.Side, *o.Stop, bar)
		} else {
			price, hit = limitFill(o.Side, *o.Limit, bar)
		}
		if hit {
			run(o, price, bar.Time)
		}
	}

	return fills
}

// each calls fn for the live orders matching keep, in submission order.
// The set is fixed up front; orders that stop being active while the pass
// runs (filled, or cancelled as a side effect of another fill) are skipped.
func (b *OrderBook) each(bar market.Bar, keep func(*broker.Order) bool, fn func(*broker.Order)) {
	var batch []*broker.Order
	for _, e := range b.orders {
		if e.liveAt.After(bar.Time) || !keep(e.order) {
			continue
		}
		batch = append(batch, e.order)
	}
	for _, o := range batch {
		if o.Status.Active() {
			fn(o)
		}
	}
}

func (b *OrderBook) drop(o *broker.Order) {
	for i, e := range b.orders {
		if e.order == o {
			if !o.Status.Active() {
				b.orders = append(b.orders[:i], b.orders[i+1:]...)
			}
			return
		}
	}
}

// orderLegs groups legs by OCO group, groups ordered by their earliest
// submission, stop-loss first inside a group.
func orderLegs(legs []*broker.Order) []*broker.Order {
	first := map[string]uint64{}
	for _, o := range legs {
		if s, ok := first[o.OCOGroup]; !ok || o.Seq < s {
			first[o.OCOGroup] = o.Seq
		}
	}
	out := append([]*broker.Order(nil), legs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OCOGroup != b.OCOGroup {
			return first[a.OCOGroup] < first[b.OCOGroup]
		}
		if a.Leg != b.Leg {
			return a.Leg == broker.StopLossLeg
		}
		return a.Seq < b.Seq
	})
	return out
}

// stopFill: a buy stop triggers when the high reaches it, a sell stop when
// the low does. A bar that opens through the stop fills at the open.
func stopFill(side broker.Side, stop float64, bar market.Bar) (float64, bool) {
	if side == broker.Long {
		if bar.High >= stop {
			return math.Max(stop, bar.Open), true
		}
		return 0, false
	}
	if bar.Low <= stop {
		return math.Min(stop, bar.Open), true
	}
	return 0, false
}

// limitFill: a buy limit fills when the low reaches it, a sell limit when the
// high does. The limit price is used when the bar traded through it;
// otherwise the whole bar was on the better side and the open is used.
func limitFill(side broker.Side, limit float64, bar market.Bar) (float64, bool) {
	if side == broker.Long {
		if bar.Low > limit {
			return 0, false
		}
	} else if bar.High < limit {
		return 0, false
	}
	if limit >= bar.Low && limit <= bar.High {
		return limit, true
	}
	return bar.Open, true
}
