package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/internal/id"
	"github.com/rustyeddy/backcast/market"
)

const epsilon = 1e-9

type posKey struct {
	symbol string
	side   broker.Side // zero when netting
}

// exposure is the running aggregate of the open trades under one key.
type exposure struct {
	size float64 // signed
	cost float64 // sum of units*entry
}

// FillResult describes what one fill did to the ledger.
type FillResult struct {
	Opened *broker.Trade
	Closed []broker.Trade

	// Replaced maps an open trade id to the id of the remainder that took
	// its place after a partial close.
	Replaced map[string]string

	RealizedPL float64
	Commission float64
}

func (r *FillResult) merge(o FillResult) {
	r.Closed = append(r.Closed, o.Closed...)
	for from, to := range o.Replaced {
		if r.Replaced == nil {
			r.Replaced = map[string]string{}
		}
		r.Replaced[from] = to
	}
	r.RealizedPL += o.RealizedPL
	r.Commission += o.Commission
}

// Ledger owns cash, open trades and positions. It prices fills through the
// cost models and keeps margin accounting consistent with the trades.
type Ledger struct {
	margin  float64
	hedging bool
	costs   Costs
	ids     *id.Generator
	log     *TradeLog

	cash       float64
	marginUsed float64
	open       []*broker.Trade // FIFO across all symbols
	exposures  map[posKey]*exposure
	marks      map[string]float64
}

func NewLedger(cfg Config, costs Costs, ids *id.Generator, log *TradeLog) *Ledger {
	return &Ledger{
		margin:    cfg.Margin,
		hedging:   cfg.Hedging,
		costs:     costs,
		ids:       ids,
		log:       log,
		cash:      cfg.Cash,
		exposures: make(map[posKey]*exposure),
		marks:     make(map[string]float64),
	}
}

func (l *Ledger) Cash() float64       { return l.cash }
func (l *Ledger) MarginUsed() float64 { return l.marginUsed }

// MarkToMarket records closing prices and returns the unrealized P&L of all
// open trades at the latest marks.
func (l *Ledger) MarkToMarket(prices map[string]float64) float64 {
	for sym, p := range prices {
		l.marks[sym] = p
	}
	return l.unrealized()
}

func (l *Ledger) Mark(symbol string) (float64, bool) {
	p, ok := l.marks[symbol]
	return p, ok
}

func (l *Ledger) unrealized() float64 {
	var u float64
	for _, t := range l.open {
		if mark, ok := l.marks[t.Symbol]; ok {
			u += t.UnrealizedPL(mark)
		}
	}
	return u
}

// Equity is cash plus posted margin plus unrealized P&L.
func (l *Ledger) Equity() float64 {
	return l.cash + l.marginUsed + l.unrealized()
}

func (l *Ledger) FreeMargin() float64 {
	return l.Equity() - l.marginUsed
}

func (l *Ledger) key(symbol string, side broker.Side) posKey {
	if l.hedging {
		return posKey{symbol: symbol, side: side}
	}
	return posKey{symbol: symbol}
}

// Trade returns the open trade with id.
func (l *Ledger) Trade(id string) *broker.Trade {
	for _, t := range l.open {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// OpenTrades lists open trades of symbol, or all when symbol is empty.
func (l *Ledger) OpenTrades(symbol string) []*broker.Trade {
	var out []*broker.Trade
	for _, t := range l.open {
		if symbol == "" || t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}

// Position aggregates every open trade of symbol into one signed position.
func (l *Ledger) Position(symbol string) broker.Position {
	p := broker.Position{Symbol: symbol}
	var cost float64
	for _, t := range l.open {
		if t.Symbol != symbol {
			continue
		}
		p.Size += t.Size()
		cost += t.Units * t.EntryPrice
		if t.StopLoss != nil || t.TakeProfit != nil {
			p.StopLoss, p.TakeProfit = t.StopLoss, t.TakeProfit
		}
	}
	if p.Size > 0 {
		p.Side = broker.Long
	} else if p.Size < 0 {
		p.Side = broker.Short
	}
	if units := l.units(symbol); units > 0 {
		p.AvgEntryPrice = cost / units
	}
	return p
}

func (l *Ledger) units(symbol string) float64 {
	var u float64
	for _, t := range l.open {
		if t.Symbol == symbol {
			u += t.Units
		}
	}
	return u
}

// Positions reports one entry per ledger key of symbol: a single net
// position, or one per side when hedging.
func (l *Ledger) Positions(symbol string) []broker.Position {
	if !l.hedging {
		if p := l.Position(symbol); p.IsOpen() {
			return []broker.Position{p}
		}
		return nil
	}
	var out []broker.Position
	for _, side := range []broker.Side{broker.Long, broker.Short} {
		ex, ok := l.exposures[posKey{symbol: symbol, side: side}]
		if !ok || math.Abs(ex.size) < epsilon {
			continue
		}
		p := broker.Position{
			Symbol:        symbol,
			Side:          side,
			Size:          ex.size,
			AvgEntryPrice: ex.cost / math.Abs(ex.size),
		}
		for _, t := range l.open {
			if t.Symbol == symbol && t.Side == side && (t.StopLoss != nil || t.TakeProfit != nil) {
				p.StopLoss, p.TakeProfit = t.StopLoss, t.TakeProfit
			}
		}
		out = append(out, p)
	}
	return out
}

// ApplyFill executes an entry order at the raw price. Without hedging
// opposite trades of the symbol are closed first, oldest first, and only the
// excess opens a new trade. The opening part is subject to the margin check;
// when it fails a *broker.MarginError is returned along with whatever the
// netting part already did.
func (l *Ledger) ApplyFill(o *broker.Order, raw float64, at time.Time, bar market.Bar) (FillResult, error) {
	var res FillResult
	need := o.Units

	if !l.hedging {
		for _, t := range l.OpenTrades(o.Symbol) {
			if need <= epsilon {
				break
			}
			if t.Side == o.Side {
				continue
			}
			part := math.Min(need, t.Units)
			res.merge(l.close(t, part, raw, at, broker.ReasonNetted))
			need -= part
		}
	}
	if need <= epsilon {
		return res, nil
	}

	price := l.costs.entryPrice(o.Side, need, raw, bar)
	fee := l.costs.fee(need, price)
	required := need*price*l.margin + fee
	if free := l.FreeMargin(); required > free+epsilon {
		return res, &broker.MarginError{
			OrderID:   o.ID,
			Symbol:    o.Symbol,
			Required:  required,
			Available: free,
		}
	}

	t := &broker.Trade{
		ID:         l.ids.Next(at),
		Symbol:     o.Symbol,
		Side:       o.Side,
		Units:      need,
		EntryTime:  at,
		EntryPrice: price,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Commission: fee,
		IsOpen:     true,
		Tag:        o.Tag,
		OrderID:    o.ID,
	}
	l.cash -= need*price*l.margin + fee
	l.marginUsed += need * price * l.margin
	l.open = append(l.open, t)
	l.expose(t, need, price)
	l.log.opened(t)

	res.Opened = t
	res.Commission += fee
	return res, nil
}

// CloseTrade closes units of an open trade at price. Units beyond the
// trade's size are clamped; an unknown or closed trade is a no-op.
func (l *Ledger) CloseTrade(tradeID string, units, price float64, at time.Time, reason string) FillResult {
	t := l.Trade(tradeID)
	if t == nil || units <= epsilon {
		return FillResult{}
	}
	return l.close(t, math.Min(units, t.Units), price, at, reason)
}

// Close closes portion of every open trade of symbol at price.
func (l *Ledger) Close(symbol string, portion, price float64, at time.Time, reason string) FillResult {
	var res FillResult
	for _, t := range l.OpenTrades(symbol) {
		res.merge(l.close(t, t.Units*portion, price, at, reason))
	}
	return res
}

func (l *Ledger) close(t *broker.Trade, units, price float64, at time.Time, reason string) FillResult {
	full := units >= t.Units-epsilon
	if full {
		units = t.Units
	}

	entryFee := t.Commission * units / t.Units
	fee := l.costs.fee(units, price)
	gross := float64(t.Side) * units * (price - t.EntryPrice)
	posted := units * t.EntryPrice * l.margin

	l.cash += posted + gross - fee
	l.marginUsed -= posted
	if math.Abs(l.marginUsed) < epsilon {
		l.marginUsed = 0
	}
	l.expose(t, -units, t.EntryPrice)

	res := FillResult{RealizedPL: gross - fee, Commission: fee}

	var remainder *broker.Trade
	if !full {
		r := *t
		r.ID = l.ids.Next(at)
		r.Units = t.Units - units
		r.Commission = t.Commission - entryFee
		remainder = &r
		res.Replaced = map[string]string{t.ID: r.ID}
	}

	t.Units = units
	t.ExitTime = at
	t.ExitPrice = price
	t.Commission = entryFee + fee
	t.PL = gross - entryFee - fee
	t.PLPct = t.PL / (units * t.EntryPrice)
	t.IsOpen = false
	t.Reason = reason

	for i, o := range l.open {
		if o != t {
			continue
		}
		if remainder != nil {
			l.open[i] = remainder
		} else {
			l.open = append(l.open[:i], l.open[i+1:]...)
		}
		break
	}
	if remainder != nil {
		l.log.opened(remainder)
	}
	l.log.closedTrade(t)

	res.Closed = append(res.Closed, *t)
	return res
}

func (l *Ledger) expose(t *broker.Trade, units, price float64) {
	k := l.key(t.Symbol, t.Side)
	ex, ok := l.exposures[k]
	if !ok {
		ex = &exposure{}
		l.exposures[k] = ex
	}
	ex.size += float64(t.Side) * units
	ex.cost += units * price
	if math.Abs(ex.size) < epsilon {
		delete(l.exposures, k)
	}
}

// Liquidate closes every open trade at its symbol's mark, worst unrealized
// result first.
func (l *Ledger) Liquidate(at time.Time, reason string) FillResult {
	open := append([]*broker.Trade(nil), l.open...)
	sort.SliceStable(open, func(i, j int) bool {
		return l.unrealizedOf(open[i]) < l.unrealizedOf(open[j])
	})
	var res FillResult
	for _, t := range open {
		price, ok := l.marks[t.Symbol]
		if !ok {
			price = t.EntryPrice
		}
		res.merge(l.close(t, t.Units, price, at, reason))
	}
	return res
}

func (l *Ledger) unrealizedOf(t *broker.Trade) float64 {
	if mark, ok := l.marks[t.Symbol]; ok {
		return t.UnrealizedPL(mark)
	}
	return 0
}

// Check panics with broker.InvariantViolation when positions, posted margin
// and open trades disagree.
func (l *Ledger) Check() {
	sizes := map[posKey]float64{}
	costs := map[posKey]float64{}
	var posted float64
	for _, t := range l.open {
		if !t.IsOpen || t.Units <= 0 {
			panic(broker.InvariantViolation{Reason: fmt.Sprintf("trade %s in open set is closed or empty", t.ID)})
		}
		k := l.key(t.Symbol, t.Side)
		sizes[k] += t.Size()
		costs[k] += t.Units * t.EntryPrice
		posted += t.Units * t.EntryPrice * l.margin
	}

	tol := func(x float64) float64 { return 1e-6 * math.Max(1, math.Abs(x)) }
	for k, ex := range l.exposures {
		if math.Abs(ex.size-sizes[k]) > tol(ex.size) || math.Abs(ex.cost-costs[k]) > tol(ex.cost) {
			panic(broker.InvariantViolation{Reason: fmt.Sprintf(
				"position %s/%s size %.8g cost %.8g, open trades %.8g cost %.8g",
				k.symbol, k.side, ex.size, ex.cost, sizes[k], costs[k])})
		}
	}
	for k, s := range sizes {
		if _, ok := l.exposures[k]; !ok && math.Abs(s) > tol(s) {
			panic(broker.InvariantViolation{Reason: fmt.Sprintf("open trades of %s/%s have no position", k.symbol, k.side)})
		}
	}
	if math.Abs(posted-l.marginUsed) > tol(posted) {
		panic(broker.InvariantViolation{Reason: fmt.Sprintf("margin used %.8g, open trades post %.8g", l.marginUsed, posted)})
	}
}
