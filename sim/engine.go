package sim

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/internal/id"
	"github.com/rustyeddy/backcast/journal"
	"github.com/rustyeddy/backcast/market"
)

// Rejection is an order the engine refused after accepting it, or a
// fractional order that resolved to zero units.
type Rejection struct {
	Time  time.Time
	Order broker.Order
	Err   error
}

// Engine replays bars and simulates a broker over them. One Engine is one
// run; it is not safe for concurrent use.
//
// Every call to Next advances the clock one instant, resolves the order
// books of the symbols that have a bar, applies the fills and values the
// account at the closes. Strategies trade through the broker.Broker methods
// between calls to Next.
type Engine struct {
	cfg      Config
	costs    Costs
	log      *zap.Logger
	journal  journal.Journal
	runID    string
	listener TradeClosedListener

	clock  *market.Clock
	series map[string]*market.Series
	books  map[string]*OrderBook
	ledger *Ledger
	trades *TradeLog
	ids    *id.Generator

	seq    uint64
	orders []*broker.Order
	prev   map[string]market.Bar

	peak       float64
	equity     []broker.EquityPoint
	journaled  int
	rejections []Rejection

	journalErr error
	outOfMoney bool
	finished   bool
}

var _ broker.Broker = (*Engine)(nil)

func NewEngine(cfg Config, data map[string]*market.Series, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, broker.Invalid("data", "no series given")
	}
	for sym, s := range data {
		if s == nil || s.Len() == 0 {
			return nil, broker.Invalid(sym, "empty series")
		}
		if s.Symbol != sym {
			return nil, broker.Invalid(sym, "series is for symbol %q", s.Symbol)
		}
	}

	defaults := cfg.costs()
	e := &Engine{
		cfg:    cfg,
		costs:  defaults,
		log:    zap.NewNop(),
		clock:  market.NewClock(data),
		series: data,
		books:  make(map[string]*OrderBook, len(data)),
		trades: NewTradeLog(),
		ids:    id.NewGenerator(cfg.Seed),
		prev:   make(map[string]market.Bar, len(data)),
		peak:   cfg.Cash,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.costs.Spread == nil {
		e.costs.Spread = defaults.Spread
	}
	if e.costs.Slippage == nil {
		e.costs.Slippage = defaults.Slippage
	}
	if e.costs.Commission == nil {
		e.costs.Commission = defaults.Commission
	}

	for sym := range data {
		e.books[sym] = NewOrderBook(sym)
	}
	e.ledger = NewLedger(cfg, e.costs, e.ids, e.trades)
	e.trades.OnClose(e.onTradeClosed)
	return e, nil
}

// Next processes one instant. It returns false when the data is exhausted,
// the account ran out of money, or the run was finished. A bar with a
// missing or inconsistent price aborts the run with a
// *broker.DataIntegrityError before anything is filled.
func (e *Engine) Next() (bool, error) {
	if e.finished || e.outOfMoney {
		return false, nil
	}
	if !e.clock.Next() {
		return false, nil
	}
	now := e.clock.Now()
	active := e.clock.Active()

	bars := make(map[string]market.Bar, len(active))
	for _, sym := range active {
		bar, _ := e.clock.Current(sym)
		if p := bar.Problem(); p != "" {
			e.finished = true
			return false, &broker.DataIntegrityError{Symbol: sym, Time: now, Reason: p}
		}
		bars[sym] = bar
	}

	closes := make(map[string]float64, len(active))
	for _, sym := range active {
		bar := bars[sym]
		var prev *market.Bar
		if p, ok := e.prev[sym]; ok {
			prev = &p
		}
		e.books[sym].Resolve(bar, prev, e.cfg.TradeOnClose, e.executor(bar))
		e.prev[sym] = bar
		closes[sym] = bar.Close
	}

	e.ledger.MarkToMarket(closes)
	if e.ledger.Equity() <= 0 {
		e.liquidate(now)
	}
	e.ledger.Check()
	e.recordEquity(now)

	if err := e.journalErr; err != nil {
		e.journalErr = nil
		return false, err
	}
	return true, nil
}

// Finish ends the run: with FinalizeTrades every open trade is closed at its
// symbol's last close, then every order still queued expires. It is safe to
// call more than once.
func (e *Engine) Finish() error {
	if e.finished {
		e.flushEquity(len(e.equity))
		return e.journalErr
	}
	e.finished = true

	if e.cfg.FinalizeTrades && !e.outOfMoney && len(e.ledger.OpenTrades("")) > 0 {
		var last time.Time
		for _, sym := range e.clock.Symbols() {
			bar, _, ok := e.clock.Latest(sym)
			if !ok {
				continue
			}
			res := e.ledger.Close(sym, 1, bar.Close, bar.Time, broker.ReasonFinalize)
			e.afterClose(res, nil)
			if bar.Time.After(last) {
				last = bar.Time
			}
		}
		e.ledger.Check()
		if n := len(e.equity); n > 0 {
			e.equity = e.equity[:n-1]
		}
		e.recordEquity(last)
	}

	var expired int
	for _, sym := range e.clock.Symbols() {
		expired += len(e.books[sym].Expire("end of data"))
	}
	e.flushEquity(len(e.equity))

	e.log.Info("run finished",
		zap.String("run", e.runID),
		zap.Int("trades", len(e.trades.Closed())),
		zap.Int("expired_orders", expired),
		zap.Float64("equity", e.ledger.Equity()),
		zap.Bool("out_of_money", e.outOfMoney),
	)
	return e.journalErr
}

func (e *Engine) executor(bar market.Bar) Executor {
	return func(o *broker.Order, price float64, at time.Time) (broker.Fill, bool) {
		if o.Leg == broker.Entry {
			return e.executeEntry(o, price, at, bar)
		}
		return e.executeExit(o, price, at)
	}
}

func (e *Engine) executeEntry(o *broker.Order, price float64, at time.Time, bar market.Bar) (broker.Fill, bool) {
	if e.cfg.ExclusiveOrders {
		e.afterClose(e.ledger.Close(o.Symbol, 1, price, at, broker.ReasonExclusive), nil)
	}

	res, err := e.ledger.ApplyFill(o, price, at, bar)
	e.afterClose(res, nil)
	if err != nil {
		e.books[o.Symbol].Cancel(o.ID, err.Error())
		e.reject(o, err)
		return broker.Fill{}, false
	}

	if t := res.Opened; t != nil {
		liveAt := bar.Time
		if o.Kind != broker.Market {
			liveAt = bar.Time.Add(time.Nanosecond)
		}
		if t.StopLoss != nil {
			e.newLeg(t, broker.StopLossLeg, *t.StopLoss, liveAt)
		}
		if t.TakeProfit != nil {
			e.newLeg(t, broker.TakeProfitLeg, *t.TakeProfit, liveAt)
		}
	}

	f := broker.Fill{OrderID: o.ID, Symbol: o.Symbol, Side: o.Side, Units: o.Units, Price: price, Time: at}
	e.log.Debug("order filled",
		zap.String("order", o.ID),
		zap.String("symbol", o.Symbol),
		zap.Stringer("side", o.Side),
		zap.Stringer("kind", o.Kind),
		zap.Float64("units", o.Units),
		zap.Float64("price", price),
		zap.Time("time", at),
	)
	return f, true
}

func (e *Engine) executeExit(o *broker.Order, price float64, at time.Time) (broker.Fill, bool) {
	t := e.ledger.Trade(o.ParentTrade)
	if t == nil {
		e.books[o.Symbol].Cancel(o.ID, "trade already closed")
		return broker.Fill{}, false
	}

	units, reason := t.Units, broker.ReasonClose
	switch o.Leg {
	case broker.StopLossLeg:
		reason = broker.ReasonStopLoss
	case broker.TakeProfitLeg:
		reason = broker.ReasonTakeProfit
	default:
		units = math.Min(o.Units, t.Units)
	}

	res := e.ledger.CloseTrade(t.ID, units, price, at, reason)
	e.afterClose(res, o)

	e.log.Debug("exit filled",
		zap.String("order", o.ID),
		zap.Stringer("leg", o.Leg),
		zap.String("symbol", o.Symbol),
		zap.Float64("units", units),
		zap.Float64("price", price),
		zap.Float64("pl", res.RealizedPL),
	)
	return broker.Fill{OrderID: o.ID, Symbol: o.Symbol, Side: o.Side, Units: units, Price: price, Time: at}, true
}

// afterClose keeps the books in step with the ledger: orders of a partially
// closed trade move to its remainder, orders of a closed trade are
// cancelled. except is the order being filled, if any.
func (e *Engine) afterClose(res FillResult, except *broker.Order) {
	for _, t := range res.Closed {
		book := e.books[t.Symbol]
		if to, ok := res.Replaced[t.ID]; ok {
			book.Retarget(t.ID, to)
			continue
		}
		for _, o := range book.ForTrade(t.ID) {
			if o != except {
				book.Cancel(o.ID, "trade closed")
			}
		}
	}
}

func (e *Engine) newLeg(t *broker.Trade, leg broker.Leg, price float64, liveAt time.Time) *broker.Order {
	o := &broker.Order{
		ID:          e.ids.Next(e.clock.Now()),
		Seq:         e.nextSeq(),
		Symbol:      t.Symbol,
		Side:        t.Side.Opposite(),
		Kind:        broker.Stop,
		Units:       t.Units,
		Tag:         t.Tag,
		Status:      broker.Pending,
		Submitted:   e.clock.Now(),
		Leg:         leg,
		ParentTrade: t.ID,
		OCOGroup:    t.ID,
	}
	if leg == broker.StopLossLeg {
		o.Stop = broker.Ptr(price)
	} else {
		o.Kind = broker.Limit
		o.Limit = broker.Ptr(price)
	}
	e.orders = append(e.orders, o)
	e.books[t.Symbol].Add(o, liveAt)
	return o
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

func (e *Engine) reject(o *broker.Order, err error) {
	e.rejections = append(e.rejections, Rejection{Time: e.clock.Now(), Order: *o, Err: err})
	e.log.Warn("order rejected",
		zap.String("order", o.ID),
		zap.String("symbol", o.Symbol),
		zap.Stringer("side", o.Side),
		zap.Float64("units", o.Units),
		zap.Error(err),
	)
}

func (e *Engine) liquidate(now time.Time) {
	equity := e.ledger.Equity()
	res := e.ledger.Liquidate(now, broker.ReasonLiquidation)
	e.afterClose(res, nil)
	for _, sym := range e.clock.Symbols() {
		book := e.books[sym]
		for _, o := range book.Active() {
			book.Cancel(o.ID, "out of money")
		}
	}
	e.outOfMoney = true
	e.log.Warn("out of money, liquidated",
		zap.String("run", e.runID),
		zap.Time("time", now),
		zap.Float64("equity", equity),
		zap.Int("trades", len(res.Closed)),
	)
}

func (e *Engine) recordEquity(at time.Time) {
	eq := e.ledger.Equity()
	if eq > e.peak {
		e.peak = eq
	}
	dd := 0.0
	if e.peak > 0 {
		dd = math.Max(0, (e.peak-eq)/e.peak)
	}
	p := broker.EquityPoint{
		Time:        at,
		Cash:        e.ledger.Cash(),
		Equity:      eq,
		MarginUsed:  e.ledger.MarginUsed(),
		DrawdownPct: dd,
	}
	e.equity = append(e.equity, p)

	// The latest point may still be re-valued by Finish.
	e.flushEquity(len(e.equity) - 1)
}

// flushEquity journals the equity points before index n not yet sent.
func (e *Engine) flushEquity(n int) {
	if e.journal == nil {
		e.journaled = n
		return
	}
	for ; e.journaled < n; e.journaled++ {
		p := e.equity[e.journaled]
		err := e.journal.RecordEquity(journal.EquitySnapshot{
			RunID:       e.runID,
			Time:        p.Time,
			Cash:        p.Cash,
			Equity:      p.Equity,
			MarginUsed:  p.MarginUsed,
			FreeMargin:  p.Equity - p.MarginUsed,
			DrawdownPct: p.DrawdownPct,
		})
		if err != nil && e.journalErr == nil {
			e.journalErr = fmt.Errorf("journal equity: %w", err)
		}
	}
}

func (e *Engine) onTradeClosed(t broker.Trade) {
	e.log.Debug("trade closed",
		zap.String("trade", t.ID),
		zap.String("symbol", t.Symbol),
		zap.String("reason", t.Reason),
		zap.Float64("units", t.Units),
		zap.Float64("entry", t.EntryPrice),
		zap.Float64("exit", t.ExitPrice),
		zap.Float64("pl", t.PL),
	)
	if e.journal != nil {
		err := e.journal.RecordTrade(journal.TradeRecord{
			RunID:      e.runID,
			TradeID:    t.ID,
			Symbol:     t.Symbol,
			Side:       t.Side.String(),
			Units:      t.Units,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			OpenTime:   t.EntryTime,
			CloseTime:  t.ExitTime,
			RealizedPL: t.PL,
			Commission: t.Commission,
			Reason:     t.Reason,
			Tag:        t.Tag,
		})
		if err != nil && e.journalErr == nil {
			e.journalErr = fmt.Errorf("journal trade %s: %w", t.ID, err)
		}
	}
	if e.listener != nil {
		e.listener.OnTradeClosed(t)
	}
}

// Run state accessors.

func (e *Engine) Config() Config      { return e.cfg }
func (e *Engine) Symbols() []string   { return e.clock.Symbols() }
func (e *Engine) Active() []string    { return e.clock.Active() }
func (e *Engine) Bars() int           { return e.clock.Len() }
func (e *Engine) OutOfMoney() bool    { return e.outOfMoney }
func (e *Engine) TradeLog() *TradeLog { return e.trades }

// Window is the look-ahead free view of symbol at the current instant.
func (e *Engine) Window(symbol string) (market.Window, bool) { return e.clock.Window(symbol) }

// Equity returns the equity curve so far, one point per instant.
func (e *Engine) Equity() []broker.EquityPoint {
	return append([]broker.EquityPoint(nil), e.equity...)
}

func (e *Engine) Rejections() []Rejection {
	return append([]Rejection(nil), e.rejections...)
}

// OrderHistory returns every order the run created, in submission order.
func (e *Engine) OrderHistory() []broker.Order {
	out := make([]broker.Order, len(e.orders))
	for i, o := range e.orders {
		out[i] = *o
	}
	return out
}
