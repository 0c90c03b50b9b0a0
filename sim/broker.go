package sim

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/backcast/broker"
)

func (e *Engine) Now() time.Time { return e.clock.Now() }

func (e *Engine) Account() broker.Account {
	eq := e.ledger.Equity()
	return broker.Account{
		Cash:       e.ledger.Cash(),
		Equity:     eq,
		PeakEquity: math.Max(e.peak, eq),
		MarginUsed: e.ledger.MarginUsed(),
	}
}

func validPrice(name string, p *float64) error {
	if p == nil {
		return nil
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) || *p <= 0 {
		return broker.Invalid(name, "must be a positive price, got %v", *p)
	}
	return nil
}

// Submit validates req and queues it. Nothing is touched when validation
// fails. A fractional size is resolved to whole units against the free
// margin now; when that yields zero units the order is recorded as
// cancelled and a *broker.MarginError is returned.
func (e *Engine) Submit(req broker.OrderRequest) (broker.Order, error) {
	if e.finished || e.outOfMoney {
		return broker.Order{}, broker.Invalid("engine", "run has ended")
	}
	book, ok := e.books[req.Symbol]
	if !ok {
		return broker.Order{}, broker.Invalid("symbol", "unknown symbol %q", req.Symbol)
	}
	if !req.Side.Valid() {
		return broker.Order{}, broker.Invalid("side", "must be long or short, got %v", req.Side)
	}
	if err := req.Size.Validate(); err != nil {
		return broker.Order{}, err
	}
	for _, p := range []struct {
		name  string
		price *float64
	}{
		{"limit", req.Limit},
		{"stop", req.Stop},
		{"stop_loss", req.StopLoss},
		{"take_profit", req.TakeProfit},
	} {
		if err := validPrice(p.name, p.price); err != nil {
			return broker.Order{}, err
		}
	}

	last, _, ok := e.clock.Latest(req.Symbol)
	if !ok {
		return broker.Order{}, broker.Invalid("symbol", "%s has no price yet", req.Symbol)
	}
	if err := checkTrigger(req, last.Close); err != nil {
		return broker.Order{}, err
	}
	ref := last.Close
	switch {
	case req.Limit != nil:
		ref = *req.Limit
	case req.Stop != nil:
		ref = *req.Stop
	}
	if err := checkBracket(req.Side, ref, req.StopLoss, req.TakeProfit); err != nil {
		return broker.Order{}, err
	}

	if e.cfg.ExclusiveOrders {
		if pending := book.Entries(); len(pending) > 0 {
			return broker.Order{}, broker.Invalid("exclusive_orders",
				"%s already has pending order %s", req.Symbol, pending[0].ID)
		}
	}

	now := e.clock.Now()
	o := &broker.Order{
		ID:         e.ids.Next(now),
		Seq:        e.nextSeq(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Kind:       req.Kind(),
		Units:      req.Size.Value(),
		Limit:      req.Limit,
		Stop:       req.Stop,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Tag:        req.Tag,
		Status:     broker.Pending,
		Submitted:  now,
	}
	e.orders = append(e.orders, o)

	if req.Size.IsFraction() {
		o.Units = e.fractionUnits(req.Side, req.Size.Value(), ref)
		if o.Units < 1 {
			free := e.ledger.FreeMargin()
			err := &broker.MarginError{
				OrderID:   o.ID,
				Symbol:    o.Symbol,
				Required:  e.costs.Spread.Adjust(req.Side, ref) * e.cfg.Margin,
				Available: free * req.Size.Value(),
			}
			o.Units = 0
			o.Status = broker.Cancelled
			o.Note = err.Error()
			e.reject(o, err)
			return *o, err
		}
	}

	book.Add(o, time.Time{})
	e.log.Debug("order submitted",
		zap.String("order", o.ID),
		zap.String("symbol", o.Symbol),
		zap.Stringer("side", o.Side),
		zap.Stringer("kind", o.Kind),
		zap.Float64("units", o.Units),
		zap.String("tag", o.Tag),
	)
	return *o, nil
}

// checkTrigger rejects limit and stop prices on the wrong side of the
// market: a buy limit above it, a buy stop at or below it, and the mirror
// image for sells. A stop-limit's limit may not be worse than its stop.
func checkTrigger(req broker.OrderRequest, market float64) error {
	long := req.Side == broker.Long
	if req.Stop != nil {
		stop := *req.Stop
		if long && stop <= market {
			return broker.Invalid("stop", "buy stop %v must be above the market %v", stop, market)
		}
		if !long && stop >= market {
			return broker.Invalid("stop", "sell stop %v must be below the market %v", stop, market)
		}
		if req.Limit != nil {
			limit := *req.Limit
			if long && limit < stop {
				return broker.Invalid("limit", "buy stop-limit %v must not be below its stop %v", limit, stop)
			}
			if !long && limit > stop {
				return broker.Invalid("limit", "sell stop-limit %v must not be above its stop %v", limit, stop)
			}
		}
		return nil
	}
	if req.Limit != nil {
		limit := *req.Limit
		if long && limit > market {
			return broker.Invalid("limit", "buy limit %v must not be above the market %v", limit, market)
		}
		if !long && limit < market {
			return broker.Invalid("limit", "sell limit %v must not be below the market %v", limit, market)
		}
	}
	return nil
}

// checkBracket requires stop-loss < entry < take-profit for longs and the
// mirror image for shorts.
func checkBracket(side broker.Side, entry float64, sl, tp *float64) error {
	if side == broker.Long {
		if sl != nil && *sl >= entry {
			return broker.Invalid("stop_loss", "long stop-loss %v must be below entry %v", *sl, entry)
		}
		if tp != nil && *tp <= entry {
			return broker.Invalid("take_profit", "long take-profit %v must be above entry %v", *tp, entry)
		}
		return nil
	}
	if sl != nil && *sl <= entry {
		return broker.Invalid("stop_loss", "short stop-loss %v must be above entry %v", *sl, entry)
	}
	if tp != nil && *tp >= entry {
		return broker.Invalid("take_profit", "short take-profit %v must be below entry %v", *tp, entry)
	}
	return nil
}

// fractionUnits sizes an order to spend fraction f of the free margin at
// price ref, including spread and commission.
func (e *Engine) fractionUnits(side broker.Side, f, ref float64) float64 {
	budget := f * e.ledger.FreeMargin()
	if budget <= 0 {
		return 0
	}
	price := e.costs.Spread.Adjust(side, ref)
	fixed := e.costs.fee(0, price)
	perUnit := price*e.cfg.Margin + e.costs.fee(1, price) - fixed
	if perUnit <= 0 {
		return 0
	}
	cost := func(u float64) float64 { return u*price*e.cfg.Margin + e.costs.fee(u, price) }

	u := math.Floor((budget - fixed) / perUnit)
	for u > 0 && cost(u) > budget {
		u--
	}
	return math.Max(u, 0)
}

// Cancel drops an active order. Cancelling a stop-loss or take-profit leg
// also clears it from the trade.
func (e *Engine) Cancel(orderID string) bool {
	for _, sym := range e.clock.Symbols() {
		book := e.books[sym]
		o := book.Get(orderID)
		if o == nil {
			continue
		}
		if t := e.ledger.Trade(o.ParentTrade); t != nil {
			switch o.Leg {
			case broker.StopLossLeg:
				t.StopLoss = nil
			case broker.TakeProfitLeg:
				t.TakeProfit = nil
			}
		}
		return book.Cancel(orderID, "cancelled")
	}
	return false
}

// Orders lists active orders of symbol, or of every symbol when empty.
func (e *Engine) Orders(symbol string) []broker.Order {
	var out []broker.Order
	for _, sym := range e.clock.Symbols() {
		if symbol != "" && sym != symbol {
			continue
		}
		for _, o := range e.books[sym].Active() {
			out = append(out, *o)
		}
	}
	return out
}

func (e *Engine) Position(symbol string) broker.Position { return e.ledger.Position(symbol) }

func (e *Engine) Positions(symbol string) []broker.Position { return e.ledger.Positions(symbol) }

// Trades lists open trades of symbol, or all open trades when empty.
func (e *Engine) Trades(symbol string) []broker.Trade {
	var out []broker.Trade
	for _, t := range e.ledger.OpenTrades(symbol) {
		out = append(out, *t)
	}
	return out
}

func validPortion(portion float64) error {
	if math.IsNaN(portion) || portion <= 0 || portion > 1 {
		return broker.Invalid("portion", "must be in (0, 1], got %v", portion)
	}
	return nil
}

// CloseTrade queues a market order closing portion of the trade's current
// size. Closing a trade that is no longer open, or that is already fully
// covered by queued closes, does nothing.
func (e *Engine) CloseTrade(tradeID string, portion float64) error {
	if err := validPortion(portion); err != nil {
		return err
	}
	t := e.ledger.Trade(tradeID)
	if t == nil {
		return nil
	}
	e.queueClose(t, portion)
	return nil
}

func (e *Engine) queueClose(t *broker.Trade, portion float64) bool {
	book := e.books[t.Symbol]
	var queued float64
	for _, o := range book.ForTrade(t.ID) {
		if o.Leg == broker.CloseLeg {
			queued += o.Units
		}
	}
	units := math.Min(portion*t.Units, t.Units-queued)
	if units <= epsilon {
		return false
	}

	now := e.clock.Now()
	o := &broker.Order{
		ID:          e.ids.Next(now),
		Seq:         e.nextSeq(),
		Symbol:      t.Symbol,
		Side:        t.Side.Opposite(),
		Kind:        broker.Market,
		Units:       units,
		Tag:         t.Tag,
		Status:      broker.Pending,
		Submitted:   now,
		Leg:         broker.CloseLeg,
		ParentTrade: t.ID,
	}
	e.orders = append(e.orders, o)
	book.Add(o, time.Time{})
	return true
}

// ClosePosition queues closes for portion of every open trade of symbol and
// returns the trades it targeted.
func (e *Engine) ClosePosition(symbol string, portion float64) ([]broker.Trade, error) {
	if err := validPortion(portion); err != nil {
		return nil, err
	}
	if _, ok := e.books[symbol]; !ok {
		return nil, broker.Invalid("symbol", "unknown symbol %q", symbol)
	}
	var out []broker.Trade
	for _, t := range e.ledger.OpenTrades(symbol) {
		if e.queueClose(t, portion) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (e *Engine) SetStopLoss(tradeID string, price *float64) error {
	return e.setLeg(tradeID, broker.StopLossLeg, price)
}

func (e *Engine) SetTakeProfit(tradeID string, price *float64) error {
	return e.setLeg(tradeID, broker.TakeProfitLeg, price)
}

// setLeg creates, moves or (price nil) removes a trade's contingent leg.
// New legs are live from the next bar.
func (e *Engine) setLeg(tradeID string, leg broker.Leg, price *float64) error {
	t := e.ledger.Trade(tradeID)
	if t == nil {
		return broker.Invalid("trade", "%q is not open", tradeID)
	}
	if err := validPrice(leg.String(), price); err != nil {
		return err
	}

	book := e.books[t.Symbol]
	existing := book.Leg(t.ID, leg)
	if price == nil {
		if existing != nil {
			book.Cancel(existing.ID, "removed")
		}
	} else if existing != nil {
		if leg == broker.StopLossLeg {
			existing.Stop = broker.Ptr(*price)
		} else {
			existing.Limit = broker.Ptr(*price)
		}
	} else {
		e.newLeg(t, leg, *price, e.clock.Now().Add(time.Nanosecond))
	}

	var p *float64
	if price != nil {
		p = broker.Ptr(*price)
	}
	if leg == broker.StopLossLeg {
		t.StopLoss = p
	} else {
		t.TakeProfit = p
	}
	return nil
}
