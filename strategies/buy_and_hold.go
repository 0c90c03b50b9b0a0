package strategies

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/market"
)

// BuyAndHold opens one position per symbol on its first tradable bar and
// keeps it until the run ends.
type BuyAndHold struct {
	Symbol string // empty trades every symbol

	// Units is a signed absolute size; negative opens a short. When zero,
	// Fraction of free margin is split across the traded symbols.
	Units    float64
	Fraction float64

	share  float64
	opened map[string]bool
}

func NewBuyAndHold(p Params) (Strategy, error) {
	s := &BuyAndHold{
		Units:    p.Get("units", 0),
		Fraction: p.Get("fraction", 0.99),
	}
	if s.Units == 0 && (s.Fraction <= 0 || s.Fraction > 1) {
		return nil, broker.Invalid("fraction", "must be in (0, 1], got %g", s.Fraction)
	}
	return s, nil
}

func (s *BuyAndHold) Name() string { return "buy-and-hold" }

func (s *BuyAndHold) Init(data map[string]*market.Series) error {
	s.opened = make(map[string]bool)
	n := len(data)
	if s.Symbol != "" {
		if _, ok := data[s.Symbol]; !ok {
			return fmt.Errorf("buy-and-hold: no data for %q", s.Symbol)
		}
		n = 1
	}
	s.share = s.Fraction / math.Max(1, float64(n))
	return nil
}

func (s *BuyAndHold) Next(ctx context.Context, b broker.Broker, w market.Window) error {
	sym := w.Symbol()
	if s.Symbol != "" && sym != s.Symbol {
		return nil
	}
	if s.opened[sym] {
		return nil
	}

	req := broker.OrderRequest{Symbol: sym, Side: broker.Long, Tag: "buy-and-hold"}
	switch {
	case s.Units > 0:
		req.Size = broker.Units(s.Units)
	case s.Units < 0:
		req.Side = broker.Short
		req.Size = broker.Units(-s.Units)
	default:
		req.Size = broker.Fraction(s.share)
	}

	if _, err := b.Submit(req); err != nil {
		return fmt.Errorf("buy-and-hold %s: %w", sym, err)
	}
	s.opened[sym] = true
	return nil
}
