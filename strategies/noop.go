package strategies

import (
	"context"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/market"
)

// Noop does nothing.
type Noop struct{}

func (Noop) Name() string                         { return "noop" }
func (Noop) Init(map[string]*market.Series) error { return nil }

func (Noop) Next(ctx context.Context, b broker.Broker, w market.Window) error {
	_ = ctx
	_ = b
	_ = w
	return nil
}
