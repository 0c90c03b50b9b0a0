package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/internal/id"
	"github.com/rustyeddy/backcast/market"
)

func newLedger(cfg Config) *Ledger {
	return NewLedger(cfg, cfg.costs(), id.NewGenerator(1), NewTradeLog())
}

func entryOrder(side broker.Side, units float64) *broker.Order {
	return &broker.Order{ID: "O", Symbol: "X", Side: side, Kind: broker.Market, Units: units, Status: broker.Pending}
}

func TestLedgerOpenAndMark(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Margin = 0.5
	l := newLedger(cfg)
	bar := ohlc(0, 100, 100, 100, 100)

	res, err := l.ApplyFill(entryOrder(broker.Long, 10), 100, bar.Time, bar)
	require.NoError(t, err)
	require.NotNil(t, res.Opened)
	assert.Equal(t, 10.0, res.Opened.Units)

	assert.InDelta(t, 9500, l.Cash(), 1e-9)
	assert.InDelta(t, 500, l.MarginUsed(), 1e-9)

	assert.InDelta(t, 50, l.MarkToMarket(map[string]float64{"X": 105}), 1e-9)
	assert.InDelta(t, 10050, l.Equity(), 1e-9)
	assert.InDelta(t, 9550, l.FreeMargin(), 1e-9)

	mark, ok := l.Mark("X")
	require.True(t, ok)
	assert.Equal(t, 105.0, mark)
	assert.NotPanics(t, l.Check)
}

func TestLedgerNettingFIFO(t *testing.T) {
	t.Parallel()

	l := newLedger(DefaultConfig())
	bar := ohlc(0, 100, 100, 100, 100)

	_, err := l.ApplyFill(entryOrder(broker.Long, 3), 100, bar.Time, bar)
	require.NoError(t, err)
	_, err = l.ApplyFill(entryOrder(broker.Long, 5), 110, bar.Time, bar)
	require.NoError(t, err)

	res, err := l.ApplyFill(entryOrder(broker.Short, 4), 120, bar.Time, bar)
	require.NoError(t, err)
	assert.Nil(t, res.Opened)
	require.Len(t, res.Closed, 2)
	assert.Equal(t, 3.0, res.Closed[0].Units)
	assert.Equal(t, 100.0, res.Closed[0].EntryPrice)
	assert.Equal(t, 1.0, res.Closed[1].Units)
	assert.Equal(t, 110.0, res.Closed[1].EntryPrice)
	assert.InDelta(t, 3*20+1*10, res.RealizedPL, 1e-9)
	require.Len(t, res.Replaced, 1)

	open := l.OpenTrades("X")
	require.Len(t, open, 1)
	assert.Equal(t, 4.0, open[0].Units)
	assert.Equal(t, res.Replaced[res.Closed[1].ID], open[0].ID)

	pos := l.Position("X")
	assert.Equal(t, 4.0, pos.Size)
	assert.Equal(t, 110.0, pos.AvgEntryPrice)
	assert.NotPanics(t, l.Check)
}

func TestLedgerMarginError(t *testing.T) {
	t.Parallel()

	l := newLedger(DefaultConfig())
	bar := ohlc(0, 100, 100, 100, 100)

	_, err := l.ApplyFill(entryOrder(broker.Short, 101), 100, bar.Time, bar)
	require.Error(t, err)
	var me *broker.MarginError
	require.ErrorAs(t, err, &me)
	assert.InDelta(t, 10100, me.Required, 1e-9)
	assert.InDelta(t, 10000, me.Available, 1e-9)
	assert.Equal(t, 10000.0, l.Cash())
	assert.Empty(t, l.OpenTrades(""))
}

func TestLedgerLiquidateWorstFirst(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Hedging = true
	l := newLedger(cfg)
	bar := ohlc(0, 100, 100, 100, 100)

	_, err := l.ApplyFill(entryOrder(broker.Long, 10), 100, bar.Time, bar)
	require.NoError(t, err)
	_, err = l.ApplyFill(entryOrder(broker.Short, 10), 100, bar.Time, bar)
	require.NoError(t, err)

	l.MarkToMarket(map[string]float64{"X": 90})
	res := l.Liquidate(bar.Time, broker.ReasonLiquidation)
	require.Len(t, res.Closed, 2)
	assert.Equal(t, broker.Long, res.Closed[0].Side)
	assert.Equal(t, broker.ReasonLiquidation, res.Closed[0].Reason)
	assert.Empty(t, l.OpenTrades(""))
	assert.Zero(t, l.MarginUsed())
	assert.InDelta(t, 10000, l.Cash(), 1e-9)
}

func TestLedgerCheckPanicsOnDrift(t *testing.T) {
	t.Parallel()

	l := newLedger(DefaultConfig())
	bar := ohlc(0, 100, 100, 100, 100)
	_, err := l.ApplyFill(entryOrder(broker.Long, 1), 100, bar.Time, bar)
	require.NoError(t, err)

	l.marginUsed += 5
	assert.Panics(t, l.Check)
}

func TestCostModels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 101.0, RelativeSpread(0.01).Adjust(broker.Long, 100))
	assert.Equal(t, 99.0, RelativeSpread(0.01).Adjust(broker.Short, 100))

	assert.Equal(t, 2.0, RateCommission(0.01).Commission(-2, 100))
	assert.Equal(t, 7.0, FixedPlusRate{Fixed: 5, Rate: 0.01}.Commission(2, 100))

	bar := market.Bar{Open: 100, High: 104, Low: 96, Close: 101, Volume: 100}
	assert.InDelta(t, 0.4, RangeSlippage{Coeff: 0.1}.Slip(50, 100, bar), 1e-12)
	assert.InDelta(t, 0.8, RangeSlippage{Coeff: 0.1}.Slip(500, 100, bar), 1e-12)
	bar.Volume = 0
	assert.InDelta(t, 0.8, RangeSlippage{Coeff: 0.1}.Slip(1, 100, bar), 1e-12)
	assert.Zero(t, NoSlippage{}.Slip(1, 100, bar))

	c := Costs{
		Spread:     RelativeSpread(0),
		Slippage:   RangeSlippage{Coeff: 0.1},
		Commission: CommissionFunc(func(float64, float64) float64 { return -3 }),
	}
	assert.InDelta(t, 99.2, c.entryPrice(broker.Short, 1, 100, bar), 1e-12)
	assert.Zero(t, c.fee(1, 100), "negative fees clamp to zero")
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"cash", func(c *Config) { c.Cash = 0 }, "cash"},
		{"spread", func(c *Config) { c.Spread = -0.1 }, "spread"},
		{"commission", func(c *Config) { c.Commission = 1 }, "commission"},
		{"margin", func(c *Config) { c.Margin = 2 }, "margin"},
		{"slippage", func(c *Config) { c.Slippage = -1 }, "slippage"},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mod(&cfg)
		var ve *broker.ValidationError
		if assert.ErrorAs(t, cfg.Validate(), &ve, tt.name) {
			assert.Equal(t, tt.field, ve.Field)
		}
	}

	cfg := DefaultConfig()
	cfg.CommissionFixed = 1
	cfg.Slippage = 0.2
	costs := cfg.costs()
	assert.IsType(t, FixedPlusRate{}, costs.Commission)
	assert.IsType(t, RangeSlippage{}, costs.Slippage)
}
