package strategies

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/market"
)

// mockBroker records what a strategy asks for. Submitted orders open a
// position immediately so reversal logic can be exercised.
type mockBroker struct {
	acct      broker.Account
	positions map[string]broker.Position

	submitted []broker.OrderRequest
	closed    []string
	submitErr error
}

func newMockBroker() *mockBroker {
	return &mockBroker{
		acct:      broker.Account{Cash: 10000, Equity: 10000, PeakEquity: 10000},
		positions: make(map[string]broker.Position),
	}
}

var _ broker.Broker = (*mockBroker)(nil)

func (m *mockBroker) Account() broker.Account { return m.acct }
func (m *mockBroker) Now() time.Time          { return time.Time{} }

func (m *mockBroker) Submit(req broker.OrderRequest) (broker.Order, error) {
	m.submitted = append(m.submitted, req)
	if m.submitErr != nil {
		return broker.Order{}, m.submitErr
	}
	m.positions[req.Symbol] = broker.Position{
		Symbol: req.Symbol,
		Side:   req.Side,
		Size:   float64(req.Side) * req.Size.Value(),
	}
	return broker.Order{ID: fmt.Sprintf("o%d", len(m.submitted)), Symbol: req.Symbol, Side: req.Side}, nil
}

func (m *mockBroker) Cancel(string) bool                   { return false }
func (m *mockBroker) Orders(string) []broker.Order         { return nil }
func (m *mockBroker) Position(sym string) broker.Position  { return m.positions[sym] }
func (m *mockBroker) Positions(string) []broker.Position   { return nil }
func (m *mockBroker) Trades(string) []broker.Trade         { return nil }
func (m *mockBroker) CloseTrade(string, float64) error     { return nil }
func (m *mockBroker) SetStopLoss(string, *float64) error   { return nil }
func (m *mockBroker) SetTakeProfit(string, *float64) error { return nil }

func (m *mockBroker) ClosePosition(sym string, _ float64) ([]broker.Trade, error) {
	m.closed = append(m.closed, sym)
	delete(m.positions, sym)
	return nil, nil
}

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// series builds daily bars that open at the previous close.
func series(t *testing.T, sym string, closes ...float64) *market.Series {
	t.Helper()
	bars := make([]market.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:  t0.AddDate(0, 0, i),
			Open:  prev,
			High:  max(prev, c) + 0.5,
			Low:   min(prev, c) - 0.5,
			Close: c,
		}
		prev = c
	}
	s, err := market.NewSeries(sym, bars)
	require.NoError(t, err)
	return s
}

// replay feeds every warm window of s to strat in order.
func replay(t *testing.T, strat Strategy, b broker.Broker, s *market.Series) {
	t.Helper()
	for n := 1; n <= s.Len(); n++ {
		w := s.Window(n)
		if !w.Warm() {
			continue
		}
		require.NoError(t, strat.Next(context.Background(), b, w))
	}
}

func TestNoop(t *testing.T) {
	strat := Noop{}
	s := series(t, "X", 1, 2, 3)

	require.NoError(t, strat.Init(map[string]*market.Series{"X": s}))
	m := newMockBroker()
	replay(t, strat, m, s)
	assert.Empty(t, m.submitted)
	assert.Empty(t, s.Columns())
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"buy-and-hold", "ema-adx", "noop", "sma-cross"}, Names())

	strat, err := New("  SMA-Cross ", Params{"fast": 3, "slow": 5})
	require.NoError(t, err)
	assert.Equal(t, "sma-cross", strat.Name())
	assert.Equal(t, 3, strat.(*SMACross).Fast)

	_, err = New("nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown strategy "nope"`)

	p := Params{"x": 2.9}
	assert.Equal(t, 2.9, p.Get("x", 1))
	assert.Equal(t, 2, p.Int("x", 1))
	assert.Equal(t, 7, p.Int("y", 7))
}
