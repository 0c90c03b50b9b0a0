package broker

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    Size
		wantErr bool
	}{
		{"units", Units(10), false},
		{"fractional units", Units(0.5), false},
		{"zero units", Units(0), true},
		{"negative units", Units(-3), true},
		{"nan units", Units(math.NaN()), true},
		{"fraction", Fraction(0.25), false},
		{"full fraction", Fraction(1), false},
		{"zero fraction", Fraction(0), true},
		{"fraction above one", Fraction(1.5), true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.size.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOrderRequestKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Market, OrderRequest{}.Kind())
	assert.Equal(t, Limit, OrderRequest{Limit: Ptr(1)}.Kind())
	assert.Equal(t, Stop, OrderRequest{Stop: Ptr(1)}.Kind())
	assert.Equal(t, StopLimit, OrderRequest{Limit: Ptr(1), Stop: Ptr(2)}.Kind())
}

func TestTradeHelpers(t *testing.T) {
	t.Parallel()

	open := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tr := Trade{Side: Short, Units: 10, EntryPrice: 100, EntryTime: open, IsOpen: true}

	assert.Equal(t, -10.0, tr.Size())
	assert.InDelta(t, 50.0, tr.UnrealizedPL(95), 1e-9)
	assert.Zero(t, tr.Duration())

	tr.IsOpen = false
	tr.ExitTime = open.Add(48 * time.Hour)
	assert.Equal(t, 48*time.Hour, tr.Duration())
}

func TestErrorsMatchSentinels(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, Invalid("limit", "wrong side"), ErrValidation)
	assert.ErrorIs(t, &MarginError{Symbol: "AAPL"}, ErrInsufficientMargin)
	assert.ErrorIs(t, &DataIntegrityError{Symbol: "AAPL"}, ErrDataIntegrity)
	assert.NotErrorIs(t, Invalid("x", "y"), ErrDataIntegrity)

	var ve *ValidationError
	require.ErrorAs(t, Invalid("portion", "must be in (0, 1]"), &ve)
	assert.Equal(t, "portion", ve.Field)
}

func TestAccountFreeMargin(t *testing.T) {
	t.Parallel()
	a := Account{Equity: 1000, MarginUsed: 250}
	assert.Equal(t, 750.0, a.FreeMargin())
}
