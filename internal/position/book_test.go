package position

import (
	"errors"
	"testing"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(side domain.OrderSide, symbol, qty, price string) domain.OrderResult {
	intent := domain.NewOrderIntent("user-1", symbol, side, decimal.RequireFromString(qty), domain.BaseQty, domain.StrategyEntry)
	return domain.OrderResult{
		Intent:      intent,
		Status:      domain.StatusFilled,
		FilledQty:   decimal.RequireFromString(qty),
		FilledPrice: decimal.RequireFromString(price),
		CompletedAt: time.Now(),
	}
}

func TestBookExposureAndCount(t *testing.T) {
	now := time.Now()
	book := NewBook("user-1", []domain.Position{
		pos("AUSDT", "10", now),
		pos("BUSDT", "25.5", now),
		{Symbol: "ZERO", Quantity: decimal.Zero, CurrentPrice: decimal.NewFromInt(3)},
	})

	assert.Equal(t, 2, book.Count())
	assert.True(t, book.OpenExposure().Equal(decimal.RequireFromString("35.5")))
	assert.Equal(t, []string{"BUSDT", "AUSDT"}, Symbols(book.Positions()))
	assert.True(t, book.Holds("AUSDT"))
	assert.False(t, book.Holds("ZERO"))
}

func TestBookApplyFill(t *testing.T) {
	book := NewBook("user-1", nil)

	require.NoError(t, book.ApplyFill(fill(domain.Buy, "ETHUSDT", "1", "100")))
	require.NoError(t, book.ApplyFill(fill(domain.Buy, "ETHUSDT", "1", "200")))

	p, ok := book.Get("ETHUSDT")
	require.True(t, ok)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p.EntryPrice.Equal(decimal.NewFromInt(150)), "가중 평균 진입가")
	assert.Equal(t, domain.SourceStrategy, p.Source)

	require.NoError(t, book.ApplyFill(fill(domain.Sell, "ETHUSDT", "0.5", "210")))
	p, _ = book.Get("ETHUSDT")
	assert.True(t, p.Quantity.Equal(decimal.RequireFromString("1.5")))

	require.NoError(t, book.ApplyFill(fill(domain.Sell, "ETHUSDT", "1.5", "210")))
	assert.False(t, book.Holds("ETHUSDT"))

	err := book.ApplyFill(fill(domain.Sell, "ETHUSDT", "1", "210"))
	assert.True(t, errors.Is(err, ErrNotHeld))
}

func TestBookIgnoresUnfilled(t *testing.T) {
	book := NewBook("user-1", nil)
	r := fill(domain.Buy, "ETHUSDT", "1", "100")
	r.Status = domain.StatusRejected

	require.NoError(t, book.ApplyFill(r))
	assert.Equal(t, 0, book.Count())
}
