package binance

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/exchange"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestClassifyAPIErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     int64
		kind     exchange.Kind
		sentinel error
	}{
		{"요청 한도", codeTooManyRequests, exchange.Transient, exchange.ErrRateLimited},
		{"주문 한도", codeRateLimitOrder, exchange.Transient, exchange.ErrRateLimited},
		{"연결 끊김", codeDisconnected, exchange.Transient, exchange.ErrTimeout},
		{"타임스탬프", codeTimestamp, exchange.Transient, exchange.ErrTimeout},
		{"잘못된 심볼", codeInvalidSymbol, exchange.Permanent, exchange.ErrInvalidSymbol},
		{"잔고 부족", codeNewOrderRejected, exchange.Permanent, exchange.ErrInsufficientFunds},
		{"주문 없음", codeNoSuchOrder, exchange.Permanent, exchange.ErrOrderNotFound},
		{"API 키 거부", codeRejectedAPIKey, exchange.Permanent, exchange.ErrAuth},
		{"알 수 없는 파라미터", -1102, exchange.Permanent, exchange.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("place_order", &common.APIError{Code: tt.code, Message: "msg"})

			var be *exchange.BrokerError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.kind, be.Kind)
			assert.Equal(t, tt.code, be.Code)
			assert.Equal(t, "place_order", be.Op)
			assert.True(t, errors.Is(err, tt.sentinel))
		})
	}
}

func TestClassifyNetworkErrors(t *testing.T) {
	err := classify("get_order", &net.OpError{Op: "dial", Err: errors.New("connection refused")})
	assert.True(t, exchange.IsTransient(err))

	err = classify("get_order", context.DeadlineExceeded)
	assert.True(t, exchange.IsTransient(err))

	assert.NoError(t, classify("noop", nil))
}

func TestOrderState(t *testing.T) {
	assert.Equal(t, domain.StateFilled, orderState("FILLED"))
	assert.Equal(t, domain.StatePartiallyFilled, orderState("PARTIALLY_FILLED"))
	assert.Equal(t, domain.StateExpired, orderState("EXPIRED_IN_MATCH"))
	assert.True(t, orderState("CANCELED").Terminal())
	assert.False(t, orderState("NEW").Terminal())
}

func TestAdjustQuantity(t *testing.T) {
	assert.True(t, AdjustQuantity(d("1.23456"), d("0.001")).Equal(d("1.234")))
	assert.True(t, AdjustQuantity(d("0.0009"), d("0.001")).IsZero())
	assert.True(t, AdjustQuantity(d("7"), d("1")).Equal(d("7")))
	assert.True(t, AdjustQuantity(d("1.5"), decimal.Zero).Equal(d("1.5")))
}

func TestAverageEntryPrice(t *testing.T) {
	t.Run("매수만", func(t *testing.T) {
		fills := []Fill{
			{Buy: true, Quantity: d("1"), Quote: d("100"), Time: 1},
			{Buy: true, Quantity: d("1"), Quote: d("200"), Time: 2},
		}
		assert.True(t, AverageEntryPrice(fills).Equal(d("150")))
	})

	t.Run("부분 매도는 평균 유지", func(t *testing.T) {
		fills := []Fill{
			{Buy: true, Quantity: d("2"), Quote: d("200"), Time: 1},
			{Buy: false, Quantity: d("1"), Quote: d("150"), Time: 2},
			{Buy: true, Quantity: d("1"), Quote: d("130"), Time: 3},
		}
		assert.True(t, AverageEntryPrice(fills).Equal(d("115")))
	})

	t.Run("전량 매도 후 재진입", func(t *testing.T) {
		fills := []Fill{
			{Buy: true, Quantity: d("1"), Quote: d("40"), Time: 3},
			{Buy: true, Quantity: d("1"), Quote: d("100"), Time: 1},
			{Buy: false, Quantity: d("1"), Quote: d("120"), Time: 2},
		}
		assert.True(t, AverageEntryPrice(fills).Equal(d("40")))
	})

	t.Run("보유 없음", func(t *testing.T) {
		assert.True(t, AverageEntryPrice(nil).IsZero())
	})
}
