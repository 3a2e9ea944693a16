package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"요청 한도 429", FromHTTPStatus("place_order", http.StatusTooManyRequests, errors.New("slow down")), Transient},
		{"서비스 불가 503", FromHTTPStatus("place_order", http.StatusServiceUnavailable, errors.New("maintenance")), Transient},
		{"게이트웨이 타임아웃 504", FromHTTPStatus("place_order", http.StatusGatewayTimeout, errors.New("timeout")), Transient},
		{"잘못된 요청 400", FromHTTPStatus("place_order", http.StatusBadRequest, errors.New("bad")), Permanent},
		{"인증 실패 401", FromHTTPStatus("place_order", http.StatusUnauthorized, errors.New("auth")), Permanent},
		{"감싼 요청 한도", fmt.Errorf("주문 실패: %w", ErrRateLimited), Transient},
		{"컨텍스트 타임아웃", context.DeadlineExceeded, Transient},
		{"네트워크 타임아웃", &net.OpError{Op: "dial", Err: timeoutErr{}}, Transient},
		{"잔고 부족", fmt.Errorf("주문 실패: %w", ErrInsufficientFunds), Permanent},
		{"잘못된 심볼", ErrInvalidSymbol, Permanent},
		{"알 수 없는 에러", errors.New("boom"), Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestBrokerErrorUnwrap(t *testing.T) {
	err := NewPermanentError("get_order", ErrOrderNotFound)

	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.False(t, IsTransient(err))
	assert.False(t, IsTransient(nil))
	assert.Contains(t, err.Error(), "get_order")
}
