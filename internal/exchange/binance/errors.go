package binance

import (
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/exchange"
)

// 바이낸스 에러 코드
const (
	codeUnknown          = -1000
	codeDisconnected     = -1001
	codeTooManyRequests  = -1003
	codeUnexpectedResp   = -1006
	codeTimeout          = -1007
	codeRateLimitOrder   = -1015
	codeTimestamp        = -1021
	codeInvalidSymbol    = -1121
	codeNewOrderRejected = -2010
	codeNoSuchOrder      = -2013
	codeBadAPIKeyFormat  = -2014
	codeRejectedAPIKey   = -2015
)

// classify는 go-binance 에러를 exchange.BrokerError로 분류합니다
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		// 네트워크 계층 에러는 공통 분류를 따릅니다
		return &exchange.BrokerError{Kind: exchange.Classify(err), Op: op, Err: err}
	}

	be := &exchange.BrokerError{Op: op, Code: apiErr.Code, Kind: exchange.Permanent}
	msg := apiErr.Message

	switch apiErr.Code {
	case codeTooManyRequests, codeRateLimitOrder:
		be.Kind = exchange.Transient
		be.Err = fmt.Errorf("%w: %s", exchange.ErrRateLimited, msg)
	case codeDisconnected, codeUnexpectedResp, codeTimeout, codeTimestamp, codeUnknown, 0:
		be.Kind = exchange.Transient
		be.Err = fmt.Errorf("%w: %s", exchange.ErrTimeout, msg)
	case codeInvalidSymbol:
		be.Err = fmt.Errorf("%w: %s", exchange.ErrInvalidSymbol, msg)
	case codeNewOrderRejected:
		be.Err = fmt.Errorf("%w: %s", exchange.ErrInsufficientFunds, msg)
	case codeNoSuchOrder:
		be.Err = fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, msg)
	case codeBadAPIKeyFormat, codeRejectedAPIKey:
		be.Err = fmt.Errorf("%w: %s", exchange.ErrAuth, msg)
	default:
		be.Err = fmt.Errorf("%w: %s", exchange.ErrBadRequest, msg)
	}
	return be
}

// orderState는 바이낸스 주문 상태를 도메인 상태로 변환합니다
func orderState(status string) domain.ExchangeOrderState {
	switch status {
	case "NEW", "PENDING_NEW":
		return domain.StateNew
	case "PARTIALLY_FILLED":
		return domain.StatePartiallyFilled
	case "FILLED":
		return domain.StateFilled
	case "CANCELED", "PENDING_CANCEL":
		return domain.StateCanceled
	case "REJECTED":
		return domain.StateRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return domain.StateExpired
	default:
		return domain.ExchangeOrderState(status)
	}
}
