package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind는 거래소 에러의 재시도 가능 여부를 나타냅니다
type Kind int

const (
	Transient Kind = iota + 1 // 네트워크 타임아웃, 요청 한도 초과 등
	Permanent                 // 잘못된 심볼, 잔고 부족, 인증 실패 등
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// 자주 쓰이는 거래소 에러
var (
	ErrRateLimited       = errors.New("요청 한도 초과")
	ErrTimeout           = errors.New("거래소 응답 시간 초과")
	ErrInvalidSymbol     = errors.New("잘못된 심볼")
	ErrInsufficientFunds = errors.New("잔고 부족")
	ErrAuth              = errors.New("인증 실패")
	ErrBadRequest        = errors.New("잘못된 요청")
	ErrOrderNotFound     = errors.New("주문을 찾을 수 없음")
)

// BrokerError는 분류된 거래소 에러입니다
type BrokerError struct {
	Kind       Kind
	Op         string // 실패한 작업 (예: place_order)
	Code       int64  // 거래소 에러 코드 (없으면 0)
	StatusCode int    // HTTP 상태 코드 (없으면 0)
	Err        error
}

// Error는 error 인터페이스를 구현합니다
func (e *BrokerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("거래소 에러 [%s, %s, 코드: %d]: %v", e.Op, e.Kind, e.Code, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("거래소 에러 [%s, %s, HTTP %d]: %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("거래소 에러 [%s, %s]: %v", e.Op, e.Kind, e.Err)
}

// Unwrap은 내부 에러를 반환합니다 (errors.Is/As 지원을 위함)
func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewTransientError는 재시도 가능한 에러를 생성합니다
func NewTransientError(op string, err error) *BrokerError {
	return &BrokerError{Kind: Transient, Op: op, Err: err}
}

// NewPermanentError는 재시도하면 안 되는 에러를 생성합니다
func NewPermanentError(op string, err error) *BrokerError {
	return &BrokerError{Kind: Permanent, Op: op, Err: err}
}

// FromHTTPStatus는 HTTP 상태 코드로 에러를 분류합니다
func FromHTTPStatus(op string, status int, err error) *BrokerError {
	kind := Permanent
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = Transient
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusInternalServerError:
		kind = Transient
	}
	return &BrokerError{Kind: kind, Op: op, StatusCode: status, Err: err}
}

// Classify는 임의의 에러를 Transient/Permanent로 분류합니다.
// 분류할 수 없는 에러는 보수적으로 Permanent로 취급하여 중복 주문을 피합니다.
func Classify(err error) Kind {
	if err == nil {
		return 0
	}

	var be *BrokerError
	if errors.As(err, &be) {
		return be.Kind
	}

	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTimeout):
		return Transient
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	case errors.Is(err, ErrInvalidSymbol), errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAuth), errors.Is(err, ErrBadRequest):
		return Permanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Transient
	}

	return Permanent
}

// IsTransient는 재시도 가능한 에러인지 확인합니다
func IsTransient(err error) bool {
	return err != nil && Classify(err) == Transient
}
