package domain

// AccountKind는 계정 유형을 정의합니다
type AccountKind string

const (
	PlatformAccount AccountKind = "PLATFORM"
	UserAccount     AccountKind = "USER"
)

// OrderSide는 주문 방향을 정의합니다
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// AmountKind는 주문 수량의 단위를 정의합니다
type AmountKind string

const (
	QuoteUSD AmountKind = "QUOTE_USD" // 명목 가치 (USD 기준)
	BaseQty  AmountKind = "BASE_QTY"  // 코인 수량
)

// OrderReason은 주문이 생성된 이유를 정의합니다
type OrderReason string

const (
	StrategyEntry        OrderReason = "STRATEGY_ENTRY"
	StrategyExit         OrderReason = "STRATEGY_EXIT"
	CapEviction          OrderReason = "CAP_EVICTION"
	EmergencyLiquidation OrderReason = "EMERGENCY_LIQUIDATION"
)

// OrderStatus는 주문 실행 결과 상태를 정의합니다
type OrderStatus string

const (
	StatusFilled   OrderStatus = "FILLED"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusRejected OrderStatus = "REJECTED"
	StatusError    OrderStatus = "ERROR"
)

// ExchangeOrderState는 거래소가 보고하는 주문 상태입니다
type ExchangeOrderState string

const (
	StateNew             ExchangeOrderState = "NEW"
	StatePartiallyFilled ExchangeOrderState = "PARTIALLY_FILLED"
	StateFilled          ExchangeOrderState = "FILLED"
	StateCanceled        ExchangeOrderState = "CANCELED"
	StateRejected        ExchangeOrderState = "REJECTED"
	StateExpired         ExchangeOrderState = "EXPIRED"
)

// Terminal은 더 이상 변하지 않는 최종 상태인지 확인합니다
func (s ExchangeOrderState) Terminal() bool {
	switch s {
	case StateFilled, StateCanceled, StateRejected, StateExpired:
		return true
	default:
		return false
	}
}

// ErrorKind는 주문 실패 분류입니다
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindTransient  ErrorKind = "transient"
	ErrorKindPermanent  ErrorKind = "permanent"
	ErrorKindUnverified ErrorKind = "unverified"
	ErrorKindCanceled   ErrorKind = "canceled"
)

// PositionSource는 포지션이 어디서 생겨났는지 정의합니다
type PositionSource string

const (
	SourceStrategy PositionSource = "STRATEGY"
	SourceAdopted  PositionSource = "ADOPTED_FROM_EXCHANGE"
)
