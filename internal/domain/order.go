package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderIntent는 주문 제안입니다. 생성 후에는 변경하지 않습니다
type OrderIntent struct {
	ID         string          // 클라이언트 주문 ID로도 사용 (재시도 중복 방지)
	AccountID  string          // 계정 ID
	Symbol     string          // 심볼 (예: BTCUSDT)
	Side       OrderSide       // 매수/매도
	Amount     decimal.Decimal // 요청 수량 또는 금액
	AmountKind AmountKind      // Amount의 단위
	Reason     OrderReason     // 주문 이유
	CreatedAt  time.Time       // 생성 시간
}

// NewOrderIntent는 고유 ID를 가진 새 주문 제안을 생성합니다
func NewOrderIntent(accountID, symbol string, side OrderSide, amount decimal.Decimal, kind AmountKind, reason OrderReason) OrderIntent {
	return OrderIntent{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Symbol:     symbol,
		Side:       side,
		Amount:     amount,
		AmountKind: kind,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
}

// ClientOrderID는 거래소에 전달할 클라이언트 주문 ID를 반환합니다
// 바이낸스는 36자까지 허용하므로 하이픈을 제거한 32자를 사용합니다
func (i OrderIntent) ClientOrderID() string {
	id := make([]byte, 0, len(i.ID))
	for j := 0; j < len(i.ID); j++ {
		if i.ID[j] != '-' {
			id = append(id, i.ID[j])
		}
	}
	return string(id)
}

// Request는 주문 제안을 거래소 주문 요청으로 변환합니다
func (i OrderIntent) Request() OrderRequest {
	req := OrderRequest{
		Symbol:        i.Symbol,
		Side:          i.Side,
		ClientOrderID: i.ClientOrderID(),
	}
	if i.AmountKind == QuoteUSD {
		req.QuoteQuantity = i.Amount
	} else {
		req.Quantity = i.Amount
	}
	return req
}

// OrderRequest는 거래소로 보내는 시장가 주문 요청입니다
type OrderRequest struct {
	Symbol        string          // 심볼
	Side          OrderSide       // 매수/매도
	Quantity      decimal.Decimal // 코인 수량 (QuoteQuantity와 둘 중 하나만 사용)
	QuoteQuantity decimal.Decimal // 명목 가치 (USD 기준)
	ClientOrderID string          // 클라이언트 측 주문 ID
}

// OrderResponse는 거래소의 주문 응답입니다
type OrderResponse struct {
	OrderID          string             // 거래소 주문 ID
	ClientOrderID    string             // 클라이언트 측 주문 ID
	Symbol           string             // 심볼
	State            ExchangeOrderState // 거래소 주문 상태
	OrigQuantity     decimal.Decimal    // 원래 주문 수량
	ExecutedQuantity decimal.Decimal    // 체결된 수량
	QuoteExecuted    decimal.Decimal    // 체결된 명목 가치
	AvgPrice         decimal.Decimal    // 평균 체결 가격
}

// OrderResult는 주문 제안을 실행한 결과입니다
type OrderResult struct {
	Intent       OrderIntent
	OrderID      string
	Status       OrderStatus
	FilledQty    decimal.Decimal
	FilledPrice  decimal.Decimal
	ErrorKind    ErrorKind
	ErrorMessage string
	Attempts     int
	Verified     bool // 거래소 상태 조회로 확인되었는지 여부
	CompletedAt  time.Time
}

// Filled는 일부라도 체결되었는지 확인합니다
func (r OrderResult) Filled() bool {
	return (r.Status == StatusFilled || r.Status == StatusPartial) && r.FilledQty.IsPositive()
}

// FilledUSD는 체결된 명목 가치를 반환합니다
func (r OrderResult) FilledUSD() decimal.Decimal {
	return r.FilledQty.Mul(r.FilledPrice)
}
