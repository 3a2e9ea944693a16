package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position은 계정이 보유한 자산 하나를 표현합니다
type Position struct {
	Symbol       string          // 심볼 (예: BTCUSDT)
	Quantity     decimal.Decimal // 보유 수량
	EntryPrice   decimal.Decimal // 진입가
	CurrentPrice decimal.Decimal // 마지막으로 관측한 가격
	OpenedAt     time.Time       // 진입 시간
	Source       PositionSource  // STRATEGY / ADOPTED_FROM_EXCHANGE
}

// USDValue는 현재 가격 기준 포지션 가치입니다
func (p Position) USDValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// UnrealizedPnL은 진입가 대비 미실현 손익입니다
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPrice.Sub(p.EntryPrice).Mul(p.Quantity)
}

// RawPosition은 거래소가 보고하는 보유 자산입니다
type RawPosition struct {
	Symbol     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal // 현재 가격
	EntryPrice decimal.Decimal // 거래소가 알려주는 경우에만 0이 아님
}

// USDValue는 현재 가격 기준 가치입니다
func (r RawPosition) USDValue() decimal.Decimal {
	return r.Quantity.Mul(r.Price)
}
