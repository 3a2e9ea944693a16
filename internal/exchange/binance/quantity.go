package binance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AdjustQuantity는 수량을 LOT_SIZE 단위로 내림합니다. 단위가 0이면 그대로 반환합니다.
func AdjustQuantity(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// Fill은 체결 내역 한 건입니다
type Fill struct {
	Buy      bool
	Quantity decimal.Decimal
	Quote    decimal.Decimal
	Time     int64 // 밀리초
}

// AverageEntryPrice는 체결 내역을 시간순으로 따라가며 현재 보유분의 평균 단가를 계산합니다.
// 보유량이 0 이하로 떨어지면 평균을 초기화합니다. 계산할 수 없으면 0을 반환합니다.
func AverageEntryPrice(fills []Fill) decimal.Decimal {
	sorted := make([]Fill, len(fills))
	copy(sorted, fills)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	qty := decimal.Zero
	cost := decimal.Zero
	for _, f := range sorted {
		if f.Buy {
			qty = qty.Add(f.Quantity)
			cost = cost.Add(f.Quote)
			continue
		}
		if !qty.IsPositive() {
			continue
		}
		// 매도는 평균 단가를 유지한 채 원가를 줄입니다
		avg := cost.Div(qty)
		qty = qty.Sub(f.Quantity)
		if !qty.IsPositive() {
			qty, cost = decimal.Zero, decimal.Zero
			continue
		}
		cost = avg.Mul(qty)
	}

	if !qty.IsPositive() {
		return decimal.Zero
	}
	return cost.Div(qty)
}
