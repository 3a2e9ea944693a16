package position

import (
	"sync"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/metrics"
	"github.com/shopspring/decimal"
)

// Book은 한 계정의 보유 포지션을 메모리에 들고 있습니다.
// 감독 사이클마다 거래소 조회 결과로 통째로 교체되며, 그 사이에는 체결 결과만 반영합니다.
type Book struct {
	accountID string

	mu        sync.RWMutex
	positions map[string]domain.Position
}

// NewBook은 새로운 포지션 장부를 생성합니다
func NewBook(accountID string, positions []domain.Position) *Book {
	b := &Book{accountID: accountID}
	b.Replace(positions)
	return b
}

// Replace는 장부 전체를 교체합니다
func (b *Book) Replace(positions []domain.Position) {
	m := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		if p.Quantity.IsPositive() {
			m[p.Symbol] = p
		}
	}

	b.mu.Lock()
	b.positions = m
	b.mu.Unlock()

	metrics.SetOpenPositions(b.accountID, len(m))
}

// Positions는 보유 포지션을 가치 내림차순으로 반환합니다
func (b *Book) Positions() []domain.Position {
	b.mu.RLock()
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	b.mu.RUnlock()

	SortByValue(out)
	return out
}

// Get은 심볼의 포지션을 반환합니다
func (b *Book) Get(symbol string) (domain.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[symbol]
	return p, ok
}

// Holds는 심볼을 보유 중인지 확인합니다
func (b *Book) Holds(symbol string) bool {
	_, ok := b.Get(symbol)
	return ok
}

// Count는 보유 포지션 수를 반환합니다
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// OpenExposure는 보유 포지션의 총 USD 가치입니다. capital.ExposureSource를 구현합니다.
func (b *Book) OpenExposure() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := decimal.Zero
	for _, p := range b.positions {
		total = total.Add(p.USDValue())
	}
	return total
}

// ApplyFill은 체결 결과를 장부에 반영합니다.
// 매수는 가중 평균 진입가로 합치고, 매도는 수량을 줄이며 0 이하가 되면 제거합니다.
func (b *Book) ApplyFill(r domain.OrderResult) error {
	if !r.Filled() {
		return nil
	}

	symbol := r.Intent.Symbol

	b.mu.Lock()
	defer func() {
		n := len(b.positions)
		b.mu.Unlock()
		metrics.SetOpenPositions(b.accountID, n)
	}()

	p, held := b.positions[symbol]

	switch r.Intent.Side {
	case domain.Buy:
		if !held {
			b.positions[symbol] = domain.Position{
				Symbol:       symbol,
				Quantity:     r.FilledQty,
				EntryPrice:   r.FilledPrice,
				CurrentPrice: r.FilledPrice,
				OpenedAt:     r.CompletedAt,
				Source:       domain.SourceStrategy,
			}
			return nil
		}
		qty := p.Quantity.Add(r.FilledQty)
		cost := p.Quantity.Mul(p.EntryPrice).Add(r.FilledQty.Mul(r.FilledPrice))
		p.EntryPrice = cost.Div(qty)
		p.Quantity = qty
		p.CurrentPrice = r.FilledPrice
		b.positions[symbol] = p

	case domain.Sell:
		if !held {
			return NewPositionError(symbol, "apply_fill", ErrNotHeld)
		}
		p.Quantity = p.Quantity.Sub(r.FilledQty)
		if !p.Quantity.IsPositive() {
			delete(b.positions, symbol)
			return nil
		}
		p.CurrentPrice = r.FilledPrice
		b.positions[symbol] = p
	}
	return nil
}
