// Package paper는 실제 주문 없이 즉시 체결을 흉내 내는 모의 거래소입니다.
package paper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/exchange"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type holding struct {
	quantity   decimal.Decimal
	entryPrice decimal.Decimal
}

// Gateway는 메모리 안에서 동작하는 exchange.Gateway 구현입니다.
// 시장가 주문은 현재가로 전량 즉시 체결됩니다.
type Gateway struct {
	quoteAsset string
	prices     exchange.PriceQuoter // 직접 지정하지 않은 심볼의 가격 출처 (없으면 nil)

	mu          sync.Mutex
	cash        decimal.Decimal
	holdings    map[string]*holding
	fixedPrices map[string]decimal.Decimal
	orders      map[string]*domain.OrderResponse
	byClientID  map[string]string
	orderErrs   map[string]error
	placed      []domain.OrderRequest
}

// Option은 모의 거래소 옵션입니다
type Option func(*Gateway)

// WithPriceSource는 가격이 지정되지 않은 심볼의 시세 출처를 지정합니다
func WithPriceSource(q exchange.PriceQuoter) Option {
	return func(g *Gateway) {
		g.prices = q
	}
}

// NewGateway는 cash만큼의 기준 자산을 가진 모의 거래소를 생성합니다
func NewGateway(quoteAsset string, cash decimal.Decimal, opts ...Option) *Gateway {
	g := &Gateway{
		quoteAsset:  quoteAsset,
		cash:        cash,
		holdings:    make(map[string]*holding),
		fixedPrices: make(map[string]decimal.Decimal),
		orders:      make(map[string]*domain.OrderResponse),
		byClientID:  make(map[string]string),
		orderErrs:   make(map[string]error),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetPrice는 심볼의 현재가를 지정합니다
func (g *Gateway) SetPrice(symbol string, price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fixedPrices[symbol] = price
}

// SetHolding은 보유 수량과 진입가를 지정합니다. 수량이 0이면 보유를 지웁니다.
func (g *Gateway) SetHolding(symbol string, quantity, entryPrice decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !quantity.IsPositive() {
		delete(g.holdings, symbol)
		return
	}
	g.holdings[symbol] = &holding{quantity: quantity, entryPrice: entryPrice}
}

// SetOrderError는 심볼 주문이 항상 err로 실패하게 합니다. nil이면 해제합니다.
func (g *Gateway) SetOrderError(symbol string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.orderErrs, symbol)
		return
	}
	g.orderErrs[symbol] = err
}

// Cash는 남은 기준 자산입니다
func (g *Gateway) Cash() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cash
}

// Placed는 지금까지 접수된 주문 요청입니다
func (g *Gateway) Placed() []domain.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.OrderRequest, len(g.placed))
	copy(out, g.placed)
	return out
}

func (g *Gateway) priceLocked(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := g.fixedPrices[symbol]; ok {
		return p, nil
	}
	if g.prices != nil {
		p, err := g.prices.GetPrice(ctx, symbol)
		if err != nil {
			return decimal.Zero, err
		}
		return p, nil
	}
	return decimal.Zero, exchange.NewPermanentError("get_price", fmt.Errorf("%w: %s", exchange.ErrInvalidSymbol, symbol))
}

// GetPrice는 exchange.PriceQuoter를 구현합니다
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.priceLocked(ctx, symbol)
}

// GetBalance는 기준 자산과 보유 자산 평가액의 합을 반환합니다
func (g *Gateway) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := g.cash
	for symbol, h := range g.holdings {
		price, err := g.priceLocked(ctx, symbol)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(h.quantity.Mul(price))
	}
	return total, nil
}

// GetPositions는 보유 자산을 심볼 순으로 반환합니다
func (g *Gateway) GetPositions(ctx context.Context) ([]domain.RawPosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	symbols := make([]string, 0, len(g.holdings))
	for symbol := range g.holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]domain.RawPosition, 0, len(symbols))
	for _, symbol := range symbols {
		h := g.holdings[symbol]
		price, err := g.priceLocked(ctx, symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RawPosition{
			Symbol:     symbol,
			Quantity:   h.quantity,
			Price:      price,
			EntryPrice: h.entryPrice,
		})
	}
	return out, nil
}

// PlaceOrder는 시장가 주문을 즉시 체결합니다. 같은 클라이언트 주문 ID는 한 번만 체결됩니다.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.placed = append(g.placed, req)

	if err, ok := g.orderErrs[req.Symbol]; ok {
		return nil, err
	}
	if req.ClientOrderID != "" {
		if orderID, ok := g.byClientID[req.ClientOrderID]; ok {
			resp := *g.orders[orderID]
			return &resp, nil
		}
	}

	price, err := g.priceLocked(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, exchange.NewPermanentError("place_order", fmt.Errorf("%w: %s 가격 없음", exchange.ErrBadRequest, req.Symbol))
	}

	qty := req.Quantity
	if req.QuoteQuantity.IsPositive() {
		qty = req.QuoteQuantity.Div(price)
	}
	if !qty.IsPositive() {
		return nil, exchange.NewPermanentError("place_order", fmt.Errorf("%w: 수량은 0보다 커야 합니다", exchange.ErrBadRequest))
	}
	notional := qty.Mul(price)

	switch req.Side {
	case domain.Buy:
		if notional.GreaterThan(g.cash) {
			return nil, exchange.NewPermanentError("place_order",
				fmt.Errorf("%w: 필요 %s %s, 보유 %s", exchange.ErrInsufficientFunds, notional.StringFixed(2), g.quoteAsset, g.cash.StringFixed(2)))
		}
		g.cash = g.cash.Sub(notional)
		h, ok := g.holdings[req.Symbol]
		if !ok {
			g.holdings[req.Symbol] = &holding{quantity: qty, entryPrice: price}
		} else {
			total := h.quantity.Add(qty)
			h.entryPrice = h.quantity.Mul(h.entryPrice).Add(notional).Div(total)
			h.quantity = total
		}

	case domain.Sell:
		h, ok := g.holdings[req.Symbol]
		if !ok || qty.GreaterThan(h.quantity) {
			return nil, exchange.NewPermanentError("place_order",
				fmt.Errorf("%w: %s 매도 수량 부족", exchange.ErrInsufficientFunds, req.Symbol))
		}
		g.cash = g.cash.Add(notional)
		h.quantity = h.quantity.Sub(qty)
		if !h.quantity.IsPositive() {
			delete(g.holdings, req.Symbol)
		}

	default:
		return nil, exchange.NewPermanentError("place_order", fmt.Errorf("%w: 알 수 없는 주문 방향 %q", exchange.ErrBadRequest, req.Side))
	}

	orderID := strings.ReplaceAll(uuid.NewString(), "-", "")
	resp := &domain.OrderResponse{
		OrderID:          orderID,
		ClientOrderID:    req.ClientOrderID,
		Symbol:           req.Symbol,
		State:            domain.StateFilled,
		OrigQuantity:     qty,
		ExecutedQuantity: qty,
		QuoteExecuted:    notional,
		AvgPrice:         price,
	}
	g.orders[orderID] = resp
	if req.ClientOrderID != "" {
		g.byClientID[req.ClientOrderID] = orderID
	}

	out := *resp
	return &out, nil
}

// GetOrderStatus는 거래소 주문 ID 또는 클라이언트 주문 ID로 주문을 조회합니다
func (g *Gateway) GetOrderStatus(_ context.Context, symbol, orderID string) (*domain.OrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	resp, ok := g.orders[orderID]
	if !ok {
		if id, found := g.byClientID[orderID]; found {
			resp, ok = g.orders[id]
		}
	}
	if !ok || resp.Symbol != symbol {
		return nil, exchange.NewPermanentError("get_order", fmt.Errorf("%w: %s %s", exchange.ErrOrderNotFound, symbol, orderID))
	}

	out := *resp
	return &out, nil
}

// ResolveEntryPrice는 exchange.EntryPriceResolver를 구현합니다
func (g *Gateway) ResolveEntryPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.holdings[symbol]; ok {
		return h.entryPrice, nil
	}
	return decimal.Zero, nil
}
