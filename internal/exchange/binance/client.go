// internal/exchange/binance/client.go
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/exchange"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Client는 바이낸스 현물 계정 하나에 대한 exchange.Gateway 구현입니다
type Client struct {
	client     *gobinance.Client
	limiter    *rate.Limiter
	quoteAsset string

	mu        sync.RWMutex
	stepSizes map[string]decimal.Decimal // 심볼별 수량 단위
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout    time.Duration
	testnet    bool
	rateLimit  rate.Limit
	burst      int
	quoteAsset string
}

// WithTimeout은 HTTP 클라이언트의 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithTestnet은 테스트넷 사용 여부를 설정합니다
func WithTestnet(useTestnet bool) ClientOption {
	return func(c *clientConfig) {
		c.testnet = useTestnet
	}
}

// WithRateLimit은 초당 요청 수와 버스트를 설정합니다
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *clientConfig) {
		c.rateLimit = rate.Limit(perSecond)
		c.burst = burst
	}
}

// WithQuoteAsset은 기준 자산을 설정합니다 (기본값 USDT)
func WithQuoteAsset(asset string) ClientOption {
	return func(c *clientConfig) {
		c.quoteAsset = strings.ToUpper(asset)
	}
}

// NewClient는 새로운 바이낸스 현물 클라이언트를 생성합니다
func NewClient(apiKey, secretKey string, opts ...ClientOption) *Client {
	cfg := &clientConfig{
		timeout:    10 * time.Second,
		rateLimit:  rate.Limit(10),
		burst:      20,
		quoteAsset: "USDT",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// 테스트넷 여부는 라이브러리 전역 설정입니다
	gobinance.UseTestnet = cfg.testnet

	client := gobinance.NewClient(apiKey, secretKey)
	client.HTTPClient = &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		client:     client,
		limiter:    rate.NewLimiter(cfg.rateLimit, cfg.burst),
		quoteAsset: cfg.quoteAsset,
		stepSizes:  make(map[string]decimal.Decimal),
	}
}

// wait는 요청 한도를 지킵니다
func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return exchange.NewTransientError(op, fmt.Errorf("%w: %v", exchange.ErrRateLimited, err))
	}
	return nil
}

// SyncTime은 서버 시간과의 차이를 맞춥니다
func (c *Client) SyncTime(ctx context.Context) error {
	if err := c.wait(ctx, "sync_time"); err != nil {
		return err
	}
	if _, err := c.client.NewSetServerTimeService().Do(ctx); err != nil {
		return classify("sync_time", err)
	}
	return nil
}

// prices는 기준 자산으로 거래되는 심볼의 현재가를 조회합니다
func (c *Client) prices(ctx context.Context) (map[string]decimal.Decimal, error) {
	if err := c.wait(ctx, "list_prices"); err != nil {
		return nil, err
	}
	list, err := c.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, classify("list_prices", err)
	}

	out := make(map[string]decimal.Decimal, len(list))
	for _, p := range list {
		if !strings.HasSuffix(p.Symbol, c.quoteAsset) {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			continue
		}
		out[p.Symbol] = price
	}
	return out, nil
}

// GetPrice는 exchange.PriceQuoter를 구현합니다
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := c.wait(ctx, "get_price"); err != nil {
		return decimal.Zero, err
	}
	list, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, classify("get_price", err)
	}
	for _, p := range list {
		if p.Symbol == symbol {
			price, err := decimal.NewFromString(p.Price)
			if err != nil {
				return decimal.Zero, exchange.NewPermanentError("get_price", fmt.Errorf("가격 파싱 실패: %w", err))
			}
			return price, nil
		}
	}
	return decimal.Zero, exchange.NewPermanentError("get_price", fmt.Errorf("%w: %s", exchange.ErrInvalidSymbol, symbol))
}

// holdings는 계정 잔고를 자산별 총 수량으로 반환합니다
func (c *Client) holdings(ctx context.Context) (map[string]decimal.Decimal, error) {
	if err := c.wait(ctx, "get_account"); err != nil {
		return nil, err
	}
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify("get_account", err)
	}

	out := make(map[string]decimal.Decimal)
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			locked = decimal.Zero
		}
		total := free.Add(locked)
		if total.IsPositive() {
			out[b.Asset] = total
		}
	}
	return out, nil
}

// GetBalance는 기준 자산과 보유 자산 평가액의 합(USD)을 반환합니다
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	held, err := c.holdings(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	prices, err := c.prices(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	total := held[c.quoteAsset]
	for asset, qty := range held {
		if asset == c.quoteAsset {
			continue
		}
		if price, ok := prices[asset+c.quoteAsset]; ok {
			total = total.Add(qty.Mul(price))
		}
	}
	return total, nil
}

// GetPositions는 기준 자산 외의 보유 자산을 포지션으로 반환합니다.
// 기준 자산과의 거래쌍이 없는 자산은 평가할 수 없어 제외합니다.
func (c *Client) GetPositions(ctx context.Context) ([]domain.RawPosition, error) {
	held, err := c.holdings(ctx)
	if err != nil {
		return nil, err
	}
	prices, err := c.prices(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.RawPosition
	for asset, qty := range held {
		if asset == c.quoteAsset {
			continue
		}
		symbol := asset + c.quoteAsset
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		out = append(out, domain.RawPosition{Symbol: symbol, Quantity: qty, Price: price})
	}
	return out, nil
}

// stepSize는 심볼의 LOT_SIZE 수량 단위를 조회하고 캐시합니다
func (c *Client) stepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.RLock()
	step, ok := c.stepSizes[symbol]
	c.mu.RUnlock()
	if ok {
		return step, nil
	}

	if err := c.wait(ctx, "exchange_info"); err != nil {
		return decimal.Zero, err
	}
	info, err := c.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, classify("exchange_info", err)
	}

	step = decimal.Zero
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		if lot := s.LotSizeFilter(); lot != nil {
			step, _ = decimal.NewFromString(lot.StepSize)
		}
	}

	c.mu.Lock()
	c.stepSizes[symbol] = step
	c.mu.Unlock()
	return step, nil
}

// PlaceOrder는 시장가 주문을 제출합니다
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error) {
	svc := c.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(gobinance.SideType(req.Side)).
		Type(gobinance.OrderTypeMarket).
		NewOrderRespType(gobinance.NewOrderRespTypeFULL)

	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	if req.QuoteQuantity.IsPositive() {
		svc = svc.QuoteOrderQty(req.QuoteQuantity.Truncate(2).String())
	} else {
		step, err := c.stepSize(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		qty := AdjustQuantity(req.Quantity, step)
		if !qty.IsPositive() {
			return nil, exchange.NewPermanentError("place_order",
				fmt.Errorf("%w: %s 수량 %s가 최소 단위 %s보다 작습니다", exchange.ErrBadRequest, req.Symbol, req.Quantity.String(), step.String()))
		}
		svc = svc.Quantity(qty.String())
	}

	if err := c.wait(ctx, "place_order"); err != nil {
		return nil, err
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, classify("place_order", err)
	}

	executed := parseDecimal(resp.ExecutedQuantity)
	quote := parseDecimal(resp.CummulativeQuoteQuantity)
	out := &domain.OrderResponse{
		OrderID:          strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID:    resp.ClientOrderID,
		Symbol:           resp.Symbol,
		State:            orderState(string(resp.Status)),
		OrigQuantity:     parseDecimal(resp.OrigQuantity),
		ExecutedQuantity: executed,
		QuoteExecuted:    quote,
	}
	if executed.IsPositive() {
		out.AvgPrice = quote.Div(executed)
	}
	return out, nil
}

// GetOrderStatus는 주문 상태를 조회합니다. 숫자가 아닌 ID는 클라이언트 주문 ID로 조회합니다.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderResponse, error) {
	svc := c.client.NewGetOrderService().Symbol(symbol)
	if id, err := strconv.ParseInt(orderID, 10, 64); err == nil {
		svc = svc.OrderID(id)
	} else {
		svc = svc.OrigClientOrderID(orderID)
	}

	if err := c.wait(ctx, "get_order"); err != nil {
		return nil, err
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, classify("get_order", err)
	}

	executed := parseDecimal(order.ExecutedQuantity)
	quote := parseDecimal(order.CummulativeQuoteQuantity)
	out := &domain.OrderResponse{
		OrderID:          strconv.FormatInt(order.OrderID, 10),
		ClientOrderID:    order.ClientOrderID,
		Symbol:           order.Symbol,
		State:            orderState(string(order.Status)),
		OrigQuantity:     parseDecimal(order.OrigQuantity),
		ExecutedQuantity: executed,
		QuoteExecuted:    quote,
	}
	if executed.IsPositive() {
		out.AvgPrice = quote.Div(executed)
	}
	return out, nil
}

// ResolveEntryPrice는 체결 내역으로 현재 보유분의 평균 진입가를 계산합니다.
// 보유 수량이 0이 된 시점 이후의 매수만 평균에 반영합니다.
func (c *Client) ResolveEntryPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := c.wait(ctx, "list_trades"); err != nil {
		return decimal.Zero, err
	}
	trades, err := c.client.NewListTradesService().Symbol(symbol).Limit(1000).Do(ctx)
	if err != nil {
		return decimal.Zero, classify("list_trades", err)
	}

	fills := make([]Fill, 0, len(trades))
	for _, t := range trades {
		fills = append(fills, Fill{
			Buy:      t.IsBuyer,
			Quantity: parseDecimal(t.Quantity),
			Quote:    parseDecimal(t.QuoteQuantity),
			Time:     t.Time,
		})
	}
	return AverageEntryPrice(fills), nil
}

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
