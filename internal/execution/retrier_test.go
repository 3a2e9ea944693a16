package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/exchange"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGateway는 미리 정한 순서대로 응답하는 가짜 거래소입니다
type scriptedGateway struct {
	mu sync.Mutex

	placeErrs []error
	placeResp *domain.OrderResponse
	placed    []domain.OrderRequest

	statuses   []*domain.OrderResponse
	statusErrs []error
	polls      []string
}

func (g *scriptedGateway) PlaceOrder(_ context.Context, req domain.OrderRequest) (*domain.OrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placed = append(g.placed, req)

	if len(g.placeErrs) > 0 {
		err := g.placeErrs[0]
		g.placeErrs = g.placeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	resp := *g.placeResp
	return &resp, nil
}

func (g *scriptedGateway) GetOrderStatus(_ context.Context, _ string, orderID string) (*domain.OrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls = append(g.polls, orderID)

	if len(g.statusErrs) > 0 {
		err := g.statusErrs[0]
		g.statusErrs = g.statusErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(g.statuses) == 0 {
		return nil, exchange.NewPermanentError("get_order", exchange.ErrOrderNotFound)
	}
	st := g.statuses[0]
	if len(g.statuses) > 1 {
		g.statuses = g.statuses[1:]
	}
	cp := *st
	return &cp, nil
}

type memRecorder struct {
	mu      sync.Mutex
	results []domain.OrderResult
}

func (m *memRecorder) Record(_ context.Context, r domain.OrderResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

type memNotifier struct {
	mu     sync.Mutex
	orders []domain.OrderResult
}

func (m *memNotifier) SendError(error) error { return nil }
func (m *memNotifier) SendInfo(string) error { return nil }
func (m *memNotifier) SendOrderResult(r domain.OrderResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, r)
	return nil
}

// sleepRecorder는 실제로 기다리지 않고 요청된 대기 시간만 기록합니다
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func filledResponse(qty, price string) *domain.OrderResponse {
	q := decimal.RequireFromString(qty)
	p := decimal.RequireFromString(price)
	return &domain.OrderResponse{
		OrderID:          "1001",
		Symbol:           "BTCUSDT",
		State:            domain.StateFilled,
		OrigQuantity:     q,
		ExecutedQuantity: q,
		QuoteExecuted:    q.Mul(p),
		AvgPrice:         p,
	}
}

func sellIntent(qty string) domain.OrderIntent {
	return domain.NewOrderIntent("platform", "BTCUSDT", domain.Sell, decimal.RequireFromString(qty), domain.BaseQty, domain.CapEviction)
}

func newTestRetrier(gw OrderGateway, s *sleepRecorder, rec *memRecorder, n *memNotifier) *Retrier {
	return NewRetrier(gw,
		WithSleeper(s.sleep),
		WithRecorder(rec),
		WithNotifier(n),
		WithCallTimeout(0),
	)
}

func TestSubmitFilledFirstAttempt(t *testing.T) {
	gw := &scriptedGateway{
		placeResp: filledResponse("0.5", "60000"),
		statuses:  []*domain.OrderResponse{filledResponse("0.5", "60000")},
	}
	s, rec, n := &sleepRecorder{}, &memRecorder{}, &memNotifier{}

	intent := sellIntent("0.5")
	result := newTestRetrier(gw, s, rec, n).Submit(context.Background(), intent)

	assert.Equal(t, domain.StatusFilled, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, result.Verified)
	assert.Equal(t, "1001", result.OrderID)
	assert.True(t, result.FilledQty.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, domain.ErrorKindNone, result.ErrorKind)
	assert.Empty(t, s.delays)

	require.Len(t, gw.placed, 1)
	assert.Equal(t, intent.ClientOrderID(), gw.placed[0].ClientOrderID)
	require.Len(t, rec.results, 1)
	assert.Empty(t, n.orders)
}

func TestSubmitTransientRetriesAreBounded(t *testing.T) {
	rateLimited := exchange.NewTransientError("place_order", exchange.ErrRateLimited)
	gw := &scriptedGateway{
		placeErrs: []error{rateLimited, rateLimited, rateLimited, rateLimited, rateLimited},
		placeResp: filledResponse("1", "10"),
	}
	s, rec, n := &sleepRecorder{}, &memRecorder{}, &memNotifier{}

	result := newTestRetrier(gw, s, rec, n).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.ErrorKindTransient, result.ErrorKind)
	assert.Equal(t, 4, result.Attempts)
	assert.Len(t, gw.placed, 4, "최대 3회 재시도")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, s.delays)
	require.Len(t, n.orders, 1)
	require.Len(t, rec.results, 1)
}

func TestSubmitTransientThenSuccess(t *testing.T) {
	gw := &scriptedGateway{
		placeErrs: []error{exchange.FromHTTPStatus("place_order", 503, errors.New("unavailable")), nil},
		placeResp: filledResponse("1", "10"),
		statuses:  []*domain.OrderResponse{filledResponse("1", "10")},
	}
	s := &sleepRecorder{}

	result := newTestRetrier(gw, s, &memRecorder{}, &memNotifier{}).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusFilled, result.Status)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second}, s.delays)
}

func TestSubmitPermanentIsNeverRetried(t *testing.T) {
	gw := &scriptedGateway{
		placeErrs: []error{exchange.NewPermanentError("place_order", exchange.ErrInsufficientFunds)},
		placeResp: filledResponse("1", "10"),
	}
	s, n := &sleepRecorder{}, &memNotifier{}

	result := newTestRetrier(gw, s, &memRecorder{}, n).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Equal(t, domain.ErrorKindPermanent, result.ErrorKind)
	assert.Equal(t, 1, result.Attempts)
	assert.Len(t, gw.placed, 1)
	assert.Empty(t, s.delays)
	assert.Contains(t, result.ErrorMessage, "잔고 부족")
	assert.Len(t, n.orders, 1)
}

func TestSubmitPartialFill(t *testing.T) {
	partial := filledResponse("0.9", "100")
	gw := &scriptedGateway{placeResp: partial, statuses: []*domain.OrderResponse{partial}}

	result := newTestRetrier(gw, &sleepRecorder{}, &memRecorder{}, &memNotifier{}).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusPartial, result.Status)
	assert.True(t, result.FilledQty.Equal(decimal.RequireFromString("0.9")))
}

func TestSubmitWithinToleranceIsFilled(t *testing.T) {
	almost := filledResponse("0.995", "100")
	gw := &scriptedGateway{placeResp: almost, statuses: []*domain.OrderResponse{almost}}

	result := newTestRetrier(gw, &sleepRecorder{}, &memRecorder{}, &memNotifier{}).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusFilled, result.Status)
}

func TestSubmitQuoteOrderComparesQuoteSpent(t *testing.T) {
	resp := filledResponse("0.002", "50000") // 100 USD
	gw := &scriptedGateway{placeResp: resp, statuses: []*domain.OrderResponse{resp}}
	intent := domain.NewOrderIntent("user-1", "BTCUSDT", domain.Buy, decimal.NewFromInt(100), domain.QuoteUSD, domain.StrategyEntry)

	result := newTestRetrier(gw, &sleepRecorder{}, &memRecorder{}, &memNotifier{}).Submit(context.Background(), intent)

	assert.Equal(t, domain.StatusFilled, result.Status)
	assert.True(t, gw.placed[0].QuoteQuantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, gw.placed[0].Quantity.IsZero())
}

func TestSubmitVerificationOverridesSyncResponse(t *testing.T) {
	pending := &domain.OrderResponse{OrderID: "1001", Symbol: "BTCUSDT", State: domain.StateNew}
	gw := &scriptedGateway{
		placeResp: filledResponse("1", "10"),
		statuses: []*domain.OrderResponse{
			pending,
			filledResponse("0.4", "10"),
		},
	}
	s := &sleepRecorder{}

	result := newTestRetrier(gw, s, &memRecorder{}, &memNotifier{}).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusPartial, result.Status, "조회 결과가 동기 응답보다 우선")
	assert.True(t, result.Verified)
	assert.True(t, result.FilledQty.Equal(decimal.RequireFromString("0.4")))
	assert.Equal(t, []time.Duration{time.Second}, s.delays)
	assert.Equal(t, []string{"1001", "1001"}, gw.polls)
}

func TestSubmitUnverifiedAfterFivePolls(t *testing.T) {
	pending := &domain.OrderResponse{OrderID: "1001", Symbol: "BTCUSDT", State: domain.StateNew}
	gw := &scriptedGateway{placeResp: pending, statuses: []*domain.OrderResponse{pending}}
	s := &sleepRecorder{}

	result := newTestRetrier(gw, s, &memRecorder{}, &memNotifier{}).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.ErrorKindUnverified, result.ErrorKind)
	assert.False(t, result.Verified)
	assert.Len(t, gw.polls, 5)
	assert.Len(t, s.delays, 4)
}

func TestSubmitCanceledWithoutFill(t *testing.T) {
	expired := &domain.OrderResponse{OrderID: "1001", Symbol: "BTCUSDT", State: domain.StateExpired}
	gw := &scriptedGateway{placeResp: expired, statuses: []*domain.OrderResponse{expired}}

	result := newTestRetrier(gw, &sleepRecorder{}, &memRecorder{}, &memNotifier{}).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Equal(t, domain.ErrorKindCanceled, result.ErrorKind)
	assert.True(t, result.Verified)
}

func TestSubmitProbeFindsEarlierOrder(t *testing.T) {
	gw := &scriptedGateway{
		placeErrs:  []error{exchange.NewTransientError("place_order", exchange.ErrTimeout)},
		placeResp:  filledResponse("1", "10"),
		statuses:   []*domain.OrderResponse{filledResponse("1", "10")},
		statusErrs: nil,
	}
	s := &sleepRecorder{}
	intent := sellIntent("1")

	result := newTestRetrier(gw, s, &memRecorder{}, &memNotifier{}).Submit(context.Background(), intent)

	assert.Equal(t, domain.StatusFilled, result.Status)
	assert.Len(t, gw.placed, 1, "이미 접수된 주문은 다시 제출하지 않는다")
	assert.Equal(t, intent.ClientOrderID(), gw.polls[0])
	assert.Empty(t, s.delays)
}

func TestSubmitDetachedFromCallerDeadline(t *testing.T) {
	gw := &scriptedGateway{
		placeResp: filledResponse("1", "10"),
		statuses:  []*domain.OrderResponse{filledResponse("1", "10")},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestRetrier(gw, &sleepRecorder{}, &memRecorder{}, &memNotifier{}).Submit(ctx, sellIntent("1"))

	assert.Equal(t, domain.StatusFilled, result.Status)
}

func TestSubmitShutdownInterruptsBackoff(t *testing.T) {
	rateLimited := exchange.NewTransientError("place_order", exchange.ErrRateLimited)
	gw := &scriptedGateway{placeErrs: []error{rateLimited, rateLimited}, placeResp: filledResponse("1", "10")}

	shutdown, cancel := context.WithCancel(context.Background())
	cancel()
	s := &sleepRecorder{}

	result := NewRetrier(gw, WithSleeper(s.sleep), WithShutdown(shutdown)).Submit(context.Background(), sellIntent("1"))

	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, domain.ErrorKindCanceled, result.ErrorKind)
	assert.Len(t, gw.placed, 1)
}
