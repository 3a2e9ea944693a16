package capital

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 자본 관리 에러
var (
	ErrInsufficientCapital = errors.New("가용 자본 부족")
	ErrInvalidAmount       = errors.New("예약 금액은 0보다 커야 합니다")
)

// InsufficientCapitalError는 예약 거절 사유를 담습니다.
// 예외 상황이 아니라 호출자가 매 진입 전에 확인해야 하는 정상적인 결과입니다.
type InsufficientCapitalError struct {
	AccountID string
	Requested decimal.Decimal
	Free      decimal.Decimal
}

// Error는 error 인터페이스를 구현합니다
func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("계정 %s: 요청 %s USD > 가용 %s USD", e.AccountID, e.Requested.StringFixed(2), e.Free.StringFixed(2))
}

// Unwrap은 errors.Is(err, ErrInsufficientCapital)를 지원합니다
func (e *InsufficientCapitalError) Unwrap() error {
	return ErrInsufficientCapital
}

// BalanceSource는 계정 총 잔고(USD)를 제공합니다. exchange.Gateway가 구현합니다.
type BalanceSource interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// ExposureSource는 현재 보유 포지션의 총 가치(USD)를 제공합니다
type ExposureSource interface {
	OpenExposure() decimal.Decimal
}

// Free는 가용 자본을 계산합니다.
// balance − exposure − reserved − balance × bufferPct, 0 미만이면 0
func Free(balance, exposure, reserved, bufferPct decimal.Decimal) decimal.Decimal {
	free := balance.Sub(exposure).Sub(reserved).Sub(balance.Mul(bufferPct))
	if free.IsNegative() {
		return decimal.Zero
	}
	return free
}

// Controller는 한 계정의 자본 예약을 관리합니다. 계정 간에 공유하지 않습니다.
type Controller struct {
	account  domain.Account
	balance  BalanceSource
	exposure ExposureSource
	ttl      time.Duration
	now      func() time.Time

	mu           sync.Mutex
	reservations map[string]domain.CapitalReservation
}

// Option은 Controller 옵션입니다
type Option func(*Controller)

// WithReservationTTL은 예약이 자동 해제되기까지의 시간을 설정합니다
func WithReservationTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		c.ttl = ttl
	}
}

// WithClock은 테스트용 시계를 지정합니다
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController는 새로운 자본 관리자를 생성합니다
func NewController(account domain.Account, balance BalanceSource, exposure ExposureSource, opts ...Option) *Controller {
	c := &Controller{
		account:      account,
		balance:      balance,
		exposure:     exposure,
		ttl:          10 * time.Minute,
		now:          time.Now,
		reservations: make(map[string]domain.CapitalReservation),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) reservedLocked() decimal.Decimal {
	total := decimal.Zero
	for _, r := range c.reservations {
		total = total.Add(r.AmountUSD)
	}
	return total
}

// FreeCapital은 현재 가용 자본을 반환합니다
func (c *Controller) FreeCapital(ctx context.Context) (decimal.Decimal, error) {
	balance, err := c.balance.GetBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("잔고 조회 실패: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	free := Free(balance, c.exposure.OpenExposure(), c.reservedLocked(), c.account.CapitalBufferPct)
	metrics.SetFreeCapital(c.account.ID, free)
	return free, nil
}

// Reserve는 주문 전에 자본을 예약합니다. 가용 자본보다 크면 일부만 예약하지 않고 바로 실패합니다.
func (c *Controller) Reserve(ctx context.Context, amountUSD decimal.Decimal) (domain.CapitalReservation, error) {
	if !amountUSD.IsPositive() {
		return domain.CapitalReservation{}, ErrInvalidAmount
	}

	balance, err := c.balance.GetBalance(ctx)
	if err != nil {
		return domain.CapitalReservation{}, fmt.Errorf("잔고 조회 실패: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	free := Free(balance, c.exposure.OpenExposure(), c.reservedLocked(), c.account.CapitalBufferPct)
	metrics.SetFreeCapital(c.account.ID, free)

	if amountUSD.GreaterThan(free) {
		metrics.IncReservationRejected(c.account.ID)
		return domain.CapitalReservation{}, &InsufficientCapitalError{
			AccountID: c.account.ID,
			Requested: amountUSD,
			Free:      free,
		}
	}

	r := domain.CapitalReservation{
		ID:        uuid.NewString(),
		AccountID: c.account.ID,
		AmountUSD: amountUSD,
		CreatedAt: c.now(),
	}
	c.reservations[r.ID] = r
	metrics.SetReservedCapital(c.account.ID, c.reservedLocked())
	return r, nil
}

// Release는 예약을 해제합니다. 여러 번 호출해도 안전합니다.
func (c *Controller) Release(r domain.CapitalReservation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.reservations[r.ID]; !ok {
		return
	}
	delete(c.reservations, r.ID)
	metrics.SetReservedCapital(c.account.ID, c.reservedLocked())
}

// Reserved는 활성 예약의 합계를 반환합니다
func (c *Controller) Reserved() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reservedLocked()
}

// Active는 활성 예약 목록을 생성 순으로 반환합니다
func (c *Controller) Active() []domain.CapitalReservation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.CapitalReservation, 0, len(c.reservations))
	for _, r := range c.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Sweep은 TTL을 넘긴 예약을 해제하고 그 목록을 반환합니다.
// 정상 흐름에서는 주문 완료 시 항상 해제되므로 여기에 걸리는 예약은 버그입니다.
func (c *Controller) Sweep() []domain.CapitalReservation {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []domain.CapitalReservation
	for id, r := range c.reservations {
		if now.Sub(r.CreatedAt) >= c.ttl {
			expired = append(expired, r)
			delete(c.reservations, id)
			log.Printf("[%s] 만료된 자본 예약 해제: %s (%s USD, 생성 %s)",
				c.account.ID, r.ID, r.AmountUSD.StringFixed(2), r.CreatedAt.Format(time.RFC3339))
		}
	}
	if len(expired) > 0 {
		metrics.SetReservedCapital(c.account.ID, c.reservedLocked())
	}
	return expired
}
