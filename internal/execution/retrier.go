package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/exchange"
	"github.com/assist-by/fleetguard/internal/metrics"
	"github.com/assist-by/fleetguard/internal/notification"
	"github.com/shopspring/decimal"
)

// PartialFillTolerance는 요청량 대비 허용하는 미체결 비율입니다 (1%)
var PartialFillTolerance = decimal.RequireFromString("0.01")

// RetryConfig는 재시도 설정을 정의합니다
type RetryConfig struct {
	MaxRetries int           // 최대 재시도 횟수
	BaseDelay  time.Duration // 기본 대기 시간
	MaxDelay   time.Duration // 최대 대기 시간
	Factor     float64       // 대기 시간 증가 계수
}

// DefaultRetryConfig는 3회 재시도, 2s/4s/8s 대기입니다
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Factor:     2,
	}
}

// VerifyConfig는 주문 후 상태 확인 설정입니다
type VerifyConfig struct {
	Attempts int           // 최대 조회 횟수
	Interval time.Duration // 조회 간격
}

// DefaultVerifyConfig는 1초 간격 최대 5회 조회입니다
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{Attempts: 5, Interval: time.Second}
}

// OrderGateway는 주문 실행에 필요한 거래소 기능입니다. exchange.Gateway가 구현합니다.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error)
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderResponse, error)
}

// Recorder는 주문 결과를 남깁니다. journal.SQLite가 구현합니다.
type Recorder interface {
	Record(ctx context.Context, r domain.OrderResult) error
}

// Sleeper는 d만큼 대기합니다. ctx가 취소되면 에러를 반환합니다.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier는 주문 제안을 거래소에 제출하고, 일시적 오류는 재시도하며, 결과를 거래소 조회로 확인합니다.
// 계정마다 하나씩 사용합니다.
type Retrier struct {
	gateway  OrderGateway
	recorder Recorder
	notifier notification.Notifier

	retry       RetryConfig
	verify      VerifyConfig
	callTimeout time.Duration
	sleep       Sleeper
	shutdown    context.Context
	now         func() time.Time
}

// Option은 Retrier 옵션입니다
type Option func(*Retrier)

// WithRetryConfig는 재시도 설정을 지정합니다
func WithRetryConfig(config RetryConfig) Option {
	return func(r *Retrier) {
		r.retry = config
	}
}

// WithVerifyConfig는 상태 확인 설정을 지정합니다
func WithVerifyConfig(config VerifyConfig) Option {
	return func(r *Retrier) {
		r.verify = config
	}
}

// WithRecorder는 주문 결과 저널을 지정합니다
func WithRecorder(recorder Recorder) Option {
	return func(r *Retrier) {
		r.recorder = recorder
	}
}

// WithNotifier는 거절/에러 알림을 보낼 곳을 지정합니다
func WithNotifier(notifier notification.Notifier) Option {
	return func(r *Retrier) {
		r.notifier = notifier
	}
}

// WithSleeper는 대기 함수를 교체합니다 (테스트용)
func WithSleeper(sleep Sleeper) Option {
	return func(r *Retrier) {
		r.sleep = sleep
	}
}

// WithCallTimeout은 거래소 호출 한 번의 제한 시간을 지정합니다
func WithCallTimeout(d time.Duration) Option {
	return func(r *Retrier) {
		r.callTimeout = d
	}
}

// WithShutdown은 재시도 대기를 중단시킬 프로세스 종료 컨텍스트를 지정합니다
func WithShutdown(ctx context.Context) Option {
	return func(r *Retrier) {
		r.shutdown = ctx
	}
}

// NewRetrier는 새로운 주문 실행기를 생성합니다
func NewRetrier(gateway OrderGateway, opts ...Option) *Retrier {
	r := &Retrier{
		gateway:     gateway,
		retry:       DefaultRetryConfig(),
		verify:      DefaultVerifyConfig(),
		callTimeout: 10 * time.Second,
		sleep:       sleepContext,
		shutdown:    context.Background(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit은 주문 제안 하나를 실행하고 최종 결과를 반환합니다. 에러를 반환하지 않습니다.
// 사이클의 마감 시간과 무관하게 끝까지 진행하며, 프로세스 종료 시에만 대기를 중단합니다.
func (r *Retrier) Submit(ctx context.Context, intent domain.OrderIntent) domain.OrderResult {
	opCtx := context.WithoutCancel(ctx)

	result := domain.OrderResult{Intent: intent}
	op := fmt.Sprintf("[%s] %s %s %s (%s)", intent.AccountID, intent.Side, intent.Amount.String(), intent.Symbol, intent.Reason)

	resp, attempts, err := r.place(opCtx, intent, op)
	result.Attempts = attempts
	if err != nil {
		result.ErrorMessage = err.Error()
		switch {
		case errors.Is(err, context.Canceled):
			result.Status = domain.StatusError
			result.ErrorKind = domain.ErrorKindCanceled
		case exchange.Classify(err) == exchange.Transient:
			result.Status = domain.StatusError
			result.ErrorKind = domain.ErrorKindTransient
		default:
			result.Status = domain.StatusRejected
			result.ErrorKind = domain.ErrorKindPermanent
		}
		return r.finish(opCtx, result)
	}

	final, verified := r.confirm(opCtx, intent, resp, op)
	result.OrderID = final.OrderID
	result.Verified = verified
	applyResponse(&result, final)
	if !verified && result.ErrorKind == domain.ErrorKindNone {
		result.ErrorKind = domain.ErrorKindUnverified
	}

	return r.finish(opCtx, result)
}

// place는 주문을 제출하고, 일시적 오류면 지수 백오프로 재시도합니다
func (r *Retrier) place(ctx context.Context, intent domain.OrderIntent, op string) (*domain.OrderResponse, int, error) {
	req := intent.Request()
	delay := r.retry.BaseDelay

	var lastErr error
	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		resp, err := r.call(ctx, func(callCtx context.Context) (*domain.OrderResponse, error) {
			return r.gateway.PlaceOrder(callCtx, req)
		})
		if err == nil {
			return resp, attempt + 1, nil
		}
		lastErr = err

		if !exchange.IsTransient(err) {
			log.Printf("%s 실패 (재시도 불필요): %v", op, err)
			return nil, attempt + 1, err
		}

		// 응답만 유실되고 주문은 들어갔을 수 있으므로 클라이언트 주문 ID로 먼저 확인합니다
		if attempt > 0 || errors.Is(err, exchange.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			if found, probeErr := r.call(ctx, func(callCtx context.Context) (*domain.OrderResponse, error) {
				return r.gateway.GetOrderStatus(callCtx, intent.Symbol, intent.ClientOrderID())
			}); probeErr == nil && found != nil {
				log.Printf("%s 이전 시도의 주문이 접수되어 있음 (주문 ID: %s)", op, found.OrderID)
				return found, attempt + 1, nil
			}
		}

		if attempt == r.retry.MaxRetries {
			log.Printf("%s 실패 (최대 재시도 횟수 초과): %v", op, err)
			break
		}

		log.Printf("%s 실패 (attempt %d/%d): %v", op, attempt+1, r.retry.MaxRetries, err)

		if err := r.sleep(r.shutdown, delay); err != nil {
			return nil, attempt + 1, fmt.Errorf("재시도 대기 중 종료: %w", context.Canceled)
		}
		delay = time.Duration(float64(delay) * r.retry.Factor)
		if delay > r.retry.MaxDelay {
			delay = r.retry.MaxDelay
		}
	}

	return nil, r.retry.MaxRetries + 1, fmt.Errorf("최대 재시도 횟수 초과: %w", lastErr)
}

// confirm은 주문 상태를 조회해 최종 상태를 확정합니다. 조회 결과가 동기 응답보다 우선합니다.
func (r *Retrier) confirm(ctx context.Context, intent domain.OrderIntent, resp *domain.OrderResponse, op string) (*domain.OrderResponse, bool) {
	final := resp
	orderID := resp.OrderID
	if orderID == "" {
		orderID = intent.ClientOrderID()
	}

	for i := 0; i < r.verify.Attempts; i++ {
		if i > 0 {
			if err := r.sleep(r.shutdown, r.verify.Interval); err != nil {
				log.Printf("%s 상태 확인 중 종료", op)
				return final, false
			}
		}

		status, err := r.call(ctx, func(callCtx context.Context) (*domain.OrderResponse, error) {
			return r.gateway.GetOrderStatus(callCtx, intent.Symbol, orderID)
		})
		if err != nil {
			log.Printf("%s 상태 조회 실패 (%d/%d): %v", op, i+1, r.verify.Attempts, err)
			continue
		}

		final = status
		if final.OrderID == "" {
			final.OrderID = resp.OrderID
		}
		if status.State.Terminal() {
			return final, true
		}
	}

	log.Printf("%s 최종 상태 확인 실패, 마지막 상태 %s 사용", op, final.State)
	return final, false
}

func (r *Retrier) call(ctx context.Context, fn func(context.Context) (*domain.OrderResponse, error)) (*domain.OrderResponse, error) {
	if r.callTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return fn(callCtx)
}

// applyResponse는 거래소 주문 상태를 결과 상태로 변환합니다
func applyResponse(result *domain.OrderResult, resp *domain.OrderResponse) {
	executed := resp.ExecutedQuantity
	intent := result.Intent

	if !executed.IsPositive() {
		result.FilledQty = decimal.Zero
		if resp.State.Terminal() {
			result.Status = domain.StatusRejected
			result.ErrorKind = domain.ErrorKindCanceled
			result.ErrorMessage = fmt.Sprintf("체결 없이 종료됨: %s", resp.State)
			return
		}
		result.Status = domain.StatusError
		result.ErrorKind = domain.ErrorKindUnverified
		result.ErrorMessage = fmt.Sprintf("체결 확인 실패: %s", resp.State)
		return
	}

	result.FilledQty = executed
	result.FilledPrice = resp.AvgPrice
	if !result.FilledPrice.IsPositive() && resp.QuoteExecuted.IsPositive() {
		result.FilledPrice = resp.QuoteExecuted.Div(executed)
	}

	filled := executed
	if intent.AmountKind == domain.QuoteUSD {
		filled = resp.QuoteExecuted
		if !filled.IsPositive() {
			filled = executed.Mul(result.FilledPrice)
		}
	}

	minimum := intent.Amount.Mul(decimal.NewFromInt(1).Sub(PartialFillTolerance))
	if filled.LessThan(minimum) {
		result.Status = domain.StatusPartial
		return
	}
	result.Status = domain.StatusFilled
}

// finish는 결과를 저널, 메트릭, 알림에 남깁니다
func (r *Retrier) finish(ctx context.Context, result domain.OrderResult) domain.OrderResult {
	result.CompletedAt = r.now().UTC()
	intent := result.Intent

	if result.Filled() {
		log.Printf("[%s] 주문 %s: %s %s %s @ %s (시도 %d회, 확인 %v)",
			intent.AccountID, result.Status, intent.Side, result.FilledQty.String(), intent.Symbol,
			result.FilledPrice.String(), result.Attempts, result.Verified)
	} else {
		log.Printf("[%s] 주문 %s: %s %s (%s: %s)",
			intent.AccountID, result.Status, intent.Side, intent.Symbol, result.ErrorKind, result.ErrorMessage)
	}

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, result); err != nil {
			log.Printf("[%s] 주문 결과 기록 실패: %v", intent.AccountID, err)
		}
	}

	metrics.IncOrder(intent.AccountID, string(intent.Reason), string(result.Status))
	metrics.AddOrderAttempts(intent.AccountID, result.Attempts)

	if r.notifier != nil && (result.Status == domain.StatusRejected || result.Status == domain.StatusError) {
		if err := r.notifier.SendOrderResult(result); err != nil {
			log.Printf("[%s] 알림 전송 실패: %v", intent.AccountID, err)
		}
	}

	return result
}
