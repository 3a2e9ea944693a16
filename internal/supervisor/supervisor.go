package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/assist-by/fleetguard/internal/capital"
	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/emergency"
	"github.com/assist-by/fleetguard/internal/exchange"
	"github.com/assist-by/fleetguard/internal/metrics"
	"github.com/assist-by/fleetguard/internal/notification"
	"github.com/assist-by/fleetguard/internal/position"
	"github.com/assist-by/fleetguard/internal/signal"
	"github.com/assist-by/fleetguard/internal/store"
	"github.com/shopspring/decimal"
)

// ErrNotStarted는 시작 점검을 통과하기 전에 사이클을 돌리려 할 때 반환됩니다
var ErrNotStarted = errors.New("감독자 시작 점검이 완료되지 않았습니다")

// BaseQtyReserveMarkup은 코인 수량 단위 매수의 자본 예약에 더하는 슬리피지 여유분입니다
var BaseQtyReserveMarkup = decimal.RequireFromString("1.01")

// Blacklist는 감독자가 사용하는 먼지 블랙리스트 기능입니다. dust.Blacklist가 구현합니다.
type Blacklist interface {
	position.DustList
	Refresh() error
}

// Supervisor는 한 계정의 감독 사이클을 실행합니다.
// 다른 계정과 공유하는 가변 상태가 없으며, 사이클은 겹쳐 실행되지 않습니다.
type Supervisor struct {
	account   domain.Account
	gateway   exchange.Gateway
	store     *store.Store
	blacklist Blacklist
	sw        *emergency.Switch
	submitter position.Submitter
	signals   signal.Source
	notifier  notification.Notifier

	book     *position.Book
	capital  *capital.Controller
	enforcer *position.CapEnforcer

	cycleTimeout time.Duration
	capitalOpts  []capital.Option

	cycleMu sync.Mutex // 사이클 직렬화

	mu       sync.RWMutex
	state    State
	started  bool
	last     *CycleReport
	excluded decimal.Decimal // 장부에서 제외한 먼지 보유분 가치
}

// Option은 감독자 옵션입니다
type Option func(*Supervisor)

// WithNotifier는 운영자 알림을 보낼 곳을 지정합니다
func WithNotifier(n notification.Notifier) Option {
	return func(s *Supervisor) {
		s.notifier = n
	}
}

// WithCycleTimeout은 새 주문 후보 처리를 멈추는 사이클 마감 시간을 지정합니다.
// 이미 제출된 주문은 마감 시간과 무관하게 끝까지 진행됩니다.
func WithCycleTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.cycleTimeout = d
	}
}

// WithCapitalOptions는 자본 관리자 옵션을 전달합니다
func WithCapitalOptions(opts ...capital.Option) Option {
	return func(s *Supervisor) {
		s.capitalOpts = append(s.capitalOpts, opts...)
	}
}

// New는 계정 감독자를 생성합니다. submitter는 보통 계정 전용 execution.Retrier입니다.
func New(
	account domain.Account,
	gateway exchange.Gateway,
	st *store.Store,
	blacklist Blacklist,
	sw *emergency.Switch,
	submitter position.Submitter,
	signals signal.Source,
	opts ...Option,
) *Supervisor {
	s := &Supervisor{
		account:      account,
		gateway:      gateway,
		store:        st,
		blacklist:    blacklist,
		sw:           sw,
		submitter:    submitter,
		signals:      signals,
		cycleTimeout: account.CycleInterval,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.book = position.NewBook(account.ID, nil)
	s.capital = capital.NewController(account, countedBalance{s}, s.book, s.capitalOpts...)
	s.enforcer = position.NewCapEnforcer(submitter, blacklist)
	return s
}

// Account는 감독 중인 계정을 반환합니다
func (s *Supervisor) Account() domain.Account {
	return s.account
}

// Book은 계정의 포지션 장부를 반환합니다
func (s *Supervisor) Book() *position.Book {
	return s.book
}

// Capital은 계정의 자본 관리자를 반환합니다
func (s *Supervisor) Capital() *capital.Controller {
	return s.capital
}

// State는 현재 단계를 반환합니다
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Started는 시작 점검을 통과했는지 확인합니다
func (s *Supervisor) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// LastReport는 마지막 사이클 결과를 반환합니다
func (s *Supervisor) LastReport() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next {
		metrics.SetState(s.account.ID, string(prev), string(next))
	}
}

func (s *Supervisor) logf(format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{s.account.ID}, args...)...)
}

// Start는 저장된 스냅샷을 읽어 거래소와 대조하고, 포지션 한도를 집행한 뒤 저장합니다.
// 성공하기 전까지는 어떤 진입 주문도 내지 않습니다.
func (s *Supervisor) Start(ctx context.Context) (err error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	report := &CycleReport{AccountID: s.account.ID, Mode: ModeStartup, StartedAt: start}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("시작 점검 중 패닉: %v", r)
			s.logf("%v\n%s", err, debug.Stack())
		}
		report.fail(err)
		s.finishReport(report, start)
	}()

	persisted, err := s.store.Load(s.account.ID)
	if err != nil {
		return fmt.Errorf("스냅샷 읽기 실패: %w", err)
	}

	if err := s.reconcile(ctx, persisted); err != nil {
		return err
	}

	s.setState(StateEnforcingCap)
	s.enforce(ctx, report)

	s.setState(StatePersisting)
	if err := s.store.Save(s.account.ID, s.book.Positions()); err != nil {
		return fmt.Errorf("스냅샷 저장 실패: %w", err)
	}
	report.Persisted = true

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	if s.sw != nil {
		s.sw.Register(s.account.ID)
	}

	s.logf("시작 점검 완료: 포지션 %d개 (한도 %d개)", s.book.Count(), s.account.MaxPositions)
	return nil
}

// Close는 긴급 청산 스위치에서 계정을 제외합니다
func (s *Supervisor) Close() error {
	if s.sw == nil || !s.Started() {
		return nil
	}
	return s.sw.Unregister(s.account.ID)
}

// reconcile은 거래소 보유 내역으로 장부를 갱신합니다. 블랙리스트 심볼은 제외합니다.
func (s *Supervisor) reconcile(ctx context.Context, persisted []domain.Position) error {
	if err := s.blacklist.Refresh(); err != nil {
		s.logf("블랙리스트 갱신 실패, 기존 목록 사용: %v", err)
	}

	live, err := s.gateway.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("거래소 포지션 조회 실패: %w", err)
	}

	counted := make([]domain.RawPosition, 0, len(live))
	excluded := decimal.Zero
	for _, raw := range live {
		if s.blacklist.Contains(raw.Symbol) {
			excluded = excluded.Add(raw.USDValue())
			continue
		}
		counted = append(counted, raw)
	}
	s.setExcluded(excluded)

	var resolver exchange.EntryPriceResolver
	if r, ok := s.gateway.(exchange.EntryPriceResolver); ok {
		resolver = r
	}

	reconciled, rep := s.store.Validate(ctx, persisted, counted, resolver)
	if len(rep.Adjusted)+len(rep.Dropped)+len(rep.Adopted) > 0 {
		s.logf("거래소 대조: 유지 %v, 수량 보정 %v, 제거 %v, 편입 %v", rep.Kept, rep.Adjusted, rep.Dropped, rep.Adopted)
	}
	s.book.Replace(reconciled)
	return nil
}

func (s *Supervisor) enforce(ctx context.Context, report *CycleReport) {
	result := s.enforcer.Enforce(ctx, s.account, s.book.Positions())
	s.book.Replace(result.Held())

	report.Enforcement = &result
	added := decimal.Zero
	for _, entry := range result.Blacklisted {
		added = added.Add(entry.USDValueAtBlacklist)
	}
	if added.IsPositive() {
		s.setExcluded(s.excludedValue().Add(added))
	}
	report.Orders = append(report.Orders, result.Evicted...)
	for _, err := range result.Errors {
		report.fail(err)
	}
}

func (s *Supervisor) setExcluded(v decimal.Decimal) {
	s.mu.Lock()
	s.excluded = v
	s.mu.Unlock()
}

func (s *Supervisor) excludedValue() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.excluded
}

// countedBalance는 거래소 잔고에서 장부가 세지 않는 먼지 보유분 가치를 뺍니다.
// 노출액에 없는 자산이 가용 자본으로 잡히지 않게 합니다.
type countedBalance struct {
	s *Supervisor
}

func (b countedBalance) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	balance, err := b.s.gateway.GetBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Sub(b.s.excludedValue()), nil
}

// Execute는 scheduler.Task를 구현합니다
func (s *Supervisor) Execute(ctx context.Context) error {
	return s.RunCycle(ctx).Err()
}

// RunCycle은 감독 사이클 하나를 실행합니다. 패닉은 사이클 에러로 바뀌고, 저장 단계는 항상 실행됩니다.
func (s *Supervisor) RunCycle(ctx context.Context) (report CycleReport) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	report = CycleReport{AccountID: s.account.ID, Mode: ModeNormal, StartedAt: start}

	if !s.Started() {
		report.fail(ErrNotStarted)
		s.finishReport(&report, start)
		return report
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("사이클 중 패닉: %v", r)
			s.logf("%v\n%s", err, debug.Stack())
			report.fail(err)
			if s.notifier != nil {
				_ = s.notifier.SendError(fmt.Errorf("[%s] %w", s.account.ID, err))
			}
		}
		s.persist(&report)
		s.finishReport(&report, start)
	}()

	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	if expired := s.capital.Sweep(); len(expired) > 0 {
		report.fail(fmt.Errorf("만료된 자본 예약 %d건 해제", len(expired)))
	}

	s.setState(StateCheckingEmergency)
	var mode emergency.Mode
	if s.sw != nil {
		mode = s.sw.Snapshot(s.account.ID)
	}

	if err := s.reconcile(ctx, s.book.Positions()); err != nil {
		report.fail(err)
		if !mode.Liquidate {
			return report
		}
		// 조회에 실패해도 장부에 남은 포지션으로 청산을 시도합니다
	}

	if mode.Liquidate {
		report.Mode = ModeEmergency
		s.liquidate(ctx, mode, &report)
		return report
	}

	s.setState(StateEnforcingCap)
	s.enforce(ctx, &report)

	s.setState(StateEvaluatingSignals)
	if free, err := s.capital.FreeCapital(ctx); err != nil {
		report.fail(err)
	} else {
		report.FreeCapital = free
	}

	candidates, err := s.signals.NextCandidates(ctx, s.account)
	if err != nil {
		report.fail(fmt.Errorf("주문 후보 조회 실패: %w", err))
	}
	if len(candidates) == 0 {
		return report
	}

	s.setState(StateExecuting)
	for i, intent := range candidates {
		if ctx.Err() != nil {
			for _, rest := range candidates[i:] {
				report.skip(rest, "사이클 마감 시간 초과")
			}
			s.logf("사이클 마감 시간 초과로 후보 %d개 보류", len(candidates)-i)
			break
		}
		s.execute(ctx, intent, &report)
	}

	return report
}

// execute는 주문 후보 하나를 처리합니다. 실패해도 다음 후보 처리를 막지 않습니다.
func (s *Supervisor) execute(ctx context.Context, intent domain.OrderIntent, report *CycleReport) {
	if intent.AccountID != s.account.ID {
		report.skip(intent, fmt.Sprintf("다른 계정(%s)의 후보", intent.AccountID))
		return
	}

	switch intent.Side {
	case domain.Buy:
		s.executeEntry(ctx, intent, report)
	case domain.Sell:
		s.executeExit(ctx, intent, report)
	default:
		report.skip(intent, fmt.Sprintf("알 수 없는 주문 방향 %q", intent.Side))
	}
}

func (s *Supervisor) executeEntry(ctx context.Context, intent domain.OrderIntent, report *CycleReport) {
	switch {
	case s.book.Holds(intent.Symbol):
		report.skip(intent, "이미 보유 중인 심볼")
		return
	case s.blacklist.Contains(intent.Symbol):
		report.skip(intent, "먼지 블랙리스트 심볼")
		return
	case s.book.Count() >= s.account.MaxPositions:
		report.skip(intent, fmt.Sprintf("포지션 한도 도달 (%d/%d)", s.book.Count(), s.account.MaxPositions))
		return
	}

	amountUSD, err := s.entryCost(ctx, intent)
	if err != nil {
		report.skip(intent, err.Error())
		return
	}

	reservation, err := s.capital.Reserve(ctx, amountUSD)
	if err != nil {
		if errors.Is(err, capital.ErrInsufficientCapital) {
			s.logf("진입 보류 %s: %v", intent.Symbol, err)
			report.skip(intent, err.Error())
			return
		}
		report.fail(fmt.Errorf("%s 자본 예약 실패: %w", intent.Symbol, err))
		return
	}
	defer s.capital.Release(reservation)

	result := s.submitter.Submit(ctx, intent)
	report.Orders = append(report.Orders, result)
	if err := s.book.ApplyFill(result); err != nil {
		report.fail(err)
	}
}

// entryCost는 매수 후보에 필요한 USD 금액을 계산합니다
func (s *Supervisor) entryCost(ctx context.Context, intent domain.OrderIntent) (decimal.Decimal, error) {
	if intent.AmountKind == domain.QuoteUSD {
		return intent.Amount, nil
	}

	quoter, ok := s.gateway.(exchange.PriceQuoter)
	if !ok {
		return decimal.Zero, fmt.Errorf("현재가를 알 수 없어 코인 수량 단위 매수를 처리할 수 없습니다")
	}
	price, err := quoter.GetPrice(ctx, intent.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s 현재가 조회 실패: %v", intent.Symbol, err)
	}
	return intent.Amount.Mul(price).Mul(BaseQtyReserveMarkup), nil
}

// executeExit는 전략 청산 후보를 보유 수량 이내로 맞춰 실행합니다
func (s *Supervisor) executeExit(ctx context.Context, intent domain.OrderIntent, report *CycleReport) {
	held, ok := s.book.Get(intent.Symbol)
	if !ok {
		report.skip(intent, position.NewPositionError(intent.Symbol, "exit", position.ErrNotHeld).Error())
		return
	}

	qty := intent.Amount
	if intent.AmountKind == domain.QuoteUSD {
		if !held.CurrentPrice.IsPositive() {
			report.skip(intent, "현재가를 알 수 없어 USD 금액 단위 매도를 처리할 수 없습니다")
			return
		}
		qty = intent.Amount.Div(held.CurrentPrice)
	}
	if qty.GreaterThan(held.Quantity) {
		s.logf("%s 매도 수량 %s를 보유 수량 %s로 조정", intent.Symbol, qty.String(), held.Quantity.String())
		qty = held.Quantity
	}

	clamped := intent
	clamped.Amount = qty
	clamped.AmountKind = domain.BaseQty

	result := s.submitter.Submit(ctx, clamped)
	report.Orders = append(report.Orders, result)
	if err := s.book.ApplyFill(result); err != nil {
		report.fail(err)
	}
}

// liquidate는 보유 포지션 전부를 매도합니다. 개별 매도 결과와 무관하게 스위치에 완료를 알립니다.
func (s *Supervisor) liquidate(ctx context.Context, mode emergency.Mode, report *CycleReport) {
	s.setState(StateEmergencyLiquidation)
	metrics.IncLiquidation(s.account.ID)

	defer func() {
		if s.sw == nil {
			return
		}
		if _, err := s.sw.Acknowledge(s.account.ID, mode.Token); err != nil {
			report.fail(fmt.Errorf("긴급 청산 완료 기록 실패: %w", err))
		}
	}()

	positions := s.book.Positions()
	s.logf("긴급 청산 시작: 포지션 %d개 (사유: %s)", len(positions), mode.Reason)

	failed := 0
	for _, p := range positions {
		intent := domain.NewOrderIntent(s.account.ID, p.Symbol, domain.Sell, p.Quantity, domain.BaseQty, domain.EmergencyLiquidation)
		result := s.submitter.Submit(ctx, intent)
		report.Orders = append(report.Orders, result)

		if err := s.book.ApplyFill(result); err != nil {
			report.fail(err)
		}
		if result.Status != domain.StatusFilled {
			failed++
			report.fail(position.NewPositionError(p.Symbol, "liquidate",
				fmt.Errorf("%s: %s", result.Status, result.ErrorMessage)))
		}
	}

	msg := fmt.Sprintf("[%s] 긴급 청산 완료: %d개 중 %d개 성공, 남은 포지션 %d개",
		s.account.ID, len(positions), len(positions)-failed, s.book.Count())
	s.logf("%s", msg)
	if s.notifier != nil {
		if err := s.notifier.SendInfo(msg); err != nil {
			s.logf("알림 전송 실패: %v", err)
		}
	}
}

// persist는 장부를 스냅샷으로 저장합니다
func (s *Supervisor) persist(report *CycleReport) {
	s.setState(StatePersisting)
	if err := s.store.Save(s.account.ID, s.book.Positions()); err != nil {
		report.fail(fmt.Errorf("스냅샷 저장 실패: %w", err))
		return
	}
	report.Persisted = true
}

func (s *Supervisor) finishReport(report *CycleReport, start time.Time) {
	report.Duration = time.Since(start)
	s.setState(StateIdle)

	metrics.ObserveCycle(s.account.ID, report.Mode, report.Duration.Seconds())
	if len(report.Errors) > 0 {
		metrics.IncCycleFailure(s.account.ID)
		s.logf("사이클 완료 (%s, %v): 주문 %d건, 보류 %d건, 에러 %d건: %v",
			report.Mode, report.Duration.Round(time.Millisecond), len(report.Orders), len(report.Skipped), len(report.Errors), report.Err())
	} else {
		s.logf("사이클 완료 (%s, %v): 주문 %d건, 보류 %d건, 포지션 %d개",
			report.Mode, report.Duration.Round(time.Millisecond), len(report.Orders), len(report.Skipped), s.book.Count())
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
}
