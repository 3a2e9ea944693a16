// Package fleet은 계정마다 독립된 고루틴에서 감독 사이클을 실행합니다.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/notification"
	"github.com/assist-by/fleetguard/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

// Runner는 한 계정의 감독자입니다. supervisor.Supervisor가 구현합니다.
type Runner interface {
	scheduler.Task
	Account() domain.Account
	Start(ctx context.Context) error
	Close() error
}

// Fleet은 여러 계정의 감독자를 동시에 실행합니다.
// 한 계정의 실패나 패닉은 다른 계정에 영향을 주지 않습니다.
type Fleet struct {
	runners       []Runner
	notifier      notification.Notifier
	startRetry    time.Duration
	immediateRun  bool
	maxStartDelay time.Duration
}

// Option은 Fleet 옵션입니다
type Option func(*Fleet)

// WithNotifier는 계정 실패를 알릴 곳을 지정합니다
func WithNotifier(n notification.Notifier) Option {
	return func(f *Fleet) {
		f.notifier = n
	}
}

// WithStartRetry는 시작 점검 실패 시 다시 시도하기까지의 기본 대기 시간입니다
func WithStartRetry(d time.Duration) Option {
	return func(f *Fleet) {
		f.startRetry = d
	}
}

// WithImmediateRun은 시작 점검 직후 첫 사이클을 바로 실행합니다
func WithImmediateRun() Option {
	return func(f *Fleet) {
		f.immediateRun = true
	}
}

// New는 새로운 Fleet을 생성합니다
func New(runners []Runner, opts ...Option) *Fleet {
	f := &Fleet{
		runners:       runners,
		startRetry:    5 * time.Second,
		maxStartDelay: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run은 ctx가 취소될 때까지 모든 계정을 실행합니다
func (f *Fleet) Run(ctx context.Context) error {
	if len(f.runners) == 0 {
		return errors.New("실행할 계정이 없습니다")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range f.runners {
		r := r
		g.Go(func() error {
			f.runAccount(gctx, r)
			return nil
		})
	}

	log.Printf("계정 %d개 감독 시작", len(f.runners))
	err := g.Wait()
	log.Printf("모든 계정 감독 종료")
	return err
}

// runAccount는 한 계정의 수명 주기를 관리합니다. 패닉이 나도 반환만 합니다.
func (f *Fleet) runAccount(ctx context.Context, r Runner) {
	account := r.Account()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("[%s] 계정 고루틴 패닉: %v", account.ID, rec)
			log.Printf("%v\n%s", err, debug.Stack())
			f.notify(err)
		}
		if err := r.Close(); err != nil {
			log.Printf("[%s] 종료 처리 실패: %v", account.ID, err)
		}
	}()

	if !f.start(ctx, r) {
		return
	}

	var opts []scheduler.Option
	opts = append(opts, scheduler.WithName(account.ID))
	if f.immediateRun {
		opts = append(opts, scheduler.WithImmediateRun())
	}

	s := scheduler.NewScheduler(account.CycleInterval, r, opts...)
	if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[%s] 스케줄러 종료: %v", account.ID, err)
	}
}

// start는 시작 점검이 성공할 때까지 지수 백오프로 재시도합니다
func (f *Fleet) start(ctx context.Context, r Runner) bool {
	account := r.Account()
	delay := f.startRetry

	for attempt := 1; ; attempt++ {
		err := r.Start(ctx)
		if err == nil {
			return true
		}

		log.Printf("[%s] 시작 점검 실패 (attempt %d), %v 후 재시도: %v", account.ID, attempt, delay, err)
		if attempt == 1 {
			f.notify(fmt.Errorf("[%s] 시작 점검 실패: %w", account.ID, err))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		delay *= 2
		if delay > f.maxStartDelay {
			delay = f.maxStartDelay
		}
	}
}

func (f *Fleet) notify(err error) {
	if f.notifier == nil {
		return
	}
	if nerr := f.notifier.SendError(err); nerr != nil {
		log.Printf("알림 전송 실패: %v", nerr)
	}
}
