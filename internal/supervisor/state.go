package supervisor

import (
	"errors"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/position"
	"github.com/shopspring/decimal"
)

// State는 감독자의 현재 단계입니다
type State string

const (
	StateIdle                 State = "IDLE"
	StateCheckingEmergency    State = "CHECKING_EMERGENCY"
	StateEnforcingCap         State = "ENFORCING_CAP"
	StateEvaluatingSignals    State = "EVALUATING_SIGNALS"
	StateExecuting            State = "EXECUTING"
	StatePersisting           State = "PERSISTING"
	StateEmergencyLiquidation State = "EMERGENCY_LIQUIDATION"
)

// 사이클 모드
const (
	ModeNormal    = "normal"
	ModeEmergency = "emergency"
	ModeStartup   = "startup"
)

// Skip은 실행하지 않은 주문 후보와 그 이유입니다
type Skip struct {
	Intent domain.OrderIntent
	Reason string
}

// CycleReport는 한 사이클의 결과를 요약합니다
type CycleReport struct {
	AccountID   string
	Mode        string
	StartedAt   time.Time
	Duration    time.Duration
	FreeCapital decimal.Decimal
	Enforcement *position.EnforcementResult
	Orders      []domain.OrderResult
	Skipped     []Skip
	Persisted   bool
	Errors      []error
}

// Err은 사이클 중 발생한 에러를 하나로 합칩니다
func (r CycleReport) Err() error {
	return errors.Join(r.Errors...)
}

func (r *CycleReport) fail(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

func (r *CycleReport) skip(intent domain.OrderIntent, reason string) {
	r.Skipped = append(r.Skipped, Skip{Intent: intent, Reason: reason})
}
