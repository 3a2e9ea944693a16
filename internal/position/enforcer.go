package position

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/dust"
	"github.com/assist-by/fleetguard/internal/metrics"
)

// Submitter는 주문 제안을 실행합니다. execution.Retrier가 구현합니다.
type Submitter interface {
	Submit(ctx context.Context, intent domain.OrderIntent) domain.OrderResult
}

// DustList는 먼지 블랙리스트입니다. dust.Blacklist가 구현합니다.
type DustList interface {
	Contains(symbol string) bool
	Add(entry domain.DustBlacklistEntry) (bool, error)
}

// EnforcementResult는 한 번의 한도 집행 결과입니다
type EnforcementResult struct {
	Kept        []domain.Position           // 한도 안에서 유지된 포지션 (가치 내림차순)
	Evicted     []domain.OrderResult        // 청산 주문 결과 (실패 포함)
	Blacklisted []domain.DustBlacklistEntry // 이번에 새로 등록된 먼지 포지션
	Errors      []error

	unevicted []domain.Position
}

// Held는 집행 후에도 여전히 보유 중인 포지션입니다.
// 청산이 체결되지 않은 포지션은 다음 사이클에 다시 시도하도록 포함됩니다.
func (r EnforcementResult) Held() []domain.Position {
	out := make([]domain.Position, 0, len(r.Kept)+len(r.unevicted))
	out = append(out, r.Kept...)
	out = append(out, r.unevicted...)
	return out
}

// CapEnforcer는 계정의 최대 포지션 수를 집행합니다.
// 가치가 가장 큰 포지션부터 남기고 나머지는 전량 매도합니다.
type CapEnforcer struct {
	submitter Submitter
	blacklist DustList
	now       func() time.Time
}

// NewCapEnforcer는 새로운 한도 집행기를 생성합니다
func NewCapEnforcer(submitter Submitter, blacklist DustList) *CapEnforcer {
	return &CapEnforcer{
		submitter: submitter,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// Enforce는 positions에 포지션 한도를 적용합니다.
// positions의 CurrentPrice는 호출 직전에 거래소에서 갱신된 값이어야 합니다.
func (e *CapEnforcer) Enforce(ctx context.Context, account domain.Account, positions []domain.Position) EnforcementResult {
	var result EnforcementResult

	threshold := account.DustThresholdUSD
	remaining := make([]domain.Position, 0, len(positions))

	for _, p := range positions {
		if e.blacklist.Contains(p.Symbol) {
			continue
		}

		value := p.USDValue()
		if value.LessThan(threshold) {
			entry := domain.DustBlacklistEntry{
				Symbol:              p.Symbol,
				USDValueAtBlacklist: value,
				Reason:              dust.ReasonBelowThreshold,
				BlacklistedAt:       e.now().UTC(),
			}
			added, err := e.blacklist.Add(entry)
			if err != nil {
				// 등록에 실패한 먼지는 장부에 남겨 두고 다음 사이클에 다시 등록합니다
				result.Errors = append(result.Errors,
					NewPositionError(p.Symbol, "blacklist", fmt.Errorf("%w: %v", ErrBlacklistWrite, err)))
				result.unevicted = append(result.unevicted, p)
				continue
			}
			if added {
				log.Printf("[%s] 먼지 포지션 블랙리스트 등록: %s ($%s)", account.ID, p.Symbol, value.StringFixed(4))
				metrics.IncDustBlacklisted(account.ID)
				result.Blacklisted = append(result.Blacklisted, entry)
			}
			continue
		}

		remaining = append(remaining, p)
	}

	SortByValue(remaining)

	if len(remaining) <= account.MaxPositions {
		result.Kept = remaining
		return result
	}

	result.Kept = remaining[:account.MaxPositions]
	excess := remaining[account.MaxPositions:]

	log.Printf("[%s] 포지션 한도 초과: %d개 보유, 한도 %d개, %d개 청산 시작",
		account.ID, len(remaining), account.MaxPositions, len(excess))

	for _, p := range excess {
		intent := domain.NewOrderIntent(account.ID, p.Symbol, domain.Sell, p.Quantity, domain.BaseQty, domain.CapEviction)
		r := e.submitter.Submit(ctx, intent)
		result.Evicted = append(result.Evicted, r)

		switch {
		case r.Status == domain.StatusFilled:
			metrics.IncEviction(account.ID, "filled")
			log.Printf("[%s] 초과 포지션 청산 완료: %s %s", account.ID, p.Symbol, r.FilledQty.String())

		case r.Status == domain.StatusPartial:
			metrics.IncEviction(account.ID, "partial")
			left := p
			left.Quantity = p.Quantity.Sub(r.FilledQty)
			if left.Quantity.IsPositive() {
				result.unevicted = append(result.unevicted, left)
			}
			result.Errors = append(result.Errors, NewPositionError(p.Symbol, "evict",
				fmt.Errorf("%w: 부분 체결 %s / %s", ErrEvictionFailed, r.FilledQty.String(), p.Quantity.String())))

		default:
			metrics.IncEviction(account.ID, "failed")
			result.unevicted = append(result.unevicted, p)
			result.Errors = append(result.Errors, NewPositionError(p.Symbol, "evict",
				fmt.Errorf("%w: %s %s", ErrEvictionFailed, r.Status, r.ErrorMessage)))
		}
	}

	return result
}
