package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDustThreshold는 먼지 포지션 기준 금액의 기본값입니다 (1.00 USD)
var DefaultDustThreshold = decimal.NewFromInt(1)

// Account는 하나의 독립된 거래소 계정을 표현합니다
type Account struct {
	ID               string          // 계정 고유 ID
	Kind             AccountKind     // PLATFORM / USER
	MaxPositions     int             // 최대 보유 포지션 수
	CapitalBufferPct decimal.Decimal // 거래에 쓰지 않는 잔고 비율 (0~1)
	DustThresholdUSD decimal.Decimal // 이 금액 미만 포지션은 먼지로 취급
	CycleInterval    time.Duration   // 감독 사이클 주기
	QuoteAsset       string          // 기준 자산 (예: USDT)
}

// Validate는 계정 설정이 유효한지 확인합니다
func (a Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("계정 ID가 비어 있습니다")
	}
	if a.Kind != PlatformAccount && a.Kind != UserAccount {
		return fmt.Errorf("계정 %s: 알 수 없는 계정 유형 %q", a.ID, a.Kind)
	}
	if a.MaxPositions < 1 {
		return fmt.Errorf("계정 %s: max_positions는 1 이상이어야 합니다", a.ID)
	}
	if a.CapitalBufferPct.IsNegative() || a.CapitalBufferPct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("계정 %s: capital_buffer_pct는 0과 1 사이여야 합니다", a.ID)
	}
	if a.DustThresholdUSD.IsNegative() {
		return fmt.Errorf("계정 %s: dust_threshold_usd는 음수일 수 없습니다", a.ID)
	}
	if a.CycleInterval <= 0 {
		return fmt.Errorf("계정 %s: cycle_interval은 0보다 커야 합니다", a.ID)
	}
	return nil
}

// CapitalReservation은 주문이 진행되는 동안 잡아두는 자본입니다
type CapitalReservation struct {
	ID        string
	AccountID string
	AmountUSD decimal.Decimal
	CreatedAt time.Time
}

// DustBlacklistEntry는 포지션 계산에서 영구 제외되는 심볼입니다
type DustBlacklistEntry struct {
	Symbol              string          `json:"symbol"`
	USDValueAtBlacklist decimal.Decimal `json:"usd_value_at_blacklist"`
	Reason              string          `json:"reason"`
	BlacklistedAt       time.Time       `json:"blacklisted_at"`
}
