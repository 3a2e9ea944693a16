package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// 계정 파일 기본값
const (
	DefaultCycleInterval = time.Minute
	DefaultQuoteAsset    = "USDT"
	DefaultDustThreshold = 1.00
)

// AccountsFile은 감독할 계정 목록 파일입니다
type AccountsFile struct {
	Accounts []AccountConfig `yaml:"accounts"`
}

// AccountConfig는 계정 하나의 설정입니다
type AccountConfig struct {
	ID               string   `yaml:"id"`
	Kind             string   `yaml:"kind"` // PLATFORM / USER
	MaxPositions     int      `yaml:"max_positions"`
	CapitalBufferPct float64  `yaml:"capital_buffer_pct"`
	DustThresholdUSD *float64 `yaml:"dust_threshold_usd,omitempty"`
	CycleInterval    string   `yaml:"cycle_interval,omitempty"` // 예: "1m", "30s"
	QuoteAsset       string   `yaml:"quote_asset,omitempty"`

	// API 키를 담은 환경변수 이름
	APIKeyEnv    string `yaml:"api_key_env,omitempty"`
	SecretKeyEnv string `yaml:"secret_key_env,omitempty"`

	// 모의 거래 시작 잔고
	PaperCash float64 `yaml:"paper_cash,omitempty"`
}

// LoadAccounts는 YAML 계정 파일을 읽고 검증합니다
func LoadAccounts(path string) (*AccountsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("계정 파일 읽기 실패: %w", err)
	}

	f := &AccountsFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("계정 파일 파싱 실패: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("계정 파일 검증 실패: %w", err)
	}
	return f, nil
}

// Validate는 계정 목록이 유효한지 확인합니다
func (f *AccountsFile) Validate() error {
	if len(f.Accounts) == 0 {
		return fmt.Errorf("계정이 하나도 없습니다")
	}

	seen := make(map[string]bool, len(f.Accounts))
	for _, ac := range f.Accounts {
		account, err := ac.Account()
		if err != nil {
			return err
		}
		if seen[account.ID] {
			return fmt.Errorf("계정 ID 중복: %s", account.ID)
		}
		seen[account.ID] = true
	}
	return nil
}

// Account는 기본값을 채운 도메인 계정을 반환합니다
func (c AccountConfig) Account() (domain.Account, error) {
	interval := DefaultCycleInterval
	if c.CycleInterval != "" {
		d, err := time.ParseDuration(c.CycleInterval)
		if err != nil {
			return domain.Account{}, fmt.Errorf("계정 %s: cycle_interval 파싱 실패: %w", c.ID, err)
		}
		interval = d
	}

	dust := DefaultDustThreshold
	if c.DustThresholdUSD != nil {
		dust = *c.DustThresholdUSD
	}

	quote := DefaultQuoteAsset
	if c.QuoteAsset != "" {
		quote = strings.ToUpper(c.QuoteAsset)
	}

	account := domain.Account{
		ID:               c.ID,
		Kind:             domain.AccountKind(strings.ToUpper(c.Kind)),
		MaxPositions:     c.MaxPositions,
		CapitalBufferPct: decimal.NewFromFloat(c.CapitalBufferPct),
		DustThresholdUSD: decimal.NewFromFloat(dust),
		CycleInterval:    interval,
		QuoteAsset:       quote,
	}
	if err := account.Validate(); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// Credentials는 환경변수에서 계정의 API 키를 읽습니다
func (c AccountConfig) Credentials() (apiKey, secretKey string, err error) {
	if c.APIKeyEnv == "" || c.SecretKeyEnv == "" {
		return "", "", fmt.Errorf("계정 %s: api_key_env와 secret_key_env가 필요합니다", c.ID)
	}
	apiKey = os.Getenv(c.APIKeyEnv)
	secretKey = os.Getenv(c.SecretKeyEnv)
	if apiKey == "" || secretKey == "" {
		return "", "", fmt.Errorf("계정 %s: 환경변수 %s/%s가 비어 있습니다", c.ID, c.APIKeyEnv, c.SecretKeyEnv)
	}
	return apiKey, secretKey, nil
}
