package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// 파일 경로 설정
	Paths struct {
		StateDir      string `envconfig:"STATE_DIR" default:"./state"`
		SentinelPath  string `envconfig:"EMERGENCY_SENTINEL" default:"./state/EMERGENCY_LIQUIDATE"`
		BlacklistDir  string `envconfig:"DUST_BLACKLIST_DIR" default:"./state/dust"` // 계정별 <id>.json
		JournalPath   string `envconfig:"JOURNAL_PATH" default:"./state/journal.db"`
		AccountsFile  string `envconfig:"ACCOUNTS_FILE" default:"./accounts.yaml"`
		SignalDir     string `envconfig:"SIGNAL_DIR" default:"./signals"`
	}

	// 바이낸스 API 설정 (계정별 키는 계정 파일에서 환경변수 이름으로 지정)
	Binance struct {
		Testnet   bool    `envconfig:"BINANCE_TESTNET" default:"false"`
		RateLimit float64 `envconfig:"BINANCE_RATE_LIMIT" default:"10"`
		Burst     int     `envconfig:"BINANCE_RATE_BURST" default:"20"`
	}

	// 디스코드 웹훅 설정 (비어 있으면 해당 알림을 보내지 않음)
	Discord struct {
		TradeWebhook string `envconfig:"DISCORD_TRADE_WEBHOOK"`
		ErrorWebhook string `envconfig:"DISCORD_ERROR_WEBHOOK"`
		InfoWebhook  string `envconfig:"DISCORD_INFO_WEBHOOK"`
	}

	// 애플리케이션 설정
	App struct {
		MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	}
}

// ValidateConfig는 설정이 유효한지 확인합니다.
func ValidateConfig(cfg *Config) error {
	if cfg.Paths.StateDir == "" {
		return fmt.Errorf("STATE_DIR은 비어 있을 수 없습니다")
	}
	if cfg.Paths.SentinelPath == "" {
		return fmt.Errorf("EMERGENCY_SENTINEL은 비어 있을 수 없습니다")
	}
	if cfg.Paths.BlacklistDir == "" {
		return fmt.Errorf("DUST_BLACKLIST_DIR은 비어 있을 수 없습니다")
	}
	if cfg.Paths.AccountsFile == "" {
		return fmt.Errorf("ACCOUNTS_FILE은 비어 있을 수 없습니다")
	}
	if cfg.Binance.RateLimit <= 0 || cfg.Binance.Burst < 1 {
		return fmt.Errorf("BINANCE_RATE_LIMIT과 BINANCE_RATE_BURST는 양수여야 합니다")
	}
	for _, hook := range []string{cfg.Discord.TradeWebhook, cfg.Discord.ErrorWebhook, cfg.Discord.InfoWebhook} {
		if hook != "" && !strings.HasPrefix(hook, "https://") && !strings.HasPrefix(hook, "http://") {
			return fmt.Errorf("잘못된 웹훅 주소: %s", hook)
		}
	}
	return nil
}

// LoadConfig는 환경변수에서 설정을 로드합니다. .env 파일은 없어도 됩니다.
func LoadConfig() (*Config, error) {
	// .env 파일 로드
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env 파일 로드 실패: %w", err)
	}

	var cfg Config
	// 환경변수를 구조체로 파싱
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("환경변수 처리 실패: %w", err)
	}

	// 설정값 검증
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("설정값 검증 실패: %w", err)
	}

	return &cfg, nil
}
