package cmd

import (
	"fmt"
	"log"

	"github.com/assist-by/fleetguard/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "여러 거래소 계정의 주문 실행과 리스크 한도를 감독합니다",
	Long: `trader는 플랫폼 계정과 사용자 계정을 각각 독립된 고루틴에서 감독합니다.

계정마다 다음을 보장합니다:
  - 최대 보유 포지션 수 유지 (초과분은 가치가 낮은 순서로 매도)
  - 먼지 포지션 블랙리스트 처리
  - 자본 예약을 통한 초과 매수 방지
  - 비상 청산 스위치 파일 감시

Examples:
  trader run --paper
  trader liquidate --reason "거래소 점검"
  trader blacklist list --account platform
  trader journal --account platform`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	},
}

// Execute는 루트 명령을 실행합니다
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig는 환경 설정을 읽습니다
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("설정 로드 실패: %w", err)
	}
	return cfg, nil
}
