package cmd

import (
	"fmt"

	"github.com/assist-by/fleetguard/internal/emergency"
	"github.com/spf13/cobra"
)

var liquidateCmd = &cobra.Command{
	Use:   "liquidate",
	Short: "비상 청산 스위치를 켭니다",
	Long: `비상 청산 파일을 만듭니다. 실행 중인 데몬은 다음 사이클에서
모든 계정의 포지션을 시장가로 매도하고, 모든 계정이 처리를 마치면 파일을 지웁니다.
스위치는 데몬만 끌 수 있습니다.`,
	Args: cobra.NoArgs,
	RunE: runLiquidate,
}

var liquidateReason string

func init() {
	rootCmd.AddCommand(liquidateCmd)
	liquidateCmd.Flags().StringVarP(&liquidateReason, "reason", "r", "operator request", "청산 사유")
}

func runLiquidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sw := emergency.New(cfg.Paths.SentinelPath)

	token, err := sw.Trigger(liquidateReason)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "비상 청산 요청 완료 (token: %s, 파일: %s)\n", token, sw.Path())
	return nil
}
