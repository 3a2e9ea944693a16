package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/assist-by/fleetguard/internal/capital"
	"github.com/assist-by/fleetguard/internal/config"
	"github.com/assist-by/fleetguard/internal/dust"
	"github.com/assist-by/fleetguard/internal/emergency"
	"github.com/assist-by/fleetguard/internal/exchange/binance"
	"github.com/assist-by/fleetguard/internal/position"
	"github.com/assist-by/fleetguard/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "계정별 스냅샷과 가용 자본을 출력합니다",
	Long: `저장된 포지션 스냅샷을 계정별로 요약합니다.
--offline이 아니면 거래소 잔고를 조회해 가용 자본도 계산합니다.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusOffline bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusOffline, "offline", false, "거래소를 조회하지 않음")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	accounts, err := config.LoadAccounts(cfg.Paths.AccountsFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sw := emergency.New(cfg.Paths.SentinelPath)
	if sw.IsTriggered() {
		mode := sw.Snapshot("status")
		fmt.Fprintf(out, "⚠️ 비상 청산 대기 중 (token: %s, 사유: %s)\n\n", mode.Token, mode.Reason)
	}

	st := store.New(filepath.Join(cfg.Paths.StateDir, "positions"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tKIND\tPOSITIONS\tEXPOSURE\tFREE CAPITAL\tDUST\tSYMBOLS")

	for _, ac := range accounts.Accounts {
		account, err := ac.Account()
		if err != nil {
			return err
		}

		positions, err := st.Load(account.ID)
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\t스냅샷 읽기 실패: %v\n", account.ID, account.Kind, err)
			continue
		}
		book := position.NewBook(account.ID, positions)

		free := "-"
		if !statusOffline {
			free = freeCapital(cmd, cfg, ac, book)
		}

		dustCount := "-"
		if bl, err := dust.Open(dust.Path(cfg.Paths.BlacklistDir, account.ID)); err == nil {
			dustCount = fmt.Sprintf("%d", bl.Len())
		}

		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\t%v\n",
			account.ID, account.Kind, book.Count(), account.MaxPositions,
			book.OpenExposure().StringFixed(2), free, dustCount, position.Symbols(book.Positions()))
	}
	return w.Flush()
}

// freeCapital은 거래소 잔고와 스냅샷 노출로 가용 자본을 계산합니다
func freeCapital(cmd *cobra.Command, cfg *config.Config, ac config.AccountConfig, book *position.Book) string {
	account, _ := ac.Account()
	apiKey, secretKey, err := ac.Credentials()
	if err != nil {
		return "키 없음"
	}

	client := binance.NewClient(apiKey, secretKey,
		binance.WithTestnet(cfg.Binance.Testnet),
		binance.WithQuoteAsset(account.QuoteAsset),
		binance.WithTimeout(10*time.Second),
	)
	free, err := capital.NewController(account, client, book).FreeCapital(cmd.Context())
	if err != nil {
		return fmt.Sprintf("조회 실패: %v", err)
	}
	return free.StringFixed(2)
}
