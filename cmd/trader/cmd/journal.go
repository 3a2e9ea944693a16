package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "주문 저널을 조회합니다",
	Long: `SQLite 주문 저널에서 최근 결과를 최신순으로 출력합니다.
기본값은 체결되지 않았거나 일부만 체결된 주문입니다.

Examples:
  trader journal
  trader journal --account platform --all --limit 20`,
	Args: cobra.NoArgs,
	RunE: runJournal,
}

var (
	journalAccount string
	journalAll     bool
	journalLimit   int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().StringVarP(&journalAccount, "account", "a", "", "계정 ID (비어 있으면 전체)")
	journalCmd.Flags().BoolVar(&journalAll, "all", false, "체결된 주문도 포함")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "최대 출력 개수")
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	j, err := journal.NewSQLite(cfg.Paths.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	q := journal.Query{AccountID: journalAccount, Limit: journalLimit}
	if !journalAll {
		q.Statuses = []domain.OrderStatus{domain.StatusPartial, domain.StatusRejected, domain.StatusError}
	}

	results, err := j.Recent(cmd.Context(), q)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "조건에 맞는 주문이 없습니다")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACCOUNT\tSYMBOL\tSIDE\tREASON\tSTATUS\tFILLED\tATTEMPTS\tERROR")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.CompletedAt.Local().Format(time.DateTime),
			r.Intent.AccountID,
			r.Intent.Symbol,
			r.Intent.Side,
			r.Intent.Reason,
			r.Status,
			r.FilledQty.String(),
			r.Attempts,
			strings.TrimSpace(string(r.ErrorKind)+" "+r.ErrorMessage),
		)
	}
	return w.Flush()
}
