package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/assist-by/fleetguard/internal/config"
	"github.com/assist-by/fleetguard/internal/dust"
	"github.com/spf13/cobra"
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "먼지 포지션 블랙리스트를 관리합니다",
	Long: `블랙리스트에 오른 심볼은 해당 계정의 포지션 수 계산과 매매에서 영구히 제외됩니다.
블랙리스트는 계정마다 따로 있으므로 --account가 필요합니다.
실행 중인 데몬은 파일이 바뀌면 다음 사이클에서 다시 읽습니다.

Examples:
  trader blacklist list --account platform
  trader blacklist remove SHIBUSDT -a user-1`,
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "블랙리스트를 출력합니다",
	Args:  cobra.NoArgs,
	RunE:  runBlacklistList,
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove <symbol>",
	Short: "심볼을 블랙리스트에서 제거합니다",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlacklistRemove,
}

var blacklistAccount string

func init() {
	rootCmd.AddCommand(blacklistCmd)
	blacklistCmd.PersistentFlags().StringVarP(&blacklistAccount, "account", "a", "", "계정 ID")
	_ = blacklistCmd.MarkPersistentFlagRequired("account")
	blacklistCmd.AddCommand(blacklistListCmd)
	blacklistCmd.AddCommand(blacklistRemoveCmd)
}

func openBlacklist() (*dust.Blacklist, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	accounts, err := config.LoadAccounts(cfg.Paths.AccountsFile)
	if err != nil {
		return nil, err
	}
	for _, ac := range accounts.Accounts {
		if ac.ID == blacklistAccount {
			return dust.Open(dust.Path(cfg.Paths.BlacklistDir, ac.ID))
		}
	}
	return nil, fmt.Errorf("계정 파일에 없는 계정입니다: %s", blacklistAccount)
}

func runBlacklistList(cmd *cobra.Command, args []string) error {
	bl, err := openBlacklist()
	if err != nil {
		return err
	}

	entries := bl.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "블랙리스트가 비어 있습니다")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tUSD VALUE\tREASON\tBLACKLISTED AT")
	for _, e := range entries {
		at := "-"
		if !e.BlacklistedAt.IsZero() {
			at = e.BlacklistedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Symbol, e.USDValueAtBlacklist.StringFixed(4), e.Reason, at)
	}
	return w.Flush()
}

func runBlacklistRemove(cmd *cobra.Command, args []string) error {
	bl, err := openBlacklist()
	if err != nil {
		return err
	}

	removed, err := bl.Remove(args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("블랙리스트에 없는 심볼입니다: %s", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s 제거 완료\n", args[0])
	return nil
}
