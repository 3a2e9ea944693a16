package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/dust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupWorkspace는 빈 작업 디렉터리와 계정 두 개짜리 설정을 준비합니다
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	accounts := filepath.Join(dir, "accounts.yaml")
	require.NoError(t, os.WriteFile(accounts, []byte(`accounts:
  - {id: platform, kind: PLATFORM, max_positions: 8}
  - {id: user-1, kind: USER, max_positions: 3}
`), 0o644))

	t.Setenv("ACCOUNTS_FILE", accounts)
	t.Setenv("DUST_BLACKLIST_DIR", filepath.Join(dir, "dust"))
	t.Setenv("EMERGENCY_SENTINEL", filepath.Join(dir, "EMERGENCY_LIQUIDATE"))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLiquidateCannotClearSwitch(t *testing.T) {
	dir := setupWorkspace(t)
	assert.Nil(t, liquidateCmd.Flags().Lookup("clear"))

	_, err := execute(t, "liquidate", "--reason", "점검")
	require.NoError(t, err)
	sentinel := filepath.Join(dir, "EMERGENCY_LIQUIDATE")
	assert.FileExists(t, sentinel)

	_, err = execute(t, "liquidate", "--clear")
	assert.Error(t, err)
	assert.FileExists(t, sentinel, "운영자 명령으로는 스위치가 꺼지지 않는다")
}

func TestBlacklistCommandsArePerAccount(t *testing.T) {
	dir := setupWorkspace(t)

	_, err := execute(t, "blacklist", "list")
	assert.Error(t, err, "계정 없이 실행할 수 없다")

	bl, err := dust.Open(dust.Path(filepath.Join(dir, "dust"), "platform"))
	require.NoError(t, err)
	_, err = bl.Add(domain.DustBlacklistEntry{Symbol: "XRPUSDT", Reason: "operator"})
	require.NoError(t, err)

	out, err := execute(t, "blacklist", "list", "--account", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "비어 있습니다")

	out, err = execute(t, "blacklist", "list", "--account", "platform")
	require.NoError(t, err)
	assert.Contains(t, out, "XRPUSDT")

	_, err = execute(t, "blacklist", "remove", "XRPUSDT", "-a", "user-1")
	assert.Error(t, err)

	_, err = execute(t, "blacklist", "remove", "XRPUSDT", "-a", "ghost")
	assert.Error(t, err)

	_, err = execute(t, "blacklist", "remove", "XRPUSDT", "-a", "platform")
	require.NoError(t, err)
	reopened, err := dust.Open(dust.Path(filepath.Join(dir, "dust"), "platform"))
	require.NoError(t, err)
	assert.False(t, reopened.Contains("XRPUSDT"))
}
