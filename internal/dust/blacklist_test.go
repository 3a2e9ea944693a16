package dust

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dust_blacklist.json")

	b, err := Open(path)
	require.NoError(t, err)

	added, err := b.Add(domain.DustBlacklistEntry{
		Symbol:              "shibusdt",
		USDValueAtBlacklist: decimal.RequireFromString("0.5"),
		Reason:              ReasonBelowThreshold,
	})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = b.Add(domain.DustBlacklistEntry{Symbol: "SHIBUSDT", Reason: "again"})
	require.NoError(t, err)
	assert.False(t, added, "중복 추가는 무시")

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.True(t, reopened.Contains("SHIBUSDT"))
	assert.True(t, reopened.Contains("shibusdt"))

	entries := reopened.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ReasonBelowThreshold, entries[0].Reason)
	assert.True(t, entries[0].USDValueAtBlacklist.Equal(decimal.RequireFromString("0.5")))
	assert.False(t, entries[0].BlacklistedAt.IsZero())
}

func TestFileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dust_blacklist.json")
	b, err := Open(path)
	require.NoError(t, err)

	_, err = b.Add(domain.DustBlacklistEntry{Symbol: "XRPUSDT", Reason: "r1"})
	require.NoError(t, err)
	_, err = b.Add(domain.DustBlacklistEntry{Symbol: "ADAUSDT", Reason: "r2"})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var f struct {
		Symbols     []string          `json:"symbols"`
		Reasons     map[string]string `json:"reasons"`
		LastUpdated time.Time         `json:"last_updated"`
	}
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, []string{"ADAUSDT", "XRPUSDT"}, f.Symbols)
	assert.Equal(t, map[string]string{"ADAUSDT": "r2", "XRPUSDT": "r1"}, f.Reasons)
	assert.False(t, f.LastUpdated.IsZero())
}

func TestLegacyFileWithoutEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dust_blacklist.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"symbols":["LUNAUSDT"],"reasons":{"LUNAUSDT":"manual"},"last_updated":"2024-01-01T00:00:00Z"}`), 0o644))

	b, err := Open(path)
	require.NoError(t, err)
	require.True(t, b.Contains("LUNAUSDT"))
	assert.Equal(t, "manual", b.Entries()[0].Reason)
}

func TestRemove(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "dust_blacklist.json"))
	require.NoError(t, err)

	_, err = b.Add(domain.DustBlacklistEntry{Symbol: "XRPUSDT"})
	require.NoError(t, err)

	removed, err := b.Remove("xrpusdt")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, b.Contains("XRPUSDT"))

	removed, err = b.Remove("XRPUSDT")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRefreshPicksUpExternalRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dust_blacklist.json")
	daemon, err := Open(path)
	require.NoError(t, err)
	_, err = daemon.Add(domain.DustBlacklistEntry{Symbol: "XRPUSDT"})
	require.NoError(t, err)

	operator, err := Open(path)
	require.NoError(t, err)
	_, err = operator.Remove("XRPUSDT")
	require.NoError(t, err)

	// 파일 시스템 시간 해상도 대비
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.NoError(t, daemon.Refresh())
	assert.False(t, daemon.Contains("XRPUSDT"))
}

func TestCorruptedFileIsQuarantined(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dust_blacklist.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	b, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
	assert.FileExists(t, path+".corrupted")
}

func TestConcurrentAdds(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "dust_blacklist.json"))
	require.NoError(t, err)

	symbols := []string{"AUSDT", "BUSDT", "CUSDT", "DUSDT", "EUSDT", "FUSDT"}
	var wg sync.WaitGroup
	for _, s := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			_, err := b.Add(domain.DustBlacklistEntry{Symbol: symbol})
			assert.NoError(t, err)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, len(symbols), b.Len())
}

func TestAddKeepsExternalRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dust_blacklist.json")
	daemon, err := Open(path)
	require.NoError(t, err)
	_, err = daemon.Add(domain.DustBlacklistEntry{Symbol: "XRPUSDT"})
	require.NoError(t, err)

	// 데몬이 다시 읽기 전에 운영자가 제거
	operator, err := Open(path)
	require.NoError(t, err)
	removed, err := operator.Remove("XRPUSDT")
	require.NoError(t, err)
	require.True(t, removed)

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	_, err = daemon.Add(domain.DustBlacklistEntry{Symbol: "DOGEUSDT"})
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.False(t, reopened.Contains("XRPUSDT"), "운영자 제거가 되살아나면 안 된다")
	assert.True(t, reopened.Contains("DOGEUSDT"))
}

func TestRemoveSeesExternalAdd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dust_blacklist.json")
	operator, err := Open(path)
	require.NoError(t, err)

	daemon, err := Open(path)
	require.NoError(t, err)
	_, err = daemon.Add(domain.DustBlacklistEntry{Symbol: "SHIBUSDT"})
	require.NoError(t, err)

	removed, err := operator.Remove("SHIBUSDT")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestPathIsPerAccount(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "platform.json"), Path(dir, "platform"))
	assert.NotEqual(t, Path(dir, "user-1"), Path(dir, "user-2"))
	assert.Equal(t, dir, filepath.Dir(Path(dir, "../escape")))
}
