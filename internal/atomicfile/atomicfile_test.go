package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, WriteJSON(path, sample{Name: "a", Count: 1}))
	require.NoError(t, WriteJSON(path, sample{Name: "b", Count: 2}))

	var got sample
	found, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, sample{Name: "b", Count: 2}, got)

	// 임시 파일이 남아 있으면 안 됨
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadMissing(t *testing.T) {
	var got sample
	found, err := ReadJSON(filepath.Join(t.TempDir(), "none.json"), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadCorruptedAndQuarantine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "a",`), 0o644))

	var got sample
	found, err := ReadJSON(path, &got)
	assert.True(t, found)
	assert.ErrorIs(t, err, ErrCorrupted)

	dst, err := Quarantine(path)
	require.NoError(t, err)
	assert.Equal(t, path+CorruptedSuffix, dst)
	assert.NoFileExists(t, path)
	assert.FileExists(t, dst)
}
