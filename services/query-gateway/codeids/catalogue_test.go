package codeids

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCatalogue(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "code_id_keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesKeysAndBankHistoryNames(t *testing.T) {
	path := writeCatalogue(t, `
keys:
  dao-core:
    - 1
    - 2
  vesting:
    - 3
bankHistoryNames:
  - vesting
`)
	cat, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, cat.Keys["dao-core"])
	require.Equal(t, []uint64{3}, cat.Keys["vesting"])

	ids := cat.BankHistoryCodeIDs()
	require.True(t, ids[3])
	require.False(t, ids[1])
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
