//go:build basic

package integration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	out, err := runScantime(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "scantime CLI")
	assert.Contains(t, out, "float32, shi-packed")
}

func TestDoserateLookup(t *testing.T) {
	table := filepath.Join(t.TempDir(), "doserate.csv")
	require.NoError(t, os.WriteFile(table, []byte("energy,max_doserate\n100,10\n150,20\n"), 0o644))

	out, err := runScantime(t, nil, "doserate", "100.2", "150.31", "--doserate-table", table, "--output", "csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "energy,max_doserate,available,table_path,table_rows", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "100.2000,10.0000,true,"))
	assert.True(t, strings.HasPrefix(lines[2], "150.3100,0.0000,true,"))
}

func TestDoserateLookupFromEnv(t *testing.T) {
	table := filepath.Join(t.TempDir(), "doserate.csv")
	require.NoError(t, os.WriteFile(table, []byte("70,5\n"), 0o644))

	out, err := runScantime(t, []string{"SCANTIME_DOSERATE_TABLE=" + table, "SCANTIME_OUTPUT=json"}, "doserate", "70")
	require.NoError(t, err)
	assert.Contains(t, out, `"max_doserate": 5`)
}

func TestDoserateRejectsBadEnergy(t *testing.T) {
	_, err := runScantime(t, nil, "doserate", "abc")
	assert.Error(t, err)
}

func TestPlanRequiresExistingFile(t *testing.T) {
	out, err := runScantime(t, nil, "plan", "missing.dcm", "--spot-encoding", "float32", "--cache-backend", "none")
	assert.Error(t, err)
	assert.Contains(t, out, "cannot access plan file")
}

func TestSQLiteHistoryLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	env := []string{"SCANTIME_HISTORY_BACKEND=sqlite", "SCANTIME_HISTORY_DB_CONNECT=" + dbPath}

	_, err := runScantime(t, env, "history", "migrate")
	require.NoError(t, err)

	out, err := runScantime(t, env, "history", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "scantime_runs")

	_, err = runScantime(t, env, "history", "clear")
	require.NoError(t, err)
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCacheStatusDisabled(t *testing.T) {
	_, err := runScantime(t, []string{"SCANTIME_CACHE_BACKEND=none"}, "cache", "status")
	assert.Error(t, err)
}
