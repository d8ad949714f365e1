//go:build database

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/protonlab/scantime/internal/iocache"
	"github.com/protonlab/scantime/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startMySQL starts a MySQL container and returns its connection string.
func startMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret123",
			"MYSQL_DATABASE":      "scantime",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(60 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mysqlC.Terminate(ctx) })

	host, err := mysqlC.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlC.MappedPort(ctx, "3306")
	require.NoError(t, err)

	return fmt.Sprintf("root:secret123@tcp(%s:%s)/scantime?parseTime=true", host, port.Port())
}

// startPostgres starts a PostgreSQL container and returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("host=%s port=%s user=postgres dbname=postgres sslmode=disable", host, port.Port())
}

// exerciseStores runs the cache and history stores against a live server.
func exerciseStores(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	t.Helper()

	cache, err := iocache.NewCacheStore("timeline_cache", backend, connStr)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	now := time.Now().Unix()
	require.NoError(t, cache.Set("k1", []byte(`{"total_scan_time":1.5}`), 1, now))
	require.NoError(t, cache.Set("k1", []byte(`{"total_scan_time":2.5}`), 1, now))
	data, version, ts, err := cache.Get("k1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_scan_time":2.5}`, string(data))
	assert.Equal(t, 1, version)
	assert.Equal(t, now, ts)

	cacheStatus, err := cache.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, cacheStatus.TotalEntries)

	history, err := iocache.NewHistoryStore(backend, connStr)
	require.NoError(t, err)
	defer func() { _ = history.Close() }()

	runID, err := history.BeginRun(schema.RunStart{
		StartTime:    time.Now().Add(-time.Second),
		PlanDigest:   "abc123",
		PlanPath:     "/plans/RP.dcm",
		SpotEncoding: schema.PackedEncoding,
		ConfigParams: map[string]any{"max_speed": 2000.0},
	})
	require.NoError(t, err)
	require.Positive(t, runID)

	layers := []schema.LayerSummaryRecord{
		{RunID: runID, BeamNumber: 1, BeamName: "RAO", LayerIndex: 1, Energy: 150.2, SegmentCount: 40, TotalMU: 1.5, LayerDoseRate: 20, Clamp: "ceiling", TotalScanTime: 0.075},
		{RunID: runID, BeamNumber: 1, BeamName: "RAO", LayerIndex: 2, Energy: 140.1, SegmentCount: 35, TotalMU: 1.75, LayerDoseRate: 18, Clamp: "bottleneck", TotalScanTime: 0.0972},
	}
	require.NoError(t, history.RecordLayers(runID, layers))
	require.NoError(t, history.EndRun(runID, time.Now(), len(layers), 0.1722))

	runs, err := history.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "abc123", runs[0].PlanDigest)
	assert.Equal(t, int32(2), runs[0].TotalLayers)

	summaries, err := history.GetAllLayerSummaries()
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	status, err := history.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalRuns)
	assert.Equal(t, 2, status.TotalLayersTimed)
}

// exerciseCLI runs the persistence commands of the binary against a live server.
func exerciseCLI(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	t.Helper()
	env := []string{
		"SCANTIME_CACHE_BACKEND=" + string(backend),
		"SCANTIME_CACHE_DB_CONNECT=" + connStr,
		"SCANTIME_HISTORY_BACKEND=" + string(backend),
		"SCANTIME_HISTORY_DB_CONNECT=" + connStr,
	}

	for _, args := range [][]string{
		{"history", "migrate"},
		{"cache", "status"},
		{"history", "status"},
		{"cache", "clear"},
		{"history", "clear"},
	} {
		_, err := runScantime(t, env, args...)
		require.NoError(t, err, "scantime %v", args)
	}
}

// TestScantimeWithMySQL tests the stores and the CLI with a MySQL backend.
func TestScantimeWithMySQL(t *testing.T) {
	connStr := startMySQL(t)
	exerciseStores(t, schema.MySQLBackend, connStr)
	exerciseCLI(t, schema.MySQLBackend, connStr)
}

// TestScantimeWithPostgres tests the stores and the CLI with a PostgreSQL backend.
func TestScantimeWithPostgres(t *testing.T) {
	connStr := startPostgres(t)
	exerciseStores(t, schema.PostgreSQLBackend, connStr)
	exerciseCLI(t, schema.PostgreSQLBackend, connStr)
}
