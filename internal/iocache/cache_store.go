package iocache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
)

// CacheStoreImpl keeps serialized timelines keyed by their inputs.
type CacheStoreImpl struct {
	db        *sql.DB
	tableName string
	backend   schema.DatabaseBackend
	connStr   string
}

var _ contract.CacheStore = &CacheStoreImpl{} // Compile-time check

// NewCacheStore opens the backend and creates the cache table when missing.
// The none backend yields a store that never hits.
func NewCacheStore(tableName string, backend schema.DatabaseBackend, connStr string) (contract.CacheStore, error) {
	if err := validateTableName(tableName); err != nil {
		return nil, err
	}
	if backend == schema.NoneBackend {
		return &CacheStoreImpl{tableName: tableName, backend: backend, connStr: connStr}, nil
	}

	db, err := openDB(backend, connStr, GetDBFilePath())
	if err != nil {
		return nil, err
	}

	query := getCreateTableQuery(tableName, backend)
	if _, err := db.Exec(query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table %s: %w", tableName, err)
	}

	return &CacheStoreImpl{
		db:        db,
		tableName: tableName,
		backend:   backend,
		connStr:   connStr,
	}, nil
}

// cacheColumnTypes lists the key, value and integer column types per backend.
var cacheColumnTypes = map[schema.DatabaseBackend][3]string{
	schema.MySQLBackend:      {"VARCHAR(255)", "LONGBLOB", "BIGINT"},
	schema.PostgreSQLBackend: {"TEXT", "BYTEA", "BIGINT"},
	schema.SQLiteBackend:     {"TEXT", "BLOB", "INTEGER"},
}

func getCreateTableQuery(tableName string, backend schema.DatabaseBackend) string {
	types, ok := cacheColumnTypes[backend]
	if !ok {
		types = cacheColumnTypes[schema.SQLiteBackend]
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	cache_key %s PRIMARY KEY,
	cache_value %s NOT NULL,
	cache_version INTEGER NOT NULL,
	cache_timestamp %s NOT NULL
)`, quoteTableName(tableName, backend), types[0], types[1], types[2])
}

// Get returns the stored timeline, its version and its unix timestamp.
// A missing key yields sql.ErrNoRows.
func (ps *CacheStoreImpl) Get(key string) ([]byte, int, int64, error) {
	if ps.db == nil {
		return nil, 0, 0, sql.ErrNoRows
	}

	var (
		value   []byte
		version int
		ts      int64
	)
	row := ps.db.QueryRow(fmt.Sprintf("SELECT cache_value, cache_version, cache_timestamp FROM %s WHERE cache_key = %s",
		quoteTableName(ps.tableName, ps.backend), placeholder(ps.backend, 1)), key)
	err := row.Scan(&value, &version, &ts)
	return value, version, ts, err
}

// Set upserts one entry.
func (ps *CacheStoreImpl) Set(key string, value []byte, version int, timestamp int64) error {
	if ps.db == nil {
		return nil
	}
	_, err := ps.db.Exec(ps.getUpsertQuery(), key, value, version, timestamp)
	return err
}

const cacheColumns = "cache_key, cache_value, cache_version, cache_timestamp"

func (ps *CacheStoreImpl) getUpsertQuery() string {
	table := quoteTableName(ps.tableName, ps.backend)
	values := placeholders(ps.backend, 4)
	switch ps.backend {
	case schema.MySQLBackend:
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) AS new ON DUPLICATE KEY UPDATE "+
			"cache_value = new.cache_value, cache_version = new.cache_version, cache_timestamp = new.cache_timestamp",
			table, cacheColumns, values)
	case schema.PostgreSQLBackend:
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (cache_key) DO UPDATE SET "+
			"cache_value = EXCLUDED.cache_value, cache_version = EXCLUDED.cache_version, cache_timestamp = EXCLUDED.cache_timestamp",
			table, cacheColumns, values)
	default:
		return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", table, cacheColumns, values)
	}
}

func (ps *CacheStoreImpl) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

// GetStatus counts entries and reports their age range.
func (ps *CacheStoreImpl) GetStatus() (schema.CacheStatus, error) {
	status := schema.CacheStatus{
		Backend:   string(ps.backend),
		Connected: ps.db != nil,
	}
	if ps.db == nil {
		return status, nil
	}

	quotedTableName := quoteTableName(ps.tableName, ps.backend)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", quotedTableName)
	if err := ps.db.QueryRow(countQuery).Scan(&status.TotalEntries); err != nil {
		return status, fmt.Errorf("count cache entries: %w", err)
	}
	if status.TotalEntries == 0 {
		return status, nil
	}

	var lastTs, oldestTs int64
	rangeQuery := fmt.Sprintf("SELECT MAX(cache_timestamp), MIN(cache_timestamp) FROM %s", quotedTableName)
	if err := ps.db.QueryRow(rangeQuery).Scan(&lastTs, &oldestTs); err != nil {
		return status, fmt.Errorf("read cache entry times: %w", err)
	}
	status.LastEntryTime = time.Unix(lastTs, 0)
	status.OldestEntryTime = time.Unix(oldestTs, 0)
	status.TableSizeBytes = ps.tableSize(int64(status.TotalEntries))

	return status, nil
}

// tableSize estimates the bytes held by the cache table, falling back to a
// rough per-row estimate when the backend cannot report it.
func (ps *CacheStoreImpl) tableSize(rows int64) int64 {
	fallback := rows * 4096
	var size int64
	switch ps.backend {
	case schema.SQLiteBackend:
		row := ps.db.QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
		if err := row.Scan(&size); err != nil {
			return 0
		}
		return size

	case schema.MySQLBackend:
		cfg, err := mysql.ParseDSN(ps.connStr)
		if err != nil || cfg.DBName == "" {
			return fallback
		}
		row := ps.db.QueryRow("SELECT data_length + index_length FROM information_schema.tables WHERE table_schema = ? AND table_name = ?", cfg.DBName, ps.tableName)
		if err := row.Scan(&size); err != nil {
			return fallback
		}
		return size

	case schema.PostgreSQLBackend:
		if err := ps.db.QueryRow("SELECT pg_total_relation_size($1)", ps.tableName).Scan(&size); err != nil {
			return fallback
		}
		return size

	default:
		return fallback
	}
}
