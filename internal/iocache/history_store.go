package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
)

// Table names for run history.
const (
	runsTable           = "scantime_runs"
	layerSummariesTable = "scantime_layer_summaries"
	migrationsTable     = "scantime_schema_migrations"
)

// HistoryStoreImpl records every timeline run and its per-layer summaries.
type HistoryStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.HistoryStore = &HistoryStoreImpl{} // Compile-time check

// NewHistoryStore creates a new HistoryStore with the specified backend.
func NewHistoryStore(backend schema.DatabaseBackend, connStr string) (contract.HistoryStore, error) {
	if backend == schema.NoneBackend {
		// No-op store for disabled tracking
		return &HistoryStoreImpl{backend: backend}, nil
	}

	db, err := openDB(backend, connStr, GetHistoryDBFilePath())
	if err != nil {
		return nil, err
	}

	if err := createHistoryTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return &HistoryStoreImpl{db: db, backend: backend}, nil
}

// createHistoryTables applies every up migration of the dialect in order.
// The statements are idempotent, so a database managed by MigrateHistory is left as is.
func createHistoryTables(db *sql.DB, backend schema.DatabaseBackend) error {
	dir := migrationDir(backend)
	names, err := fs.Glob(migrationsFS, dir+"/*.up.sql")
	if err != nil {
		return err
	}
	// fs.Glob returns names in lexical order, which is version order.
	for _, name := range names {
		stmt, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(stmt)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", name, err)
		}
	}
	return nil
}

// placeholders returns n comma separated bind parameters starting at 1.
func placeholders(backend schema.DatabaseBackend, n int) string {
	params := make([]string, n)
	for i := range params {
		params[i] = placeholder(backend, i+1)
	}
	return strings.Join(params, ", ")
}

// BeginRun creates a new run and returns its unique ID.
func (hs *HistoryStoreImpl) BeginRun(start schema.RunStart) (int64, error) {
	if hs.db == nil {
		return 0, nil
	}

	configJSON, err := json.Marshal(start.ConfigParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	var machine any
	if start.MachineName != "" {
		machine = start.MachineName
	}
	args := []any{
		uuid.NewString(),
		start.PlanDigest,
		start.PlanPath,
		machine,
		string(start.SpotEncoding),
		formatTime(start.StartTime, hs.backend),
		string(configJSON),
	}
	query := fmt.Sprintf(`INSERT INTO %s (run_uuid, plan_digest, plan_path, machine_name, spot_encoding, start_time, config_params) VALUES (%s)`,
		quoteTableName(runsTable, hs.backend), placeholders(hs.backend, len(args)))

	var runID int64
	switch hs.backend {
	case schema.PostgreSQLBackend:
		err = hs.db.QueryRow(query+" RETURNING run_id", args...).Scan(&runID)
	default: // SQLite and MySQL
		var result sql.Result
		result, err = hs.db.Exec(query, args...)
		if err != nil {
			break
		}
		runID, err = result.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	return runID, nil
}

// EndRun updates the run with completion data.
func (hs *HistoryStoreImpl) EndRun(runID int64, endTime time.Time, totalLayers int, totalScanTime float64) error {
	if hs.db == nil {
		return nil
	}

	quotedTableName := quoteTableName(runsTable, hs.backend)
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = %s`, quotedTableName, placeholder(hs.backend, 1))
	startTime, err := hs.scanTime(hs.db.QueryRow(query, runID))
	if err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}

	durationMs := endTime.Sub(startTime).Milliseconds()

	updateQuery := fmt.Sprintf(`UPDATE %s SET end_time = %s, run_duration_ms = %s, total_layers = %s, total_scan_time = %s WHERE run_id = %s`,
		quotedTableName,
		placeholder(hs.backend, 1), placeholder(hs.backend, 2), placeholder(hs.backend, 3),
		placeholder(hs.backend, 4), placeholder(hs.backend, 5))
	if _, err := hs.db.Exec(updateQuery, formatTime(endTime, hs.backend), durationMs, totalLayers, totalScanTime, runID); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return nil
}

// RecordLayers stores the summaries of computed layers in one transaction.
func (hs *HistoryStoreImpl) RecordLayers(runID int64, layers []schema.LayerSummaryRecord) error {
	if hs.db == nil || len(layers) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (run_id, beam_number, beam_name, layer_index, energy, segment_count,
		total_mu, layer_doserate, clamp, total_scan_time) VALUES (%s)`,
		quoteTableName(layerSummariesTable, hs.backend), placeholders(hs.backend, 10))

	tx, err := hs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare layer insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, l := range layers {
		if _, err := stmt.Exec(runID, l.BeamNumber, l.BeamName, l.LayerIndex, l.Energy, l.SegmentCount,
			l.TotalMU, l.LayerDoseRate, l.Clamp, l.TotalScanTime); err != nil {
			return fmt.Errorf("failed to insert layer %d of beam %d: %w", l.LayerIndex, l.BeamNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit layer summaries: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (hs *HistoryStoreImpl) Close() error {
	if hs.db != nil {
		return hs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the history store.
func (hs *HistoryStoreImpl) GetStatus() (schema.HistoryStatus, error) {
	status := schema.HistoryStatus{
		Backend:    string(hs.backend),
		Connected:  hs.db != nil,
		TableSizes: make(map[string]int64),
	}
	if hs.db == nil {
		return status, nil
	}

	quotedRuns := quoteTableName(runsTable, hs.backend)
	if err := hs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quotedRuns)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		row := hs.db.QueryRow(fmt.Sprintf("SELECT run_id FROM %s ORDER BY run_id DESC LIMIT 1", quotedRuns))
		if err := row.Scan(&status.LastRunID); err != nil {
			return status, fmt.Errorf("failed to get last run id: %w", err)
		}

		var err error
		row = hs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id DESC LIMIT 1", quotedRuns))
		if status.LastRunTime, err = hs.scanTime(row); err != nil {
			return status, fmt.Errorf("failed to get last run time: %w", err)
		}

		row = hs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", quotedRuns))
		if status.OldestRunTime, err = hs.scanTime(row); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}

		row = hs.db.QueryRow(fmt.Sprintf("SELECT COALESCE(SUM(total_layers), 0) FROM %s", quotedRuns))
		if err := row.Scan(&status.TotalLayersTimed); err != nil {
			return status, fmt.Errorf("failed to get total layers timed: %w", err)
		}
	}

	for _, table := range []string{runsTable, layerSummariesTable} {
		var count int64
		row := hs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, hs.backend)))
		if err := row.Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}

	return status, nil
}

// GetAllRuns retrieves all runs from the store, oldest first.
func (hs *HistoryStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	if hs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, run_uuid, plan_digest, plan_path, machine_name, spot_encoding,
		start_time, end_time, run_duration_ms, total_layers, total_scan_time, config_params
		FROM %s ORDER BY run_id`, quoteTableName(runsTable, hs.backend))

	rows, err := hs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRecord
	for rows.Next() {
		var record schema.RunRecord
		var startTime, endTime any
		if hs.backend == schema.SQLiteBackend {
			startTime, endTime = new(string), new(sql.NullString)
		} else {
			startTime, endTime = new(time.Time), new(sql.NullTime)
		}
		if err := rows.Scan(&record.RunID, &record.RunUUID, &record.PlanDigest, &record.PlanPath,
			&record.MachineName, &record.SpotEncoding, startTime, endTime, &record.RunDurationMs,
			&record.TotalLayers, &record.TotalScanTime, &record.ConfigParams); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		switch st := startTime.(type) {
		case *string:
			if record.StartTime, err = time.Parse(time.RFC3339Nano, *st); err != nil {
				return nil, fmt.Errorf("failed to parse start_time: %w", err)
			}
			if et := endTime.(*sql.NullString); et.Valid {
				t, err := time.Parse(time.RFC3339Nano, et.String)
				if err != nil {
					return nil, fmt.Errorf("failed to parse end_time: %w", err)
				}
				record.EndTime = &t
			}
		case *time.Time:
			record.StartTime = *st
			if et := endTime.(*sql.NullTime); et.Valid {
				t := et.Time
				record.EndTime = &t
			}
		}

		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return results, nil
}

// GetAllLayerSummaries retrieves every layer summary from the store.
func (hs *HistoryStoreImpl) GetAllLayerSummaries() ([]schema.LayerSummaryRecord, error) {
	if hs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, beam_number, beam_name, layer_index, energy, segment_count,
		total_mu, layer_doserate, clamp, total_scan_time
		FROM %s ORDER BY run_id, beam_number, layer_index`, quoteTableName(layerSummariesTable, hs.backend))

	rows, err := hs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query layer summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.LayerSummaryRecord
	for rows.Next() {
		var r schema.LayerSummaryRecord
		if err := rows.Scan(&r.RunID, &r.BeamNumber, &r.BeamName, &r.LayerIndex, &r.Energy, &r.SegmentCount,
			&r.TotalMU, &r.LayerDoseRate, &r.Clamp, &r.TotalScanTime); err != nil {
			return nil, fmt.Errorf("failed to scan layer summary: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating layer summaries: %w", err)
	}

	return results, nil
}

// scanTime reads a single timestamp column in the backend's storage format.
func (hs *HistoryStoreImpl) scanTime(row *sql.Row) (time.Time, error) {
	if hs.backend == schema.SQLiteBackend {
		var s string
		if err := row.Scan(&s); err != nil {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	var t time.Time
	err := row.Scan(&t)
	return t, err
}
