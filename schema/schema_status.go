package schema

import "time"

// CacheStatus represents the status of the timeline cache store.
type CacheStatus struct {
	Backend         string    `json:"backend"`
	Connected       bool      `json:"connected"`
	TotalEntries    int       `json:"total_entries"`
	LastEntryTime   time.Time `json:"last_entry_time"`
	OldestEntryTime time.Time `json:"oldest_entry_time"`
	TableSizeBytes  int64     `json:"table_size_bytes"`
}

// HistoryStatus represents the status of the run history store.
type HistoryStatus struct {
	Backend          string           `json:"backend"`
	Connected        bool             `json:"connected"`
	TotalRuns        int              `json:"total_runs"`
	LastRunID        int64            `json:"last_run_id"`
	LastRunTime      time.Time        `json:"last_run_time"`
	OldestRunTime    time.Time        `json:"oldest_run_time"`
	TotalLayersTimed int              `json:"total_layers_timed"`
	TableSizes       map[string]int64 `json:"table_sizes"`
}

// DoseRateLookup is the answer to a single ceiling lookup.
type DoseRateLookup struct {
	Energy      float64 `json:"energy"`
	MaxDoseRate float64 `json:"max_doserate"`
	TablePath   string  `json:"table_path"`
	TableRows   int     `json:"table_rows"`
	Available   bool    `json:"available"`
}
