package iocache

import (
	"errors"
	"fmt"

	"github.com/protonlab/scantime/internal/parquet"
)

// ExecuteHistoryExport writes the run history to Parquet files next to outputFile.
func ExecuteHistoryExport(outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}

	store := Manager.GetHistoryStore()
	if store == nil {
		return errors.New("run history is disabled; set --history-backend to export")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get history status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no run history found to export")
	}

	fmt.Printf("Exporting data from %s backend...\n", status.Backend)
	fmt.Printf("Total runs: %d\n", status.TotalRuns)
	fmt.Printf("Total layer records: %d\n", status.TableSizes[layerSummariesTable])

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	layers, err := store.GetAllLayerSummaries()
	if err != nil {
		return fmt.Errorf("failed to retrieve layer summaries: %w", err)
	}

	runRows := parquet.ConvertRunRecords(runs)
	runsFile := outputFile + ".runs.parquet"
	if err := parquet.WriteRows(runRows, runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	fmt.Printf("Exported %d runs to: %s\n", len(runRows), runsFile)

	layerRows := parquet.ConvertLayerSummaryRecords(layers)
	layersFile := outputFile + ".layer_summaries.parquet"
	if err := parquet.WriteRows(layerRows, layersFile); err != nil {
		return fmt.Errorf("failed to write layer summaries: %w", err)
	}
	fmt.Printf("Exported %d layer records to: %s\n", len(layerRows), layersFile)

	return nil
}
