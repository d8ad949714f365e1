package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/parquet"
	"github.com/protonlab/scantime/schema"
)

// WriteCheck prints the per-layer deviations between a plan and its delivery logs.
func WriteCheck(report *schema.CheckReport, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, report)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCheckCSV(w, report.Layers, fmtFloat, intFmt)
		}, "Wrote CSV")
	case schema.ParquetOut:
		return writeParquetFile(parquet.ConvertLayerDeviations(report.Layers), cfg.OutputFile)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCheckTable(w, report, cfg, fmtFloat, intFmt, duration)
		}, "Wrote table")
	}
}

func writeCheckTable(w io.Writer, report *schema.CheckReport, cfg *contract.Config, fmtFloat func(float64) string, intFmt string, duration time.Duration) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Beam", "Name", "Layer", "Energy", "Log", "Spots", "Samples", "dX Mean", "dX Std", "dY Mean", "dY Std", "Max |d|"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	nameWidth := getMaxTableNameWidth(cfg)
	var data [][]string
	for _, d := range report.Layers {
		row := []string{
			strconv.Itoa(d.BeamNumber),
			contract.TruncatePath(d.BeamName, nameWidth),
			strconv.Itoa(d.Layer),
			fmtFloat(d.Energy),
			contract.TruncatePath(filepath.Base(d.LogFile), nameWidth),
			fmt.Sprintf(intFmt, d.PlanSpots),
			fmt.Sprintf(intFmt, d.LogSamples),
		}
		if d.Error != "" {
			row = append(row, contract.UnavailableColor.Sprint("failed"), "", "", "", "")
		} else {
			row = append(row,
				fmtFloat(d.MeanDiffX), fmtFloat(d.StdDiffX),
				fmtFloat(d.MeanDiffY), fmtFloat(d.StdDiffY),
				fmtFloat(max(d.MaxAbsDiffX, d.MaxAbsDiffY)),
			)
		}
		data = append(data, row)
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, d := range report.Layers {
		if d.Error != "" {
			if _, err := fmt.Fprintf(w, "Layer %d of beam %d: %s\n", d.Layer, d.BeamNumber, d.Error); err != nil {
				return err
			}
		}
	}
	checked := len(report.Layers)
	if _, err := fmt.Fprintf(w, "Checked %d of %d layers against delivery logs (%d failed). Differences are planned minus delivered, in mm.\n",
		checked, checked+report.UncheckedLayers, report.Failed()); err != nil {
		return err
	}
	for _, path := range report.UnusedLogs {
		if _, err := fmt.Fprintf(w, "Unused log: %s\n", path); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Check completed in %v with %d workers\n", duration, cfg.Workers)
	return err
}

func writeCheckCSV(w io.Writer, rows []schema.LayerDeviation, fmtFloat func(float64) string, intFmt string) error {
	header := []string{
		"beam_number", "beam_name", "layer", "control_point", "energy", "log_file", "plan_spots", "log_samples",
		"delivered_mu", "mean_diff_x", "std_diff_x", "max_abs_diff_x", "mean_diff_y", "std_diff_y", "max_abs_diff_y", "error",
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, d := range rows {
			rec := []string{
				strconv.Itoa(d.BeamNumber),
				d.BeamName,
				strconv.Itoa(d.Layer),
				strconv.Itoa(d.ControlPoint),
				fmtFloat(d.Energy),
				d.LogFile,
				fmt.Sprintf(intFmt, d.PlanSpots),
				fmt.Sprintf(intFmt, d.LogSamples),
				fmtFloat(d.DeliveredMU),
				fmtFloat(d.MeanDiffX),
				fmtFloat(d.StdDiffX),
				fmtFloat(d.MaxAbsDiffX),
				fmtFloat(d.MeanDiffY),
				fmtFloat(d.StdDiffY),
				fmtFloat(d.MaxAbsDiffY),
				d.Error,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
