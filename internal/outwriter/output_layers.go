package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/parquet"
	"github.com/protonlab/scantime/schema"
)

// writeLayers prints one row per layer with its dose rate outcome.
func writeLayers(plan *schema.Plan, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)
	rows := schema.FlattenLayers(plan)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, rows)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeLayerCSV(w, rows, fmtFloat, intFmt)
		}, "Wrote CSV")
	case schema.ParquetOut:
		return writeParquetFile(parquet.ConvertLayerRows(rows), cfg.OutputFile)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeLayerTable(plan, rows, cfg, fmtFloat, intFmt, duration, w)
		}, "Wrote table")
	}
}

func writeLayerTable(plan *schema.Plan, rows []schema.LayerRow, cfg *contract.Config, fmtFloat func(float64) string, intFmt string, duration time.Duration, w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Beam", "Name", "Layer", "Energy", "Segs", "MU", "Ceiling", "Rate", "Clamp", "Scan Time (s)", "DReff", "Slow"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	nameWidth := getMaxTableNameWidth(cfg)
	var data [][]string
	for _, r := range rows {
		data = append(data, []string{
			strconv.Itoa(r.BeamNumber),
			contract.TruncatePath(r.BeamName, nameWidth),
			strconv.Itoa(r.Layer),
			fmtFloat(r.Energy),
			fmt.Sprintf(intFmt, r.Segments),
			fmtFloat(r.TotalMU),
			fmtFloat(r.Ceiling),
			fmtFloat(r.LayerDoseRate),
			contract.GetColorLabel(r.Clamp),
			fmtFloat(r.TotalScanTime),
			fmtFloat(r.DReff),
			fmt.Sprintf(intFmt, r.SlowSegments),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	return writeFooter(w, plan, cfg, fmtFloat, duration)
}

func writeLayerCSV(w io.Writer, rows []schema.LayerRow, fmtFloat func(float64) string, intFmt string) error {
	header := []string{
		"beam_number", "beam_name", "layer", "energy", "segments", "total_mu", "doserate_ceiling",
		"layer_doserate", "clamp", "total_scan_time", "dr_eff", "mu_delta", "slow_segments",
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range rows {
			rec := []string{
				strconv.Itoa(r.BeamNumber),
				r.BeamName,
				strconv.Itoa(r.Layer),
				fmtFloat(r.Energy),
				fmt.Sprintf(intFmt, r.Segments),
				fmtFloat(r.TotalMU),
				fmtFloat(r.Ceiling),
				fmtFloat(r.LayerDoseRate),
				contract.GetPlainLabel(r.Clamp),
				fmtFloat(r.TotalScanTime),
				fmtFloat(r.DReff),
				fmtFloat(r.MUDelta),
				fmt.Sprintf(intFmt, r.SlowSegments),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
