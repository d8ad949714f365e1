package outwriter

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/parquet"
	"github.com/protonlab/scantime/schema"
)

// writeSegments prints one row per spot in delivery order.
func writeSegments(plan *schema.Plan, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, _ := createFormatters(cfg.Precision)
	rows := schema.FlattenSegments(plan)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, rows)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSegmentCSV(w, rows, fmtFloat)
		}, "Wrote CSV")
	case schema.ParquetOut:
		return writeParquetFile(parquet.ConvertSegmentRows(rows), cfg.OutputFile)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSegmentTable(plan, rows, cfg, fmtFloat, duration, w)
		}, "Wrote table")
	}
}

func segmentRecord(r schema.SegmentRow, name string, fmtFloat func(float64) string) []string {
	return []string{
		strconv.Itoa(r.BeamNumber),
		name,
		strconv.Itoa(r.Layer),
		fmtFloat(r.Energy),
		strconv.Itoa(r.Segment),
		fmtFloat(r.X),
		fmtFloat(r.Y),
		fmtFloat(r.Weight),
		fmtFloat(r.Distance),
		fmtFloat(r.LayerDoseRate),
		fmtFloat(r.RoundedScanTime),
		fmtFloat(r.Speed),
	}
}

func writeSegmentTable(plan *schema.Plan, rows []schema.SegmentRow, cfg *contract.Config, fmtFloat func(float64) string, duration time.Duration, w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Beam", "Name", "Layer", "Energy", "Seg", "X", "Y", "MU", "Dist", "Rate", "Time (s)", "Speed"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	nameWidth := getMaxTableNameWidth(cfg)
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, segmentRecord(r, contract.TruncatePath(r.BeamName, nameWidth), fmtFloat))
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	return writeFooter(w, plan, cfg, fmtFloat, duration)
}

func writeSegmentCSV(w io.Writer, rows []schema.SegmentRow, fmtFloat func(float64) string) error {
	header := []string{
		"beam_number", "beam_name", "layer", "energy", "segment", "x", "y", "weight",
		"distance", "layer_doserate", "rounded_scan_time", "speed",
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range rows {
			if err := cw.Write(segmentRecord(r, r.BeamName, fmtFloat)); err != nil {
				return err
			}
		}
		return nil
	})
}
