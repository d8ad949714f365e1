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

// planSummary is the JSON shape of the plan view.
type planSummary struct {
	SourcePath    string              `json:"source_path"`
	Digest        string              `json:"digest"`
	PlanLabel     string              `json:"plan_label,omitempty"`
	MachineName   string              `json:"machine_name,omitempty"`
	SpotEncoding  schema.SpotEncoding `json:"spot_encoding"`
	Ports         []schema.PortRow    `json:"ports"`
	Skipped       []skippedLayer      `json:"skipped_layers,omitempty"`
	TotalScanTime float64             `json:"total_scan_time"`
}

type skippedLayer struct {
	BeamNumber int `json:"beam_number"`
	schema.SkippedLayer
}

func collectSkipped(plan *schema.Plan) []skippedLayer {
	var out []skippedLayer
	for _, port := range plan.Ports {
		for _, s := range port.SkippedLayers {
			out = append(out, skippedLayer{BeamNumber: port.BeamNumber, SkippedLayer: s})
		}
	}
	return out
}

// writePlanSummary prints one row per port.
func writePlanSummary(plan *schema.Plan, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)
	rows := schema.SummarizePorts(plan)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, planSummary{
				SourcePath:    plan.SourcePath,
				Digest:        plan.Digest,
				PlanLabel:     plan.PlanLabel,
				MachineName:   plan.MachineName,
				SpotEncoding:  plan.SpotEncoding,
				Ports:         rows,
				Skipped:       collectSkipped(plan),
				TotalScanTime: plan.TotalScanTime,
			})
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writePortCSV(w, rows, fmtFloat, intFmt)
		}, "Wrote CSV")
	case schema.ParquetOut:
		return writeParquetFile(parquet.ConvertPortRows(rows), cfg.OutputFile)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writePortTable(plan, rows, cfg, fmtFloat, intFmt, duration, w)
		}, "Wrote table")
	}
}

func writePortTable(plan *schema.Plan, rows []schema.PortRow, cfg *contract.Config, fmtFloat func(float64) string, intFmt string, duration time.Duration, w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Beam", "Name", "Machine", "Layers", "Skipped", "Segments", "MU", "Scan Time (s)"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	nameWidth := getMaxTableNameWidth(cfg)
	var data [][]string
	for _, r := range rows {
		data = append(data, []string{
			strconv.Itoa(r.BeamNumber),
			contract.TruncatePath(r.BeamName, nameWidth),
			r.MachineName,
			fmt.Sprintf(intFmt, r.Layers),
			fmt.Sprintf(intFmt, r.Skipped),
			fmt.Sprintf(intFmt, r.Segments),
			fmtFloat(r.TotalMU),
			fmtFloat(r.TotalScanTime),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, s := range collectSkipped(plan) {
		if _, err := fmt.Fprintf(w, "Skipped beam %d control point %d: %s\n", s.BeamNumber, s.ControlPoint, s.Reason); err != nil {
			return err
		}
	}
	return writeFooter(w, plan, cfg, fmtFloat, duration)
}

func writePortCSV(w io.Writer, rows []schema.PortRow, fmtFloat func(float64) string, intFmt string) error {
	header := []string{"beam_number", "beam_name", "machine_name", "layers", "skipped_layers", "segments", "total_mu", "total_scan_time"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range rows {
			rec := []string{
				strconv.Itoa(r.BeamNumber),
				r.BeamName,
				r.MachineName,
				fmt.Sprintf(intFmt, r.Layers),
				fmt.Sprintf(intFmt, r.Skipped),
				fmt.Sprintf(intFmt, r.Segments),
				fmtFloat(r.TotalMU),
				fmtFloat(r.TotalScanTime),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
