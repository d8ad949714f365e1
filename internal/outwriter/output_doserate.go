package outwriter

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
)

// WriteDoseRateLookups prints the ceiling found for each requested energy.
func WriteDoseRateLookups(results []schema.DoseRateLookup, cfg *contract.Config) error {
	fmtFloat, _ := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, results)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			header := []string{"energy", "max_doserate", "available", "table_path", "table_rows"}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, r := range results {
					rec := []string{fmtFloat(r.Energy), fmtFloat(r.MaxDoseRate), strconv.FormatBool(r.Available), r.TablePath, strconv.Itoa(r.TableRows)}
					if err := cw.Write(rec); err != nil {
						return err
					}
				}
				return nil
			})
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			table := tablewriter.NewWriter(w)
			table.Header([]string{"Energy", "Max Dose Rate", "Table", "Rows"})
			table.Configure(func(cfg *tablewriter.Config) {
				cfg.Row.Alignment.Global = tw.AlignRight
			})
			var data [][]string
			for _, r := range results {
				rate := fmtFloat(r.MaxDoseRate)
				if !r.Available {
					rate = contract.UnavailableColor.Sprint("unavailable")
				}
				data = append(data, []string{fmtFloat(r.Energy), rate, r.TablePath, strconv.Itoa(r.TableRows)})
			}
			if err := table.Bulk(data); err != nil {
				return err
			}
			return table.Render()
		}, "Wrote table")
	}
}
