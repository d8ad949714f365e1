package outwriter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/parquet"
)

// writeWithFile runs writer against the output file, or stdout when none is set.
func writeWithFile(outputFile string, writer func(io.Writer) error, successMsg string) error {
	file, err := contract.SelectOutputFile(outputFile)
	if err != nil {
		return err
	}
	toFile := file != os.Stdout
	if toFile {
		defer func() { _ = file.Close() }()
	}

	if err := writer(file); err != nil {
		return err
	}

	if toFile {
		_, _ = fmt.Fprintf(os.Stderr, "💾 %s to %s\n", successMsg, outputFile)
	}
	return nil
}

// writeJSON encodes data as two-space indented JSON.
func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// writeCSVWithHeader writes header and then lets writeRows fill the body.
func writeCSVWithHeader(w io.Writer, header []string, writeRows func(*csv.Writer) error) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := writeRows(csvWriter); err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// writeParquetFile refuses stdout since Parquet is binary.
func writeParquetFile[T any](rows []T, outputFile string) error {
	if outputFile == "" {
		return errors.New("parquet output requires --output-file")
	}
	if err := parquet.WriteRows(rows, outputFile); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stderr, "💾 Wrote Parquet to %s\n", outputFile)
	return nil
}

// createFormatters returns a fixed-precision float formatter and the integer verb.
func createFormatters(precision int) (func(float64) string, string) {
	return func(v float64) string {
		return strconv.FormatFloat(v, 'f', precision, 64)
	}, "%d"
}
