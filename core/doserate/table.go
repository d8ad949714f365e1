// Package doserate resolves the machine dose-rate ceiling for a beam energy.
package doserate

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// BucketWidth is the energy span (MeV) covered by one table row.
const BucketWidth = 0.3

// ErrTableUnavailable is returned when the reference table cannot be used.
var ErrTableUnavailable = errors.New("doserate table unavailable")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one entry of the reference table.
type Row struct {
	EnergyLowerBound float64 `json:"energy_lower_bound"`
	MaxDoseRate      float64 `json:"max_doserate"`
}

// Table is the ordered list of reference rows, as read from the file.
type Table []Row

// Lookup returns the rate of the first row whose bucket [t, t+BucketWidth) holds energy, or 0.
func (t Table) Lookup(energy float64) float64 {
	for _, row := range t {
		if row.EnergyLowerBound <= energy && energy < row.EnergyLowerBound+BucketWidth {
			return row.MaxDoseRate
		}
	}
	return 0
}

// Digest returns a stable hex digest of the table content.
func (t Table) Digest() string {
	h := sha256.New()
	for _, row := range t {
		_, _ = fmt.Fprintf(h, "%s,%s\n",
			strconv.FormatFloat(row.EnergyLowerBound, 'g', -1, 64),
			strconv.FormatFloat(row.MaxDoseRate, 'g', -1, 64))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LoadTableCSV parses a two-column (energy_lower_bound, max_doserate) table.
// A UTF-8 BOM, blank lines, '#' comments and a leading non-numeric header row are tolerated.
func LoadTableCSV(r io.Reader) (Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var table Table
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTableUnavailable, err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) < 2 {
			return nil, fmt.Errorf("%w: line %d: expected 2 columns, got %d", ErrTableUnavailable, line, len(record))
		}

		energy, errE := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		rate, errR := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if errE != nil || errR != nil {
			if first {
				first = false
				continue // header
			}
			return nil, fmt.Errorf("%w: line %d: non-numeric row %q", ErrTableUnavailable, line, strings.Join(record, ","))
		}
		first = false
		table = append(table, Row{EnergyLowerBound: energy, MaxDoseRate: rate})
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrTableUnavailable)
	}
	return table, nil
}

// LoadTableFile reads a table from a CSV file on disk.
func LoadTableFile(path string) (Table, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no table path configured", ErrTableUnavailable)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTableUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	table, err := LoadTableCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
