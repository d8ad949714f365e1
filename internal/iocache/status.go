package iocache

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/protonlab/scantime/schema"
)

const statusTimeLayout = "2006-01-02 15:04:05"

// statusPrinter writes aligned "label: value" lines.
type statusPrinter struct {
	w io.Writer
}

func (p statusPrinter) line(label string, value any) {
	if t, ok := value.(time.Time); ok {
		value = t.Format(statusTimeLayout)
	}
	_, _ = fmt.Fprintf(p.w, "%-20s %v\n", label+":", value)
}

// PrintCacheStatus prints timeline cache status information.
func PrintCacheStatus(status schema.CacheStatus) {
	writeCacheStatus(os.Stdout, status)
}

func writeCacheStatus(w io.Writer, status schema.CacheStatus) {
	p := statusPrinter{w: w}
	p.line("Cache Backend", status.Backend)
	p.line("Connected", status.Connected)
	if !status.Connected {
		return
	}
	p.line("Cached Timelines", status.TotalEntries)
	if status.TotalEntries > 0 {
		p.line("Newest Entry", status.LastEntryTime)
		p.line("Oldest Entry", status.OldestEntryTime)
	}
	p.line("Table Size (bytes)", status.TableSizeBytes)
}

// PrintHistoryStatus prints run history status information.
func PrintHistoryStatus(status schema.HistoryStatus) {
	writeHistoryStatus(os.Stdout, status)
}

func writeHistoryStatus(w io.Writer, status schema.HistoryStatus) {
	p := statusPrinter{w: w}
	p.line("History Backend", status.Backend)
	p.line("Connected", status.Connected)
	if !status.Connected {
		return
	}
	p.line("Runs", status.TotalRuns)
	if status.TotalRuns > 0 {
		p.line("Latest Run ID", status.LastRunID)
		p.line("Latest Run", status.LastRunTime)
		p.line("Oldest Run", status.OldestRunTime)
		p.line("Layers Timed", status.TotalLayersTimed)
	}
	for _, table := range slices.Sorted(maps.Keys(status.TableSizes)) {
		p.line("Rows in "+table, status.TableSizes[table])
	}
}
