// Package export writes cached daily bars to Parquet files for offline
// analysis.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketpicture/internal/history"
)

const dateFormat = "2006-01-02"

// BarRecord is the on-disk Parquet schema for one daily bar.
type BarRecord struct {
	Symbol string  `parquet:"symbol"`
	Date   string  `parquet:"date"` // YYYY-MM-DD
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"` // 0 for series without volume
}

// Exporter walks the bar store and writes one Parquet file per symbol and
// year under <dir>/daily/<SYMBOL>/<YYYY>.parquet.
type Exporter struct {
	dir  string
	bars history.Repository
}

func NewExporter(dir string, bars history.Repository) *Exporter {
	return &Exporter{dir: dir, bars: bars}
}

// ExportAll exports every cached symbol and returns the written row count
// per symbol. Existing files are merged, not truncated, with incoming rows
// winning on date collisions.
func (e *Exporter) ExportAll(ctx context.Context) (map[string]int, error) {
	symbols, err := e.bars.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	counts := make(map[string]int, len(symbols))
	for _, symbol := range symbols {
		n, err := e.exportSymbol(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", symbol, err)
		}
		counts[symbol] = n
	}
	return counts, nil
}

func (e *Exporter) exportSymbol(ctx context.Context, symbol string) (int, error) {
	bars, err := e.bars.Range(ctx, symbol, time.Time{}, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("read bars: %w", err)
	}

	byYear := make(map[int][]BarRecord)
	for _, b := range bars {
		var volume int64
		if b.Volume != nil {
			volume = *b.Volume
		}
		byYear[b.Date.Year()] = append(byYear[b.Date.Year()], BarRecord{
			Symbol: b.Symbol,
			Date:   b.Date.Format(dateFormat),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: volume,
		})
	}

	var total int
	for year, records := range byYear {
		path := e.barPath(symbol, year)

		existing := readRecords(path)
		merged := mergeRecords(existing, records)

		if err := writeRecords(path, merged); err != nil {
			return 0, fmt.Errorf("write %s: %w", path, err)
		}
		total += len(merged)
	}
	return total, nil
}

// barPath returns <dir>/daily/<SYMBOL>/<YYYY>.parquet. Slashes in symbols
// (BTC/USD) are flattened so they cannot split the path.
func (e *Exporter) barPath(symbol string, year int) string {
	name := strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
	return filepath.Join(e.dir, "daily", name, fmt.Sprintf("%d.parquet", year))
}

// readRecords loads an existing year file; a missing or unreadable file
// starts the merge from scratch.
func readRecords(path string) []BarRecord {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil
	}
	return records
}

func writeRecords(path string, records []BarRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// mergeRecords deduplicates by date, preferring incoming rows, and returns
// the union sorted by date. Files are per symbol and year, so the date
// alone identifies a row.
func mergeRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[string]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
