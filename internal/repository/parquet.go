package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"portfolio-backtester/types"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

var _ PriceSource = (*ParquetStore)(nil)
var _ PriceSource = (*Database)(nil)

// BarRecord is the on-disk schema for daily bars. Prices are stored as
// decimal strings so they round-trip exactly.
type BarRecord struct {
	Symbol    string `parquet:"symbol"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      string `parquet:"open"`
	High      string `parquet:"high"`
	Low       string `parquet:"low"`
	Close     string `parquet:"close"`
	Volume    string `parquet:"volume"`
}

// ParquetStore keeps daily bars in Parquet files on disk, one file per
// symbol and year.
type ParquetStore struct {
	DataDir string
}

func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// WriteBars merges bars into the store. A bar for an existing (symbol, date)
// replaces the stored one.
func (s *ParquetStore) WriteBars(_ context.Context, bars []types.PriceBar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		day := types.TradingDay(b.Date)
		k := key{symbol: strings.ToUpper(b.Symbol), year: day.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    k.symbol,
			Timestamp: day.UnixMilli(),
			Open:      b.Open.String(),
			High:      b.High.String(),
			Low:       b.Low.String(),
			Close:     b.Close.String(),
			Volume:    b.Volume.String(),
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)
		existing, err := readParquetFile[BarRecord](path)
		if err != nil {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		if err := writeParquetFile(path, mergeBarRecords(existing, records)); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars returns the bars of symbol dated within [start, end], oldest first.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]types.PriceBar, error) {
	start, end = types.TradingDay(start), types.TradingDay(end)
	var bars []types.PriceBar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[BarRecord](s.barPath(strings.ToUpper(symbol), year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bar, err := r.toPriceBar(symbol)
			if err != nil {
				return nil, err
			}
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// LoadPriceSeries reads every symbol's bars in range.
func (s *ParquetStore) LoadPriceSeries(ctx context.Context, symbols []string, start, end time.Time) (map[string][]types.PriceBar, error) {
	out := make(map[string][]types.PriceBar, len(symbols))
	for _, sym := range symbols {
		bars, err := s.ReadBars(ctx, sym, start, end)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("%s: %w", sym, ErrNoCandles)
		}
		out[sym] = bars
	}
	return out, nil
}

func (r BarRecord) toPriceBar(symbol string) (types.PriceBar, error) {
	fields := []string{r.Open, r.High, r.Low, r.Close, r.Volume}
	vals := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		v, err := decimal.NewFromString(f)
		if err != nil {
			return types.PriceBar{}, fmt.Errorf("bar %s@%d: %w", r.Symbol, r.Timestamp, err)
		}
		vals[i] = v
	}
	return types.PriceBar{
		Symbol: symbol,
		Date:   time.UnixMilli(r.Timestamp).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "daily", symbol, fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readParquetFile returns no records, and no error, for a missing file.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates by timestamp, preferring incoming records,
// and returns them in time order.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	return merged
}
