package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"portfolio-backtester/types"
	"sort"
	"time"
)

// WriteCSVFiles writes <prefix>_fills.csv and <prefix>_snapshots.csv into dir.
func (r *Result) WriteCSVFiles(dir, prefix string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := writeCSVFile(filepath.Join(dir, prefix+"_fills.csv"), func(w io.Writer) error {
		return writeFillsCSV(w, r.Fills)
	}); err != nil {
		return err
	}
	return writeCSVFile(filepath.Join(dir, prefix+"_snapshots.csv"), func(w io.Writer) error {
		return writeSnapshotsCSV(w, r.Snapshots)
	})
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	return write(f)
}

// writeFillsCSV writes fills to any io.Writer as CSV.
func writeFillsCSV(w io.Writer, fills []types.FilledTrade) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"date", // YYYY-MM-DD
		"symbol",
		"side",
		"quantity",
		"fill_price",
		"transaction_cost",
		"slippage_cost",
		"reason",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, f := range fills {
		record := []string{
			f.Date.Format(time.DateOnly),
			f.Symbol,
			string(f.Side),
			f.Quantity.String(),
			f.FillPrice.String(),
			f.TransactionCost.String(),
			f.SlippageCost.String(),
			f.Reason,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// writeSnapshotsCSV writes one row per snapshot; positions are flattened as
// SYMBOL:QTY pairs separated by spaces.
func writeSnapshotsCSV(w io.Writer, snapshots []types.PortfolioSnapshot) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"date", "cash", "total_value", "daily_return", "positions"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, s := range snapshots {
		syms := make([]string, 0, len(s.Positions))
		for sym := range s.Positions {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		positions := ""
		for i, sym := range syms {
			if i > 0 {
				positions += " "
			}
			positions += sym + ":" + s.Positions[sym].Quantity.String()
		}

		record := []string{
			s.Date.Format(time.DateOnly),
			s.Cash.String(),
			s.TotalValue.String(),
			s.DailyReturn.String(),
			positions,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
