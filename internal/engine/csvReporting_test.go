package engine

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"portfolio-backtester/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFillsCSV(t *testing.T) {
	f := fill("AAA", types.SideTypeBuy, "10", "100.5", "1.005")
	f.Reason = "initial allocation, day 0"

	var buf bytes.Buffer
	require.NoError(t, writeFillsCSV(&buf, []types.FilledTrade{f}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "fill_price", rows[0][4])
	assert.Equal(t, []string{"2024-01-01", "AAA", "BUY", "10", "100.5", "1.005", "0", "initial allocation, day 0"}, rows[1])
}

func TestWriteSnapshotsCSV(t *testing.T) {
	snap := types.PortfolioSnapshot{
		Date:       monday,
		Cash:       d("12.5"),
		TotalValue: d("1012.5"),
		Positions: map[string]types.Position{
			"BBB": *position("BBB", "3", "100", "100"),
			"AAA": *position("AAA", "7", "100", "100"),
		},
		DailyReturn: d("0.0125"),
	}

	var buf bytes.Buffer
	require.NoError(t, writeSnapshotsCSV(&buf, []types.PortfolioSnapshot{snap}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2024-01-01", "12.5", "1012.5", "0.0125", "AAA:7 BBB:3"}, rows[1])
}

func TestResultWriteCSVFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := &Result{
		Fills:     []types.FilledTrade{fill("AAA", types.SideTypeBuy, "1", "10", "0")},
		Snapshots: snapshotsFor(weekdays(monday, 2), "100", "101"),
	}
	require.NoError(t, r.WriteCSVFiles(dir, "run"))

	for _, name := range []string{"run_fills.csv", "run_snapshots.csv"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
