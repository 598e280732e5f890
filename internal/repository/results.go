package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"portfolio-backtester/types"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var ErrRunNotFound = errors.New("backtest run not found")

const resultsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	strategy_type TEXT NOT NULL,
	start_date    TEXT NOT NULL,
	end_date      TEXT NOT NULL,
	total_return  TEXT NOT NULL,
	config        TEXT NOT NULL,
	report        TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fills (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	seq              INTEGER NOT NULL,
	date             TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	quantity         TEXT NOT NULL,
	fill_price       TEXT NOT NULL,
	transaction_cost TEXT NOT NULL,
	slippage_cost    TEXT NOT NULL,
	reason           TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS snapshots (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	date         TEXT NOT NULL,
	cash         TEXT NOT NULL,
	total_value  TEXT NOT NULL,
	daily_return TEXT NOT NULL,
	PRIMARY KEY (run_id, date)
);
`

// RunRecord is one persisted backtest.
type RunRecord struct {
	ID        string
	Name      string
	Config    types.StrategyConfig
	Report    types.BacktestResult
	CreatedAt time.Time
}

// createdAtLayout is fixed width so created_at sorts correctly as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// ResultStore persists finished runs in SQLite.
type ResultStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewResultStore opens (or creates) the SQLite database at dbPath.
func NewResultStore(ctx context.Context, dbPath string) (*ResultStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, resultsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results schema: %w", err)
	}
	return &ResultStore{db: db, now: time.Now}, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

// SaveRun stores the run with its fills and snapshots and returns the new run id.
func (s *ResultStore) SaveRun(
	ctx context.Context,
	name string,
	cfg types.StrategyConfig,
	report types.BacktestResult,
	fills []types.FilledTrade,
	snapshots []types.PortfolioSnapshot,
) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, strategy_type, start_date, end_date, total_return, config, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, string(cfg.StrategyType),
		report.StartDate.Format(time.DateOnly), report.EndDate.Format(time.DateOnly),
		report.TotalReturn.String(), string(cfgJSON), string(reportJSON),
		s.now().UTC().Format(createdAtLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, f := range fills {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fills (run_id, seq, date, symbol, side, quantity, fill_price, transaction_cost, slippage_cost, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, f.Date.Format(time.DateOnly), f.Symbol, string(f.Side), f.Quantity.String(),
			f.FillPrice.String(), f.TransactionCost.String(), f.SlippageCost.String(), f.Reason,
		)
		if err != nil {
			return "", fmt.Errorf("insert fill %d: %w", i, err)
		}
	}

	for _, snap := range snapshots {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO snapshots (run_id, date, cash, total_value, daily_return) VALUES (?, ?, ?, ?, ?)`,
			id, snap.Date.Format(time.DateOnly), snap.Cash.String(), snap.TotalValue.String(), snap.DailyReturn.String(),
		)
		if err != nil {
			return "", fmt.Errorf("insert snapshot %s: %w", snap.Date.Format(time.DateOnly), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// GetRun loads a run by id.
func (s *ResultStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, config, report, created_at FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s %w", id, ErrRunNotFound)
	}
	return rec, err
}

// ListRuns returns the most recent runs first, at most limit of them.
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, config, report, created_at FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetFills returns a run's fills in execution order.
func (s *ResultStore) GetFills(ctx context.Context, runID string) ([]types.FilledTrade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, symbol, side, quantity, fill_price, transaction_cost, slippage_cost, reason
		 FROM fills WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.FilledTrade
	for rows.Next() {
		var date, side string
		var qty, price, cost, slip string
		var f types.FilledTrade
		if err := rows.Scan(&date, &f.Symbol, &side, &qty, &price, &cost, &slip, &f.Reason); err != nil {
			return nil, err
		}
		if f.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, err
		}
		f.Side = types.Side(side)
		nums, err := parseDecimals(qty, price, cost, slip)
		if err != nil {
			return nil, fmt.Errorf("fill of run %s: %w", runID, err)
		}
		f.Quantity, f.FillPrice, f.TransactionCost, f.SlippageCost = nums[0], nums[1], nums[2], nums[3]
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var cfgJSON, reportJSON, created string
	if err := row.Scan(&rec.ID, &rec.Name, &cfgJSON, &reportJSON, &created); err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return RunRecord{}, fmt.Errorf("decode config of run %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(reportJSON), &rec.Report); err != nil {
		return RunRecord{}, fmt.Errorf("decode report of run %s: %w", rec.ID, err)
	}
	t, err := time.Parse(createdAtLayout, created)
	if err != nil {
		return RunRecord{}, err
	}
	rec.CreatedAt = t
	return rec, nil
}

func parseDecimals(vals ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
