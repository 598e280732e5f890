package repository

import (
	"context"
	"errors"
	"fmt"
	"portfolio-backtester/types"
	"sync"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Global error declarations.
var (
	ErrIntervalNotSupported = errors.New("timeframe not supported")
	ErrAssetNotFound        = errors.New("not found in datasource")
	ErrNoCandles            = errors.New("no candles found in datasource")
)

// PriceSource loads the daily series the engine runs on.
type PriceSource interface {
	LoadPriceSeries(ctx context.Context, symbols []string, start, end time.Time) (map[string][]types.PriceBar, error)
}

type assetsRepository interface {
	GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error)
}
type candlesRepository interface {
	GetAggregates(ctx context.Context, arg getAggregatesParams) ([]aggregateRow, error)
}

const (
	loadAttempts  = 3
	loadBaseDelay = 200 * time.Millisecond
	loadWorkers   = 4
)

// Database struct that holds the database connection and queries.
type Database struct {
	assets  assetsRepository
	candles candlesRepository
	conn    *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	q := newQueries(conn)
	return &Database{
		assets:  q,
		candles: q,
		conn:    conn}, nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}

// LoadPriceSeries fetches daily bars for every symbol concurrently. Transient
// failures are retried; a missing asset or an empty range is not.
func (db *Database) LoadPriceSeries(ctx context.Context, symbols []string, start, end time.Time) (map[string][]types.PriceBar, error) {
	out := make(map[string][]types.PriceBar, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadWorkers)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			var bars []types.PriceBar
			err := retry(gctx, loadAttempts, loadBaseDelay, func() error {
				asset, err := db.GetAssetByTicker(gctx, sym)
				if err != nil {
					return err
				}
				bars, err = db.GetPriceBars(gctx, asset.Id, asset.Ticker, types.Day, start, end)
				return err
			})
			if err != nil {
				return fmt.Errorf("load %s: %w", sym, err)
			}
			mu.Lock()
			out[sym] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
