package repository

import (
	"context"
	"errors"
	"portfolio-backtester/types"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var startTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
var endTime = startTime.AddDate(0, 0, 4)

type mockAssetsRepository struct {
	assets map[string]assetRow
}

func (m mockAssetsRepository) GetAssetByTicker(_ context.Context, ticker string) (assetRow, error) {
	a, ok := m.assets[ticker]
	if !ok {
		return assetRow{}, pgx.ErrNoRows
	}
	return a, nil
}

type mockCandlesRepository struct {
	mu       sync.Mutex
	sqlError error
	failures int // transient failures before succeeding
	calls    int
	lastArg  getAggregatesParams
	empty    bool
}

func (m *mockCandlesRepository) GetAggregates(_ context.Context, arg getAggregatesParams) ([]aggregateRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastArg = arg
	if m.sqlError != nil {
		return nil, m.sqlError
	}
	if m.calls <= m.failures {
		return nil, errors.New("connection reset by peer")
	}
	if m.empty {
		return nil, nil
	}
	var rows []aggregateRow
	for i, day := 0, arg.Starttime; day.Before(arg.Endtime); i, day = i+1, day.AddDate(0, 0, 1) {
		px := decimal.NewFromInt(int64(100 + i))
		rows = append(rows, aggregateRow{
			Bucket:  day.Add(5 * time.Hour),
			AssetID: arg.AssetID,
			Open:    px,
			High:    px.Add(decimal.NewFromInt(1)),
			Low:     px.Sub(decimal.NewFromInt(1)),
			Close:   px,
			Volume:  decimal.NewFromInt(1000),
		})
	}
	return rows, nil
}

func testAssets() mockAssetsRepository {
	created := startTime.AddDate(-1, 0, 0)
	return mockAssetsRepository{assets: map[string]assetRow{
		"AAPL": {ID: 7, Ticker: "AAPL", Name: "Apple Inc.", Type: "STOCK", Currency: "USD", CreatedAt: &created},
		"SPY":  {ID: 9, Ticker: "SPY", Name: "SPDR S&P 500", Type: "ETF", Currency: "USD"},
	}}
}

func TestDatabase_GetAssetByTicker(t *testing.T) {
	db := &Database{assets: testAssets()}

	asset, err := db.GetAssetByTicker(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 7, asset.Id)
	assert.Equal(t, types.AssetTypeStock, asset.Type)
	assert.Equal(t, startTime.AddDate(-1, 0, 0), asset.CreatedAt)

	asset, err = db.GetAssetByTicker(context.Background(), "SPY")
	require.NoError(t, err)
	assert.True(t, asset.ModifiedAt.IsZero())

	_, err = db.GetAssetByTicker(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, ErrAssetNotFound), "got %v", err)
}

func TestDatabase_GetPriceBars(t *testing.T) {
	tests := []struct {
		name     string
		interval types.Interval
		repo     *mockCandlesRepository
		wantErr  error
	}{
		{"no rows", types.Day, &mockCandlesRepository{sqlError: pgx.ErrNoRows}, ErrNoCandles},
		{"empty result", types.Day, &mockCandlesRepository{empty: true}, ErrNoCandles},
		{"unsupported interval", "M", &mockCandlesRepository{}, ErrIntervalNotSupported},
		{"daily bars", types.Day, &mockCandlesRepository{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &Database{candles: tt.repo}
			got, err := db.GetPriceBars(context.Background(), 7, "AAPL", tt.interval, startTime, endTime)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 5)
			assert.Equal(t, "1 day", tt.repo.lastArg.TimeBucket)
			assert.Equal(t, int32(7), tt.repo.lastArg.AssetID)
			assert.Equal(t, startTime, tt.repo.lastArg.Starttime)
			assert.Equal(t, endTime.AddDate(0, 0, 1), tt.repo.lastArg.Endtime)
			for i, bar := range got {
				assert.Equal(t, "AAPL", bar.Symbol)
				assert.Equal(t, startTime.AddDate(0, 0, i), bar.Date, "bucket truncated to the trading day")
				assert.True(t, bar.Close.Equal(decimal.NewFromInt(int64(100+i))))
			}
		})
	}
}

func TestDatabase_GetPriceBarsIncludesWholeEndDay(t *testing.T) {
	repo := &mockCandlesRepository{}
	db := &Database{candles: repo}

	// an end with a clock time still covers the whole last day
	got, err := db.GetPriceBars(context.Background(), 7, "AAPL", types.Day, startTime.Add(9*time.Hour), endTime.Add(16*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, endTime, got[4].Date)
	assert.Equal(t, startTime, repo.lastArg.Starttime)
	assert.Equal(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), repo.lastArg.Endtime)
}

func TestDatabase_LoadPriceSeries(t *testing.T) {
	repo := &mockCandlesRepository{failures: 1}
	db := &Database{assets: testAssets(), candles: repo}

	series, err := db.LoadPriceSeries(context.Background(), []string{"AAPL", "SPY"}, startTime, endTime)
	require.NoError(t, err)
	assert.Len(t, series["AAPL"], 5)
	assert.Len(t, series["SPY"], 5)
	assert.Equal(t, 3, repo.calls, "one transient failure retried")
}

func TestDatabase_LoadPriceSeriesDoesNotRetryMissingAsset(t *testing.T) {
	repo := &mockCandlesRepository{}
	db := &Database{assets: testAssets(), candles: repo}

	_, err := db.LoadPriceSeries(context.Background(), []string{"NOPE"}, startTime, endTime)
	assert.True(t, errors.Is(err, ErrAssetNotFound))
	assert.Zero(t, repo.calls)
}

func TestRetry(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return permanent(ErrNoCandles)
	})
	assert.True(t, errors.Is(err, ErrNoCandles))
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = retry(ctx, 3, time.Hour, func() error { return errors.New("down") })
	assert.True(t, errors.Is(err, context.Canceled))
}
