package repository

import (
	"context"
	"errors"
	"fmt"
	"portfolio-backtester/types"
	"time"

	"github.com/jackc/pgx/v5"
)

var bucketToInterval = map[types.Interval]string{
	types.Day:  "1 day",
	types.Week: "1 week",
}

// GetPriceBars returns the bars of assetId in [start, end], bucketed to interval.
func (db *Database) GetPriceBars(ctx context.Context, assetId int, ticker string, interval types.Interval, start, end time.Time) ([]types.PriceBar, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, permanent(ErrIntervalNotSupported)
	}
	args := getAggregatesParams{
		TimeBucket: bucket,
		AssetID:    int32(assetId),
		Starttime:  types.TradingDay(start),
		Endtime:    types.TradingDay(end).AddDate(0, 0, 1),
	}
	candles, err := db.candles.GetAggregates(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", ticker, permanent(ErrNoCandles))
		}
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, permanent(ErrNoCandles))
	}
	return convertCandles(candles, ticker), nil
}

func convertCandles(rows []aggregateRow, ticker string) []types.PriceBar {
	bars := make([]types.PriceBar, 0, len(rows))
	for _, dao := range rows {
		bars = append(bars, types.PriceBar{
			Symbol: ticker,
			Date:   types.TradingDay(dao.Bucket),
			Open:   dao.Open,
			High:   dao.High,
			Low:    dao.Low,
			Close:  dao.Close,
			Volume: dao.Volume,
		})
	}
	return bars
}
