package engine

import (
	"portfolio-backtester/types"
	"time"

	"github.com/shopspring/decimal"
)

// 2024-01-01 is a Monday.
var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// weekdays returns n consecutive weekdays starting at from.
func weekdays(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for day := from; len(out) < n; day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, day)
	}
	return out
}

func barsOn(sym string, dates []time.Time, closes ...string) []types.PriceBar {
	bars := make([]types.PriceBar, len(closes))
	for i, c := range closes {
		px := d(c)
		bars[i] = types.PriceBar{
			Symbol: sym,
			Date:   dates[i],
			Open:   px,
			High:   px,
			Low:    px,
			Close:  px,
			Volume: d("1000"),
		}
	}
	return bars
}

func position(sym, qty, avg, last string) *types.Position {
	return &types.Position{Symbol: sym, Quantity: d(qty), AverageCost: d(avg), LastPrice: d(last)}
}

func fill(sym string, side types.Side, qty, price, cost string) types.FilledTrade {
	return types.FilledTrade{
		Symbol:          sym,
		Side:            side,
		Quantity:        d(qty),
		FillPrice:       d(price),
		TransactionCost: d(cost),
		SlippageCost:    decimal.Zero,
		Date:            monday,
	}
}
