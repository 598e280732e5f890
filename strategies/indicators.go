package strategies

import (
	"math"
	"portfolio-backtester/types"

	"github.com/shopspring/decimal"
)

// sma is the simple moving average of the period closes ending offset bars
// before the last one.
func sma(bars []types.PriceBar, period, offset int) decimal.Decimal {
	end := len(bars) - offset
	sum := decimal.Zero
	for _, b := range bars[end-period : end] {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// wilderRSI computes the RSI of the last bar using Wilder's smoothing over
// the whole series. Needs at least period+1 bars.
func wilderRSI(bars []types.PriceBar, period int) float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
	}

	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d >= 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgG := gain / float64(period)
	avgL := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d >= 0 {
			g = d
		} else {
			l = -d
		}
		avgG = (avgG*float64(period-1) + g) / float64(period)
		avgL = (avgL*float64(period-1) + l) / float64(period)
	}

	if avgL == 0 {
		return 100
	}
	rs := avgG / avgL
	return 100 - 100/(1+rs)
}

// zScore is (last close - mean) / stddev over the trailing window. ok is
// false when the window is flat.
func zScore(bars []types.PriceBar, window int) (z float64, ok bool) {
	tail := bars[len(bars)-window:]
	var sum float64
	for _, b := range tail {
		sum += b.Close.InexactFloat64()
	}
	m := sum / float64(window)
	var ss float64
	for _, b := range tail {
		d := b.Close.InexactFloat64() - m
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(window))
	if sd == 0 {
		return 0, false
	}
	return (tail[len(tail)-1].Close.InexactFloat64() - m) / sd, true
}

// Utility: Donchian Channel High/Low
func donchianHighLow(bars []types.PriceBar) (decimal.Decimal, decimal.Decimal) {
	if len(bars) == 0 {
		return decimal.Zero, decimal.Zero
	}

	highest := bars[0].High
	lowest := bars[0].Low

	for _, c := range bars {
		if c.High.GreaterThan(highest) {
			highest = c.High
		}
		if c.Low.LessThan(lowest) {
			lowest = c.Low
		}
	}
	return highest, lowest
}

// calcATR is the Wilder-smoothed average true range over period.
func calcATR(bars []types.PriceBar, period int) decimal.Decimal {
	if len(bars) < period+1 {
		return decimal.Zero // need enough data (prev bar + period)
	}

	trueRanges := make([]decimal.Decimal, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high := bars[i].High
		low := bars[i].Low
		prevClose := bars[i-1].Close

		range1 := high.Sub(low)
		range2 := high.Sub(prevClose).Abs()
		range3 := low.Sub(prevClose).Abs()

		trueRanges = append(trueRanges, decimal.Max(range1, range2, range3))
	}

	atr := decimal.Zero
	for _, tr := range trueRanges[:period] {
		atr = atr.Add(tr)
	}
	atr = atr.Div(decimal.NewFromInt(int64(period)))

	for i := period; i < len(trueRanges); i++ {
		atr = atr.Mul(decimal.NewFromInt(int64(period - 1))).Add(trueRanges[i]).
			Div(decimal.NewFromInt(int64(period)))
	}

	return atr
}
