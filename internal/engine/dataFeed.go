package engine

import (
	"portfolio-backtester/types"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// minCoverage is the share of expected trading days a symbol must have in range.
const minCoverage = 0.8

// History is the market data a strategy may look at on one simulation date:
// every bar dated on or before AsOf, nothing later.
type History struct {
	asOf time.Time
	bars map[string][]types.PriceBar
}

// NewHistory builds a History from full series, dropping anything dated after asOf.
func NewHistory(asOf time.Time, series map[string][]types.PriceBar) History {
	asOf = types.TradingDay(asOf)
	bars := make(map[string][]types.PriceBar, len(series))
	for sym, s := range series {
		n := sort.Search(len(s), func(i int) bool { return types.TradingDay(s[i].Date).After(asOf) })
		bars[sym] = s[:n:n]
	}
	return History{asOf: asOf, bars: bars}
}

func (h History) AsOf() time.Time { return h.asOf }

// Bars returns the visible bars for symbol, oldest first. The slice has no
// spare capacity, so re-slicing past its length panics instead of exposing
// future bars. Callers must not modify it.
func (h History) Bars(symbol string) []types.PriceBar {
	return h.bars[symbol]
}

func (h History) Len(symbol string) int { return len(h.bars[symbol]) }

func (h History) Closes(symbol string) []decimal.Decimal {
	return types.Closes(h.bars[symbol])
}

// Last returns the most recent visible bar for symbol.
func (h History) Last(symbol string) (types.PriceBar, bool) {
	b := h.bars[symbol]
	if len(b) == 0 {
		return types.PriceBar{}, false
	}
	return b[len(b)-1], true
}

// Symbols returns the symbols in the history in sorted order.
func (h History) Symbols() []string {
	out := make([]string, 0, len(h.bars))
	for s := range h.bars {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// verify fails when any visible bar is dated after the history's date.
func (h History) verify() error {
	for sym, b := range h.bars {
		if len(b) == 0 {
			continue
		}
		last := types.TradingDay(b[len(b)-1].Date)
		if last.After(h.asOf) {
			return &LookaheadViolation{Symbol: sym, Date: h.asOf, BarDate: last}
		}
	}
	return nil
}

// dataFeed walks one symbol's series forward in time.
type dataFeed struct {
	symbol string
	bars   []types.PriceBar
	cursor int // bars[:cursor] are visible
}

func newDataFeed(symbol string, bars []types.PriceBar, end time.Time) *dataFeed {
	end = types.TradingDay(end)
	n := sort.Search(len(bars), func(i int) bool { return types.TradingDay(bars[i].Date).After(end) })
	return &dataFeed{symbol: symbol, bars: bars[:n:n]}
}

// advance moves the cursor past every bar dated on or before curTime.
// Index only goes one way.
func (f *dataFeed) advance(curTime time.Time) {
	for f.cursor < len(f.bars) && !types.TradingDay(f.bars[f.cursor].Date).After(curTime) {
		f.cursor++
	}
}

func (f *dataFeed) visible() []types.PriceBar {
	return f.bars[:f.cursor:f.cursor]
}

// current returns the bar dated exactly curTime, if the feed has one.
func (f *dataFeed) current(curTime time.Time) (types.PriceBar, bool) {
	if f.cursor == 0 {
		return types.PriceBar{}, false
	}
	b := f.bars[f.cursor-1]
	if !types.TradingDay(b.Date).Equal(curTime) {
		return types.PriceBar{}, false
	}
	return b, true
}

// validateSeries checks ordering and the coverage of [start, end].
func validateSeries(symbol string, bars []types.PriceBar, start, end time.Time) error {
	if err := validateBars(symbol, bars); err != nil {
		return err
	}

	inRange := 0
	for _, b := range bars {
		d := types.TradingDay(b.Date)
		if !d.Before(start) && !d.After(end) {
			inRange++
		}
	}
	if inRange == 0 {
		return &DataInsufficientError{Symbol: symbol, Reason: "no bars in range"}
	}
	expected := expectedTradingDays(start, end)
	if expected == 0 {
		return nil
	}
	coverage := float64(inRange) / float64(expected)
	if coverage < minCoverage {
		return &DataInsufficientError{Symbol: symbol, Reason: "missing more than 20% of trading days", Coverage: coverage}
	}
	return nil
}

// validateBars checks ordering and prices only. The benchmark goes through
// this alone since gaps in it just shrink the aligned sample.
func validateBars(symbol string, bars []types.PriceBar) error {
	if len(bars) == 0 {
		return &DataInsufficientError{Symbol: symbol, Reason: "no bars"}
	}
	for i := 1; i < len(bars); i++ {
		prev, cur := types.TradingDay(bars[i-1].Date), types.TradingDay(bars[i].Date)
		if !cur.After(prev) {
			return &DataInsufficientError{Symbol: symbol, Reason: "bars unordered or duplicated at " + cur.Format(time.DateOnly)}
		}
	}
	for _, b := range bars {
		if !b.Close.IsPositive() {
			return &DataInsufficientError{Symbol: symbol, Reason: "non-positive close on " + b.Date.Format(time.DateOnly)}
		}
	}
	return nil
}

// expectedTradingDays counts weekdays in [start, end].
func expectedTradingDays(start, end time.Time) int {
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}

// buildCalendar returns the dates in [start, end] on which every feed has a bar.
func buildCalendar(feeds []*dataFeed, start, end time.Time) []time.Time {
	if len(feeds) == 0 {
		return nil
	}
	counts := make(map[time.Time]int)
	for _, f := range feeds {
		for _, b := range f.bars {
			d := types.TradingDay(b.Date)
			if d.Before(start) || d.After(end) {
				continue
			}
			counts[d]++
		}
	}
	calendar := make([]time.Time, 0, len(counts))
	for d, n := range counts {
		if n == len(feeds) {
			calendar = append(calendar, d)
		}
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })
	return calendar
}
