package strategies

import (
	"fmt"
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
	"time"

	"github.com/shopspring/decimal"
)

// MovingAverage trades crossovers of a short and a long simple moving average.
type MovingAverage struct {
	universe []string
	short    int
	long     int
	weight   decimal.Decimal
}

func NewMovingAverage(cfg types.StrategyConfig) (*MovingAverage, error) {
	short, err := intParam(cfg, "short_window", 20)
	if err != nil {
		return nil, err
	}
	long, err := intParam(cfg, "long_window", 50)
	if err != nil {
		return nil, err
	}
	if short >= long {
		return nil, &engine.ConfigurationError{
			Field:  "short_window",
			Reason: fmt.Sprintf("must be less than long_window (%d >= %d)", short, long),
		}
	}
	return &MovingAverage{universe: cfg.Universe, short: short, long: long, weight: cfg.MaxPositionSize}, nil
}

func (s *MovingAverage) GenerateSignals(date time.Time, view types.PortfolioView, history engine.History) ([]types.TradeIntent, error) {
	var intents []types.TradeIntent
	for _, sym := range s.universe {
		bars := history.Bars(sym)
		// the previous day's spread needs one bar more than the long window
		if len(bars) < s.long+1 {
			continue
		}

		spread := sma(bars, s.short, 0).Sub(sma(bars, s.long, 0))
		prev := sma(bars, s.short, 1).Sub(sma(bars, s.long, 1))
		held := view.Held(sym)

		switch {
		case prev.Sign() <= 0 && spread.Sign() > 0 && held.IsZero():
			reason := fmt.Sprintf("SMA(%d) crossed above SMA(%d)", s.short, s.long)
			if intent, ok := entry(sym, view, bars[len(bars)-1], s.weight, decimal.NewFromInt(1), reason, date); ok {
				intents = append(intents, intent)
			}
		case prev.Sign() >= 0 && spread.Sign() < 0 && held.IsPositive():
			reason := fmt.Sprintf("SMA(%d) crossed below SMA(%d)", s.short, s.long)
			intents = append(intents, exit(sym, view, decimal.NewFromInt(1), reason, date))
		}
	}
	return intents, nil
}
