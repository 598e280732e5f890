package strategies

import (
	"fmt"
	"math"
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
	"time"

	"github.com/shopspring/decimal"
)

// MeanReversion buys when the close is entry_z standard deviations below its
// rolling mean and exits once it reverts to exit_z.
type MeanReversion struct {
	universe []string
	window   int
	entryZ   float64
	exitZ    float64
	weight   decimal.Decimal
}

func NewMeanReversion(cfg types.StrategyConfig) (*MeanReversion, error) {
	window, err := intParam(cfg, "window", 20)
	if err != nil {
		return nil, err
	}
	if window < 2 {
		return nil, &engine.ConfigurationError{Field: "window", Reason: "must be at least 2"}
	}
	entryZ, err := floatParam(cfg, "entry_z", 2, 0, math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	exitZ, err := floatParam(cfg, "exit_z", 0, -math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	if exitZ <= -entryZ {
		return nil, &engine.ConfigurationError{
			Field:  "exit_z",
			Reason: fmt.Sprintf("must be above -entry_z (%v <= %v)", exitZ, -entryZ),
		}
	}
	return &MeanReversion{universe: cfg.Universe, window: window, entryZ: entryZ, exitZ: exitZ, weight: cfg.MaxPositionSize}, nil
}

func (s *MeanReversion) GenerateSignals(date time.Time, view types.PortfolioView, history engine.History) ([]types.TradeIntent, error) {
	var intents []types.TradeIntent
	for _, sym := range s.universe {
		bars := history.Bars(sym)
		if len(bars) < s.window {
			continue
		}
		z, ok := zScore(bars, s.window)
		if !ok {
			continue
		}

		held := view.Held(sym)
		switch {
		case z <= -s.entryZ && held.IsZero():
			reason := fmt.Sprintf("z-score %.2f at or below -%v", z, s.entryZ)
			strength := decimal.NewFromFloat(math.Min(1, -z/(2*s.entryZ+1)))
			if intent, ok := entry(sym, view, bars[len(bars)-1], s.weight, strength, reason, date); ok {
				intents = append(intents, intent)
			}
		case z >= s.exitZ && held.IsPositive():
			reason := fmt.Sprintf("z-score %.2f reverted to %v", z, s.exitZ)
			intents = append(intents, exit(sym, view, decimal.NewFromInt(1), reason, date))
		}
	}
	return intents, nil
}
