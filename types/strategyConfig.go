package types

import (
	"github.com/shopspring/decimal"
)

type StrategyType string

const (
	StrategyBuyHold       StrategyType = "buy_hold"
	StrategyMovingAverage StrategyType = "moving_average"
	StrategyRSI           StrategyType = "rsi"
	StrategyMeanReversion StrategyType = "mean_reversion"
	StrategyDonchian      StrategyType = "donchian"
)

// StrategyConfig is the immutable input of one backtest run.
type StrategyConfig struct {
	StrategyType    StrategyType
	Parameters      map[string]float64
	Universe        []string
	InitialCapital  decimal.Decimal
	MaxPositionSize decimal.Decimal // fraction of portfolio value, 0 < f <= 1

	StopLossPercentage   decimal.NullDecimal
	TakeProfitPercentage decimal.NullDecimal
}

// Param returns the named parameter or def when it is not set.
func (c StrategyConfig) Param(name string, def float64) float64 {
	if v, ok := c.Parameters[name]; ok {
		return v
	}
	return def
}

// InUniverse reports whether symbol is part of the configured asset universe.
func (c StrategyConfig) InUniverse(symbol string) bool {
	for _, s := range c.Universe {
		if s == symbol {
			return true
		}
	}
	return false
}
