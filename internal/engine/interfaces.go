package engine

import (
	"portfolio-backtester/types"
	"time"
)

// Strategy turns the visible market history into trade intents. Implementations
// must be pure: the same date, view and history always yield the same intents.
type Strategy interface {
	GenerateSignals(date time.Time, view types.PortfolioView, history History) ([]types.TradeIntent, error)
}

// StrategyFactory builds a Strategy from a run's configuration, validating its parameters.
type StrategyFactory func(cfg types.StrategyConfig) (Strategy, error)

// RunObserver receives one call per finished run. Used for batch metrics.
type RunObserver interface {
	ObserveRun(strategy types.StrategyType, duration time.Duration, fills int, err error)
}
