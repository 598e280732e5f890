package strategies

import (
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
)

// NewRegistry returns a registry holding every built-in strategy.
func NewRegistry() *engine.Registry {
	r := engine.NewRegistry()
	Register(r)
	return r
}

// Register adds the built-in strategies to r.
func Register(r *engine.Registry) {
	r.MustRegister(types.StrategyBuyHold, factory(NewBuyHold))
	r.MustRegister(types.StrategyMovingAverage, factory(NewMovingAverage))
	r.MustRegister(types.StrategyRSI, factory(NewRSI))
	r.MustRegister(types.StrategyMeanReversion, factory(NewMeanReversion))
	r.MustRegister(types.StrategyDonchian, factory(NewDonchian))
}

func factory[S engine.Strategy](build func(types.StrategyConfig) (S, error)) engine.StrategyFactory {
	return func(cfg types.StrategyConfig) (engine.Strategy, error) {
		s, err := build(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
