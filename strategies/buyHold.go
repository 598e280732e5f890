package strategies

import (
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
	"time"

	"github.com/shopspring/decimal"
)

// BuyHold spreads the portfolio equally over the universe on the first
// trading day and never trades again.
type BuyHold struct {
	universe []string
	weight   decimal.Decimal
}

func NewBuyHold(cfg types.StrategyConfig) (*BuyHold, error) {
	equal := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(cfg.Universe))))
	return &BuyHold{
		universe: cfg.Universe,
		weight:   decimal.Min(cfg.MaxPositionSize, equal),
	}, nil
}

func (s *BuyHold) GenerateSignals(date time.Time, view types.PortfolioView, history engine.History) ([]types.TradeIntent, error) {
	if view.Day != 0 {
		return nil, nil
	}

	var intents []types.TradeIntent
	for _, sym := range s.universe {
		bar, ok := history.Last(sym)
		if !ok {
			continue
		}
		if intent, ok := entry(sym, view, bar, s.weight, decimal.NewFromInt(1), "initial allocation", date); ok {
			intents = append(intents, intent)
		}
	}
	return intents, nil
}
