package strategies

import (
	"fmt"
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
	"time"

	"github.com/shopspring/decimal"
)

// RSI buys oversold and sells overbought symbols.
type RSI struct {
	universe   []string
	period     int
	oversold   float64
	overbought float64
	weight     decimal.Decimal
}

func NewRSI(cfg types.StrategyConfig) (*RSI, error) {
	period, err := intParam(cfg, "period", 14)
	if err != nil {
		return nil, err
	}
	oversold, err := floatParam(cfg, "oversold", 30, 0, 100)
	if err != nil {
		return nil, err
	}
	overbought, err := floatParam(cfg, "overbought", 70, 0, 100)
	if err != nil {
		return nil, err
	}
	if oversold >= overbought {
		return nil, &engine.ConfigurationError{
			Field:  "oversold",
			Reason: fmt.Sprintf("must be below overbought (%v >= %v)", oversold, overbought),
		}
	}
	return &RSI{
		universe:   cfg.Universe,
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		weight:     cfg.MaxPositionSize,
	}, nil
}

func (s *RSI) GenerateSignals(date time.Time, view types.PortfolioView, history engine.History) ([]types.TradeIntent, error) {
	var intents []types.TradeIntent
	for _, sym := range s.universe {
		bars := history.Bars(sym)
		if len(bars) < s.period+1 {
			continue
		}

		rsi := wilderRSI(bars, s.period)
		held := view.Held(sym)

		switch {
		case rsi < s.oversold && held.IsZero():
			strength := decimal.NewFromFloat((s.oversold - rsi) / s.oversold)
			reason := fmt.Sprintf("RSI(%d)=%.2f below %v", s.period, rsi, s.oversold)
			if intent, ok := entry(sym, view, bars[len(bars)-1], s.weight, strength, reason, date); ok {
				intents = append(intents, intent)
			}
		case rsi > s.overbought && held.IsPositive():
			strength := decimal.NewFromFloat((rsi - s.overbought) / (100 - s.overbought))
			reason := fmt.Sprintf("RSI(%d)=%.2f above %v", s.period, rsi, s.overbought)
			intents = append(intents, exit(sym, view, strength, reason, date))
		}
	}
	return intents, nil
}
