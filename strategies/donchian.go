package strategies

import (
	"fmt"
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
	"time"

	"github.com/shopspring/decimal"
)

// Donchian is a channel breakout: buy a close above the highest high of the
// preceding channel bars, exit on a close below the lowest low. An optional
// ATR stop exits when the close falls atr_multiple ATRs under the entry cost.
type Donchian struct {
	universe    []string
	channel     int
	atrPeriod   int
	atrMultiple decimal.Decimal
	weight      decimal.Decimal
}

func NewDonchian(cfg types.StrategyConfig) (*Donchian, error) {
	channel, err := intParam(cfg, "channel", 20)
	if err != nil {
		return nil, err
	}
	atrPeriod, err := intParam(cfg, "atr_period", 20)
	if err != nil {
		return nil, err
	}
	multiple, err := floatParam(cfg, "atr_multiple", 0, 0, 100)
	if err != nil {
		return nil, err
	}
	return &Donchian{
		universe:    cfg.Universe,
		channel:     channel,
		atrPeriod:   atrPeriod,
		atrMultiple: decimal.NewFromFloat(multiple),
		weight:      cfg.MaxPositionSize,
	}, nil
}

func (s *Donchian) GenerateSignals(date time.Time, view types.PortfolioView, history engine.History) ([]types.TradeIntent, error) {
	var intents []types.TradeIntent
	for _, sym := range s.universe {
		bars := history.Bars(sym)
		// channel completed bars plus the current one
		if len(bars) < s.channel+1 {
			continue
		}

		bar := bars[len(bars)-1]
		highestHigh, lowestLow := donchianHighLow(bars[len(bars)-s.channel-1 : len(bars)-1])
		held := view.Held(sym)

		if held.IsZero() {
			if bar.Close.GreaterThan(highestHigh) {
				reason := fmt.Sprintf("close %s broke %d-bar high %s", bar.Close, s.channel, highestHigh)
				if intent, ok := entry(sym, view, bar, s.weight, decimal.NewFromInt(1), reason, date); ok {
					intents = append(intents, intent)
				}
			}
			continue
		}

		if bar.Close.LessThan(lowestLow) {
			reason := fmt.Sprintf("close %s broke %d-bar low %s", bar.Close, s.channel, lowestLow)
			intents = append(intents, exit(sym, view, decimal.NewFromInt(1), reason, date))
			continue
		}

		if s.atrMultiple.IsPositive() {
			atr := calcATR(bars, s.atrPeriod)
			if atr.IsZero() {
				continue
			}
			stop := view.Positions[sym].AverageCost.Sub(atr.Mul(s.atrMultiple))
			if bar.Close.LessThan(stop) {
				reason := fmt.Sprintf("ATR(%d) stop at %s", s.atrPeriod, stop.StringFixed(2))
				intents = append(intents, exit(sym, view, decimal.NewFromInt(1), reason, date))
			}
		}
	}
	return intents, nil
}
