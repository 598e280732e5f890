package strategies

import (
	"fmt"
	"math"
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
	"time"

	"github.com/shopspring/decimal"
)

// getQuantityForPrice is the whole number of units weight of the portfolio buys at price.
func getQuantityForPrice(view types.PortfolioView, price, weight decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return view.TotalValue.Mul(weight).Div(price).Floor()
}

// entry builds a buy intent sized at weight of the portfolio, or reports false
// when that buys less than one unit.
func entry(sym string, view types.PortfolioView, bar types.PriceBar, weight, strength decimal.Decimal, reason string, date time.Time) (types.TradeIntent, bool) {
	qty := getQuantityForPrice(view, bar.Close, weight)
	if !qty.IsPositive() {
		return types.TradeIntent{}, false
	}
	return types.NewTradeIntent(sym, types.SideTypeBuy, qty, strength, reason, date), true
}

// exit closes the whole long position in sym.
func exit(sym string, view types.PortfolioView, strength decimal.Decimal, reason string, date time.Time) types.TradeIntent {
	return types.NewTradeIntent(sym, types.SideTypeSell, view.Held(sym), strength, reason, date)
}

func intParam(cfg types.StrategyConfig, name string, def int) (int, error) {
	v := cfg.Param(name, float64(def))
	if v < 1 || v != math.Trunc(v) {
		return 0, &engine.ConfigurationError{Field: name, Reason: fmt.Sprintf("must be a positive integer, got %v", v)}
	}
	return int(v), nil
}

func floatParam(cfg types.StrategyConfig, name string, def, lo, hi float64) (float64, error) {
	v := cfg.Param(name, def)
	if math.IsNaN(v) || v < lo || v > hi {
		return 0, &engine.ConfigurationError{Field: name, Reason: fmt.Sprintf("must be in [%v, %v], got %v", lo, hi, v)}
	}
	return v, nil
}
