package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"averageCost"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
}

// MarketValue values the position at its last known price.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.LastPrice)
}

// PortfolioView is the read-only portfolio state handed to strategies and the broker.
type PortfolioView struct {
	Date       time.Time
	Day        int // index of Date in the trading calendar
	Cash       decimal.Decimal
	Positions  map[string]Position
	TotalValue decimal.Decimal
}

// Held returns the quantity held for symbol, zero when flat.
func (v PortfolioView) Held(symbol string) decimal.Decimal {
	pos, ok := v.Positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return pos.Quantity
}

// PortfolioSnapshot is the close-of-day state. Never mutated after creation.
type PortfolioSnapshot struct {
	Date        time.Time           `json:"date"`
	Cash        decimal.Decimal     `json:"cash"`
	Positions   map[string]Position `json:"positions"`
	TotalValue  decimal.Decimal     `json:"totalValue"`
	DailyReturn decimal.Decimal     `json:"dailyReturn"`
}
