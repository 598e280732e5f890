package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type FilledTrade struct {
	Symbol          string          `json:"symbol"`
	Side            Side            `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	FillPrice       decimal.Decimal `json:"fillPrice"`
	TransactionCost decimal.Decimal `json:"transactionCost"`
	SlippageCost    decimal.Decimal `json:"slippageCost"`
	Date            time.Time       `json:"date"`
	Reason          string          `json:"reason"`
}

// Notional is fill price times quantity, before costs.
func (f FilledTrade) Notional() decimal.Decimal {
	return f.FillPrice.Mul(f.Quantity)
}

// RealizedTrade is the P&L booked by a sell fill against the average cost.
type RealizedTrade struct {
	Symbol   string          `json:"symbol"`
	Date     time.Time       `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	PnL      decimal.Decimal `json:"pnl"`
}
