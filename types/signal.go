package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeIntent is a trade a strategy would like to make. It is not a ledger
// mutation until the broker fills it.
type TradeIntent struct {
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	Strength  decimal.Decimal
	Reason    string
	CreatedAt time.Time
}

func NewTradeIntent(
	symbol string,
	side Side,
	quantity decimal.Decimal,
	strength decimal.Decimal,
	reason string,
	createdAt time.Time,
) TradeIntent {
	return TradeIntent{
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Strength:  strength,
		Reason:    reason,
		CreatedAt: createdAt,
	}
}
