package engine

import (
	"errors"
	"fmt"
	"portfolio-backtester/types"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var UnknownSideErr = errors.New("unknown fill side")
var InsufficientBalanceErr = errors.New("insufficient balance when applying fill")
var ShortSellNotAllowedErr = errors.New("short sell not allowed, broker sold more than held")
var MissingCloseErr = errors.New("no closing price for held position")

// portfolio is the ledger of one run. It is owned by a single backtester and
// only changes through apply.
type portfolio struct {
	cash      decimal.Decimal
	positions map[string]*types.Position
	fills     []types.FilledTrade
	realized  []types.RealizedTrade
	snapshots []types.PortfolioSnapshot

	realizedPnL      decimal.Decimal
	transactionCosts decimal.Decimal
	slippageCosts    decimal.Decimal
}

func newPortfolio(initialCash decimal.Decimal) *portfolio {
	return &portfolio{
		cash:      initialCash,
		positions: make(map[string]*types.Position),
	}
}

// view returns the read-only state handed to strategies and the broker.
// Positions are valued at closes, falling back to their last marked price.
func (p *portfolio) view(curTime time.Time, day int, closes map[string]decimal.Decimal) types.PortfolioView {
	v := types.PortfolioView{
		Date:      curTime,
		Day:       day,
		Cash:      p.cash,
		Positions: make(map[string]types.Position, len(p.positions)),
	}
	total := p.cash
	for sym, pos := range p.positions {
		cp := *pos
		if px, ok := closes[sym]; ok {
			cp.LastPrice = px
		}
		v.Positions[sym] = cp
		total = total.Add(cp.MarketValue())
	}
	v.TotalValue = total
	return v
}

// apply books one fill against cash and positions.
func (p *portfolio) apply(fill types.FilledTrade) error {
	if !fill.Quantity.IsPositive() {
		return fmt.Errorf("apply %s fill for %s: non-positive quantity %s", fill.Side, fill.Symbol, fill.Quantity)
	}
	pos := p.positions[fill.Symbol]

	switch fill.Side {
	case types.SideTypeBuy:
		newCash := p.cash.Sub(fill.Notional()).Sub(fill.TransactionCost)
		if newCash.IsNegative() {
			return InsufficientBalanceErr
		}
		p.cash = newCash
		if pos == nil {
			pos = &types.Position{Symbol: fill.Symbol}
			p.positions[fill.Symbol] = pos
		}
		pos.AverageCost = weightedAvg(pos.AverageCost, pos.Quantity, fill.FillPrice, fill.Quantity)
		pos.Quantity = pos.Quantity.Add(fill.Quantity)
		pos.LastPrice = fill.FillPrice

	case types.SideTypeSell:
		if pos == nil || fill.Quantity.GreaterThan(pos.Quantity) {
			return ShortSellNotAllowedErr
		}
		p.cash = p.cash.Add(fill.Notional()).Sub(fill.TransactionCost)
		pnl := fill.Quantity.Mul(fill.FillPrice.Sub(pos.AverageCost)).Sub(fill.TransactionCost)
		p.realized = append(p.realized, types.RealizedTrade{
			Symbol:   fill.Symbol,
			Date:     fill.Date,
			Quantity: fill.Quantity,
			PnL:      pnl,
		})
		p.realizedPnL = p.realizedPnL.Add(pnl)

		pos.Quantity = pos.Quantity.Sub(fill.Quantity)
		pos.LastPrice = fill.FillPrice
		if pos.Quantity.IsZero() {
			delete(p.positions, fill.Symbol)
		}

	default:
		return UnknownSideErr
	}

	p.transactionCosts = p.transactionCosts.Add(fill.TransactionCost)
	p.slippageCosts = p.slippageCosts.Add(fill.SlippageCost)
	p.fills = append(p.fills, fill)
	return nil
}

// markToMarket values every open position at closes and appends the day's snapshot.
func (p *portfolio) markToMarket(curTime time.Time, closes map[string]decimal.Decimal) (types.PortfolioSnapshot, error) {
	total := p.cash
	positions := make(map[string]types.Position, len(p.positions))

	syms := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	for _, sym := range syms {
		pos := p.positions[sym]
		px, ok := closes[sym]
		if !ok {
			return types.PortfolioSnapshot{}, fmt.Errorf("%w: %s on %s", MissingCloseErr, sym, curTime.Format(time.DateOnly))
		}
		pos.LastPrice = px
		positions[sym] = *pos
		total = total.Add(pos.Quantity.Mul(px))
	}

	dailyReturn := decimal.Zero
	if n := len(p.snapshots); n > 0 {
		prev := p.snapshots[n-1].TotalValue
		if prev.IsPositive() {
			dailyReturn = total.Div(prev).Sub(decimal.NewFromInt(1))
		}
	}

	snap := types.PortfolioSnapshot{
		Date:        curTime,
		Cash:        p.cash,
		Positions:   positions,
		TotalValue:  total,
		DailyReturn: dailyReturn,
	}
	p.snapshots = append(p.snapshots, snap)
	return snap, nil
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}
