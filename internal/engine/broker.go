package engine

import (
	"portfolio-backtester/types"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type DiagnosticKind string

const (
	// DiagnosticMalformed marks an intent that could never be executed (ExecutionError).
	DiagnosticMalformed DiagnosticKind = "MALFORMED"
	// DiagnosticRejected marks a well-formed intent that cash or position limits sized down to nothing.
	DiagnosticRejected DiagnosticKind = "REJECTED"
)

// Diagnostic records an intent the broker dropped.
type Diagnostic struct {
	Date   time.Time
	Symbol string
	Side   types.Side
	Kind   DiagnosticKind
	Err    error
}

// broker is the execution model: it turns intents into fills at the day's
// close, adjusted for slippage, and charges transaction costs.
type broker struct {
	slippage         decimal.Decimal
	transactionCosts decimal.Decimal
	maxPositionSize  decimal.Decimal
	stopLoss         decimal.NullDecimal
	takeProfit       decimal.NullDecimal
	universe         map[string]struct{}
}

func newBroker(exec ExecutionConfig, cfg types.StrategyConfig) *broker {
	universe := make(map[string]struct{}, len(cfg.Universe))
	for _, s := range cfg.Universe {
		universe[s] = struct{}{}
	}
	return &broker{
		slippage:         exec.Slippage,
		transactionCosts: exec.TransactionCosts,
		maxPositionSize:  cfg.MaxPositionSize,
		stopLoss:         cfg.StopLossPercentage,
		takeProfit:       cfg.TakeProfitPercentage,
		universe:         universe,
	}
}

// execState is the broker's running copy of cash and holdings while it works
// through one day's intents.
type execState struct {
	cash decimal.Decimal
	held map[string]decimal.Decimal
	bars map[string]types.PriceBar
}

func (s *execState) totalValue() decimal.Decimal {
	total := s.cash
	for sym, qty := range s.held {
		if bar, ok := s.bars[sym]; ok {
			total = total.Add(qty.Mul(bar.Close))
		}
	}
	return total
}

// Execute fills intents against the current bars.
//   - Stop-loss / take-profit exits are evaluated first, on the close versus average cost.
//     Strategy intents for a symbol exited this way are rejected for the day.
//   - Sells are processed before buys so their proceeds can fund the buys.
//   - Sells are capped at the held quantity; buys at max_position_size of the
//     portfolio value and at available cash including costs.
//
// Does NOT mutate the portfolio; the backtester applies the returned fills.
func (b *broker) Execute(
	curTime time.Time,
	intents []types.TradeIntent,
	view types.PortfolioView,
	bars map[string]types.PriceBar,
) ([]types.FilledTrade, []Diagnostic) {
	state := &execState{
		cash: view.Cash,
		held: make(map[string]decimal.Decimal, len(view.Positions)),
		bars: bars,
	}
	for sym, pos := range view.Positions {
		state.held[sym] = pos.Quantity
	}

	var fills []types.FilledTrade
	var diags []Diagnostic

	exited := make(map[string]bool)
	for _, sym := range sortedKeys(state.held) {
		bar, ok := bars[sym]
		if !ok {
			continue
		}
		reason, hit := b.riskExit(view.Positions[sym], bar.Close)
		if !hit {
			continue
		}
		fills = append(fills, b.fillSell(curTime, sym, state.held[sym], bar, reason, state))
		exited[sym] = true
	}

	var sells, buys []types.TradeIntent
	for _, intent := range intents {
		if err := b.validate(intent, bars); err != nil {
			diags = append(diags, Diagnostic{Date: curTime, Symbol: intent.Symbol, Side: intent.Side, Kind: DiagnosticMalformed, Err: err})
			continue
		}
		if exited[intent.Symbol] {
			diags = append(diags, b.rejected(curTime, intent, "position force-exited"))
			continue
		}
		if intent.Quantity.Floor().IsZero() {
			diags = append(diags, b.rejected(curTime, intent, "quantity below one unit"))
			continue
		}
		if intent.Side == types.SideTypeSell {
			sells = append(sells, intent)
		} else {
			buys = append(buys, intent)
		}
	}

	for _, intent := range sells {
		held := state.held[intent.Symbol]
		qty := decimal.Min(intent.Quantity.Floor(), held)
		if !qty.IsPositive() {
			diags = append(diags, b.rejected(curTime, intent, "no position to sell"))
			continue
		}
		fills = append(fills, b.fillSell(curTime, intent.Symbol, qty, bars[intent.Symbol], intent.Reason, state))
	}

	for _, intent := range buys {
		bar := bars[intent.Symbol]
		fillPrice := bar.Close.Mul(decimal.NewFromInt(1).Add(b.slippage))

		capValue := b.maxPositionSize.Mul(state.totalValue())
		room := capValue.Sub(state.held[intent.Symbol].Mul(fillPrice))
		byCap := decimal.Zero
		if room.IsPositive() {
			byCap = room.Div(fillPrice).Floor()
		}
		byCash := b.affordable(state.cash, fillPrice)

		qty := decimal.Min(intent.Quantity.Floor(), byCap, byCash)
		if !qty.IsPositive() {
			reason := "position size limit reached"
			if !byCash.IsPositive() {
				reason = "insufficient cash for one unit"
			}
			diags = append(diags, b.rejected(curTime, intent, reason))
			continue
		}

		notional := fillPrice.Mul(qty)
		cost := notional.Mul(b.transactionCosts)
		state.cash = state.cash.Sub(notional).Sub(cost)
		state.held[intent.Symbol] = state.held[intent.Symbol].Add(qty)
		fills = append(fills, types.FilledTrade{
			Symbol:          intent.Symbol,
			Side:            types.SideTypeBuy,
			Quantity:        qty,
			FillPrice:       fillPrice,
			TransactionCost: cost,
			SlippageCost:    fillPrice.Sub(bar.Close).Mul(qty),
			Date:            curTime,
			Reason:          intent.Reason,
		})
	}

	return fills, diags
}

func (b *broker) fillSell(curTime time.Time, sym string, qty decimal.Decimal, bar types.PriceBar, reason string, state *execState) types.FilledTrade {
	fillPrice := bar.Close.Mul(decimal.NewFromInt(1).Sub(b.slippage))
	notional := fillPrice.Mul(qty)
	cost := notional.Mul(b.transactionCosts)

	state.cash = state.cash.Add(notional).Sub(cost)
	state.held[sym] = state.held[sym].Sub(qty)
	if state.held[sym].IsZero() {
		delete(state.held, sym)
	}

	return types.FilledTrade{
		Symbol:          sym,
		Side:            types.SideTypeSell,
		Quantity:        qty,
		FillPrice:       fillPrice,
		TransactionCost: cost,
		SlippageCost:    bar.Close.Sub(fillPrice).Mul(qty),
		Date:            curTime,
		Reason:          reason,
	}
}

// riskExit reports whether pos has breached the stop-loss or take-profit level at price.
func (b *broker) riskExit(pos types.Position, price decimal.Decimal) (string, bool) {
	if !pos.AverageCost.IsPositive() {
		return "", false
	}
	ret := price.Div(pos.AverageCost).Sub(decimal.NewFromInt(1))
	if b.stopLoss.Valid && ret.LessThanOrEqual(b.stopLoss.Decimal.Neg()) {
		return "stop-loss", true
	}
	if b.takeProfit.Valid && ret.GreaterThanOrEqual(b.takeProfit.Decimal) {
		return "take-profit", true
	}
	return "", false
}

// affordable is the largest whole quantity whose notional plus costs fits in cash.
func (b *broker) affordable(cash, fillPrice decimal.Decimal) decimal.Decimal {
	if !cash.IsPositive() {
		return decimal.Zero
	}
	unitCost := fillPrice.Mul(decimal.NewFromInt(1).Add(b.transactionCosts))
	qty := cash.Div(unitCost).Floor()
	// Div rounds at DivisionPrecision, so the floor can land one unit too high.
	for qty.IsPositive() && unitCost.Mul(qty).GreaterThan(cash) {
		qty = qty.Sub(decimal.NewFromInt(1))
	}
	return qty
}

func (b *broker) validate(intent types.TradeIntent, bars map[string]types.PriceBar) error {
	if !intent.Side.Valid() {
		return &ExecutionError{Symbol: intent.Symbol, Reason: "unknown side " + string(intent.Side)}
	}
	if _, ok := b.universe[intent.Symbol]; !ok {
		return &ExecutionError{Symbol: intent.Symbol, Reason: "symbol not in universe"}
	}
	if _, ok := bars[intent.Symbol]; !ok {
		return &ExecutionError{Symbol: intent.Symbol, Reason: "no bar for symbol"}
	}
	if !intent.Quantity.IsPositive() {
		return &ExecutionError{Symbol: intent.Symbol, Reason: "non-positive quantity " + intent.Quantity.String()}
	}
	return nil
}

func (b *broker) rejected(curTime time.Time, intent types.TradeIntent, reason string) Diagnostic {
	return Diagnostic{
		Date:   curTime,
		Symbol: intent.Symbol,
		Side:   intent.Side,
		Kind:   DiagnosticRejected,
		Err:    &ExecutionError{Symbol: intent.Symbol, Reason: reason},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
