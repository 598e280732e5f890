package engine

import (
	"errors"
	"portfolio-backtester/types"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBroker(slippage, costs, maxPos string, universe ...string) *broker {
	return newBroker(
		NewExecutionConfig(d(slippage), d(costs), false),
		types.StrategyConfig{
			StrategyType:    "test",
			Universe:        universe,
			InitialCapital:  d("1000"),
			MaxPositionSize: d(maxPos),
		},
	)
}

func brokerView(cash string, positions ...*types.Position) types.PortfolioView {
	v := types.PortfolioView{Date: monday, Cash: d(cash), Positions: map[string]types.Position{}}
	total := d(cash)
	for _, p := range positions {
		v.Positions[p.Symbol] = *p
		total = total.Add(p.MarketValue())
	}
	v.TotalValue = total
	return v
}

func closeBars(pairs ...string) map[string]types.PriceBar {
	bars := make(map[string]types.PriceBar)
	for i := 0; i+1 < len(pairs); i += 2 {
		px := d(pairs[i+1])
		bars[pairs[i]] = types.PriceBar{Symbol: pairs[i], Date: monday, Open: px, High: px, Low: px, Close: px}
	}
	return bars
}

func intent(sym string, side types.Side, qty string) types.TradeIntent {
	return types.NewTradeIntent(sym, side, d(qty), decimal.NewFromInt(1), "test", monday)
}

func TestBrokerSellsFundBuys(t *testing.T) {
	b := testBroker("0", "0", "1", "AAA", "BBB")
	view := brokerView("0", position("AAA", "10", "100", "100"))

	fills, diags := b.Execute(monday,
		[]types.TradeIntent{intent("BBB", types.SideTypeBuy, "20"), intent("AAA", types.SideTypeSell, "10")},
		view, closeBars("AAA", "100", "BBB", "50"))

	require.Empty(t, diags)
	require.Len(t, fills, 2)
	assert.Equal(t, types.SideTypeSell, fills[0].Side)
	assert.Equal(t, "AAA", fills[0].Symbol)
	assert.Equal(t, types.SideTypeBuy, fills[1].Side)
	assert.True(t, fills[1].Quantity.Equal(d("20")), "got %s", fills[1].Quantity)
}

func TestBrokerSlippageAndCosts(t *testing.T) {
	b := testBroker("0.01", "0.001", "1", "AAA")

	fills, diags := b.Execute(monday, []types.TradeIntent{intent("AAA", types.SideTypeBuy, "1")},
		brokerView("1000"), closeBars("AAA", "100"))
	require.Empty(t, diags)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].FillPrice.Equal(d("101")))
	assert.True(t, fills[0].TransactionCost.Equal(d("0.101")))
	assert.True(t, fills[0].SlippageCost.Equal(d("1")))

	fills, _ = b.Execute(monday, []types.TradeIntent{intent("AAA", types.SideTypeSell, "2")},
		brokerView("0", position("AAA", "2", "100", "100")), closeBars("AAA", "100"))
	require.Len(t, fills, 1)
	assert.True(t, fills[0].FillPrice.Equal(d("99")))
	assert.True(t, fills[0].TransactionCost.Equal(d("0.198")))
	assert.True(t, fills[0].SlippageCost.Equal(d("2")))
}

func TestBrokerBuyCaps(t *testing.T) {
	tests := []struct {
		name     string
		maxPos   string
		costs    string
		cash     string
		held     []*types.Position
		qty      string
		wantQty  string
		wantDiag DiagnosticKind
	}{
		{name: "max position size", maxPos: "0.5", costs: "0", cash: "1000", qty: "10", wantQty: "5"},
		{name: "existing holding counts against the cap", maxPos: "0.5", costs: "0", cash: "700",
			held: []*types.Position{position("AAA", "3", "100", "100")}, qty: "10", wantQty: "2"},
		{name: "cash including costs", maxPos: "1", costs: "0.001", cash: "1000", qty: "10", wantQty: "9"},
		{name: "fractional intent floors", maxPos: "1", costs: "0", cash: "1000", qty: "2.7", wantQty: "2"},
		{name: "cannot afford one unit", maxPos: "1", costs: "0", cash: "50", qty: "1", wantDiag: DiagnosticRejected},
		{name: "cap already reached", maxPos: "0.5", costs: "0", cash: "500",
			held: []*types.Position{position("AAA", "5", "100", "100")}, qty: "1", wantDiag: DiagnosticRejected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := testBroker("0", tc.costs, tc.maxPos, "AAA")
			fills, diags := b.Execute(monday, []types.TradeIntent{intent("AAA", types.SideTypeBuy, tc.qty)},
				brokerView(tc.cash, tc.held...), closeBars("AAA", "100"))

			if tc.wantDiag != "" {
				require.Empty(t, fills)
				require.Len(t, diags, 1)
				assert.Equal(t, tc.wantDiag, diags[0].Kind)
				assert.True(t, errors.Is(diags[0].Err, ErrExecution))
				return
			}
			require.Empty(t, diags)
			require.Len(t, fills, 1)
			assert.True(t, fills[0].Quantity.Equal(d(tc.wantQty)), "got %s", fills[0].Quantity)
		})
	}
}

func TestBrokerMalformedIntents(t *testing.T) {
	b := testBroker("0", "0", "1", "AAA", "BBB")
	intents := []types.TradeIntent{
		intent("AAA", types.SideTypeBuy, "0"),
		intent("AAA", types.SideTypeBuy, "-3"),
		intent("ZZZ", types.SideTypeBuy, "1"),
		intent("BBB", types.SideTypeBuy, "1"), // no bar today
		intent("AAA", "SHORT", "1"),
	}
	fills, diags := b.Execute(monday, intents, brokerView("1000"), closeBars("AAA", "10"))

	assert.Empty(t, fills)
	require.Len(t, diags, len(intents))
	for _, dg := range diags {
		assert.Equal(t, DiagnosticMalformed, dg.Kind)
		var execErr *ExecutionError
		assert.True(t, errors.As(dg.Err, &execErr))
	}
}

func TestBrokerSellsCappedAtHolding(t *testing.T) {
	b := testBroker("0", "0", "1", "AAA", "BBB")
	view := brokerView("0", position("AAA", "3", "10", "10"))

	fills, diags := b.Execute(monday,
		[]types.TradeIntent{intent("AAA", types.SideTypeSell, "10"), intent("BBB", types.SideTypeSell, "1")},
		view, closeBars("AAA", "10", "BBB", "10"))

	require.Len(t, fills, 1)
	assert.True(t, fills[0].Quantity.Equal(d("3")))
	require.Len(t, diags, 1)
	assert.Equal(t, "BBB", diags[0].Symbol)
	assert.Equal(t, DiagnosticRejected, diags[0].Kind)
}

func TestBrokerRiskExits(t *testing.T) {
	b := testBroker("0", "0", "1", "AAA", "BBB")
	b.stopLoss = decimal.NewNullDecimal(d("0.1"))
	b.takeProfit = decimal.NewNullDecimal(d("0.25"))

	view := brokerView("0",
		position("AAA", "10", "100", "100"),
		position("BBB", "4", "100", "100"),
	)
	fills, diags := b.Execute(monday,
		[]types.TradeIntent{intent("AAA", types.SideTypeBuy, "5"), intent("BBB", types.SideTypeSell, "1")},
		view, closeBars("AAA", "85", "BBB", "130"))

	require.Len(t, diags, 2)
	for i, sym := range []string{"AAA", "BBB"} {
		assert.Equal(t, sym, diags[i].Symbol)
		assert.Equal(t, DiagnosticRejected, diags[i].Kind)
		assert.ErrorContains(t, diags[i].Err, "position force-exited")
	}
	require.Len(t, fills, 2)
	assert.Equal(t, "AAA", fills[0].Symbol)
	assert.Equal(t, "stop-loss", fills[0].Reason)
	assert.True(t, fills[0].Quantity.Equal(d("10")))
	assert.Equal(t, "BBB", fills[1].Symbol)
	assert.Equal(t, "take-profit", fills[1].Reason)
	assert.True(t, fills[1].Quantity.Equal(d("4")))
}

func TestBrokerRejectsQuantityBelowOneUnit(t *testing.T) {
	b := testBroker("0", "0", "1", "AAA", "BBB")
	view := brokerView("1000", position("AAA", "4", "100", "100"))

	fills, diags := b.Execute(monday,
		[]types.TradeIntent{intent("BBB", types.SideTypeBuy, "0.5"), intent("AAA", types.SideTypeSell, "0.9")},
		view, closeBars("AAA", "100", "BBB", "50"))

	assert.Empty(t, fills)
	require.Len(t, diags, 2)
	for _, dg := range diags {
		assert.Equal(t, DiagnosticRejected, dg.Kind)
		assert.ErrorContains(t, dg.Err, "quantity below one unit")
	}
}

func TestBrokerRiskExitThresholds(t *testing.T) {
	b := testBroker("0", "0", "1", "AAA")
	b.stopLoss = decimal.NewNullDecimal(d("0.1"))

	_, hit := b.riskExit(*position("AAA", "1", "100", "100"), d("91"))
	assert.False(t, hit)
	reason, hit := b.riskExit(*position("AAA", "1", "100", "100"), d("90"))
	assert.True(t, hit)
	assert.Equal(t, "stop-loss", reason)
	_, hit = b.riskExit(*position("AAA", "1", "100", "100"), d("500"))
	assert.False(t, hit, "take-profit disabled")
}

func TestBrokerAffordable(t *testing.T) {
	b := testBroker("0", "0.001", "1", "AAA")
	assert.True(t, b.affordable(d("1000"), d("100")).Equal(d("9")))
	assert.True(t, b.affordable(d("1001"), d("100")).Equal(d("10")))
	assert.True(t, b.affordable(d("0"), d("100")).IsZero())
}
