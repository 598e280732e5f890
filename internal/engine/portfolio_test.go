package engine

import (
	"errors"
	"portfolio-backtester/types"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPortfolioApply(t *testing.T) {
	tests := []struct {
		name          string
		cash          string
		positions     map[string]*types.Position
		fills         []types.FilledTrade
		wantCash      string
		wantPositions map[string]*types.Position
		wantRealized  []string
		wantErr       error
	}{
		{
			name:      "open long",
			cash:      "10000",
			positions: map[string]*types.Position{},
			fills:     []types.FilledTrade{fill("AAPL", types.SideTypeBuy, "10", "100", "1")},
			wantCash:  "8999",
			wantPositions: map[string]*types.Position{
				"AAPL": position("AAPL", "10", "100", "100"),
			},
		},
		{
			name: "scale-in long (avg cost updates)",
			cash: "10000",
			positions: map[string]*types.Position{
				"AAPL": position("AAPL", "10", "100", "100"),
			},
			fills:    []types.FilledTrade{fill("AAPL", types.SideTypeBuy, "5", "110", "0")},
			wantCash: "9450",
			wantPositions: map[string]*types.Position{
				"AAPL": position("AAPL", "15", "103.3333333333333333", "110"),
			},
		},
		{
			name: "partial sell books realized pnl net of cost",
			cash: "0",
			positions: map[string]*types.Position{
				"AAPL": position("AAPL", "10", "100", "100"),
			},
			fills:    []types.FilledTrade{fill("AAPL", types.SideTypeSell, "4", "120", "1")},
			wantCash: "479",
			wantPositions: map[string]*types.Position{
				"AAPL": position("AAPL", "6", "100", "120"),
			},
			wantRealized: []string{"79"},
		},
		{
			name: "full close removes the position",
			cash: "0",
			positions: map[string]*types.Position{
				"AAPL": position("AAPL", "10", "100", "100"),
			},
			fills:         []types.FilledTrade{fill("AAPL", types.SideTypeSell, "10", "90", "0")},
			wantCash:      "900",
			wantPositions: map[string]*types.Position{},
			wantRealized:  []string{"-100"},
		},
		{
			name: "sell more than held",
			cash: "0",
			positions: map[string]*types.Position{
				"AAPL": position("AAPL", "10", "100", "100"),
			},
			fills:   []types.FilledTrade{fill("AAPL", types.SideTypeSell, "11", "100", "0")},
			wantErr: ShortSellNotAllowedErr,
		},
		{
			name:      "sell without position",
			cash:      "1000",
			positions: map[string]*types.Position{},
			fills:     []types.FilledTrade{fill("AAPL", types.SideTypeSell, "1", "100", "0")},
			wantErr:   ShortSellNotAllowedErr,
		},
		{
			name:      "buy beyond cash",
			cash:      "100",
			positions: map[string]*types.Position{},
			fills:     []types.FilledTrade{fill("AAPL", types.SideTypeBuy, "1", "100", "0.01")},
			wantErr:   InsufficientBalanceErr,
		},
		{
			name:      "unknown side",
			cash:      "100",
			positions: map[string]*types.Position{},
			fills:     []types.FilledTrade{fill("AAPL", "HOLD", "1", "10", "0")},
			wantErr:   UnknownSideErr,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPortfolio(d(tc.cash))
			p.positions = tc.positions

			var err error
			for _, f := range tc.fills {
				if err = p.apply(f); err != nil {
					break
				}
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !p.cash.Equal(d(tc.wantCash)) {
				t.Errorf("cash: got %s, want %s", p.cash, tc.wantCash)
			}
			if len(p.positions) != len(tc.wantPositions) {
				t.Fatalf("positions: got %d, want %d", len(p.positions), len(tc.wantPositions))
			}
			for sym, want := range tc.wantPositions {
				got, ok := p.positions[sym]
				if !ok {
					t.Fatalf("missing position %s", sym)
				}
				if !got.Quantity.Equal(want.Quantity) || !got.AverageCost.Equal(want.AverageCost) || !got.LastPrice.Equal(want.LastPrice) {
					t.Errorf("position %s: got %+v, want %+v", sym, *got, *want)
				}
			}
			if len(p.realized) != len(tc.wantRealized) {
				t.Fatalf("realized: got %d, want %d", len(p.realized), len(tc.wantRealized))
			}
			for i, want := range tc.wantRealized {
				if !p.realized[i].PnL.Equal(d(want)) {
					t.Errorf("realized[%d]: got %s, want %s", i, p.realized[i].PnL, want)
				}
			}
			if len(p.fills) != len(tc.fills) {
				t.Errorf("fills: got %d, want %d", len(p.fills), len(tc.fills))
			}
		})
	}
}

func TestPortfolioMarkToMarket(t *testing.T) {
	dates := weekdays(monday, 3)
	p := newPortfolio(d("1000"))
	if err := p.apply(fill("AAA", types.SideTypeBuy, "5", "100", "0")); err != nil {
		t.Fatal(err)
	}

	first, err := p.markToMarket(dates[0], map[string]decimal.Decimal{"AAA": d("100")})
	if err != nil {
		t.Fatal(err)
	}
	if !first.TotalValue.Equal(d("1000")) || !first.DailyReturn.IsZero() {
		t.Errorf("first snapshot: total %s return %s", first.TotalValue, first.DailyReturn)
	}

	second, err := p.markToMarket(dates[1], map[string]decimal.Decimal{"AAA": d("120")})
	if err != nil {
		t.Fatal(err)
	}
	if !second.TotalValue.Equal(d("1100")) {
		t.Errorf("second total: got %s, want 1100", second.TotalValue)
	}
	if !second.DailyReturn.Equal(d("0.1")) {
		t.Errorf("second return: got %s, want 0.1", second.DailyReturn)
	}
	if !second.Positions["AAA"].LastPrice.Equal(d("120")) {
		t.Errorf("last price not marked: %s", second.Positions["AAA"].LastPrice)
	}

	// the snapshot is a copy; later marks do not change it
	if _, err := p.markToMarket(dates[2], map[string]decimal.Decimal{"AAA": d("130")}); err != nil {
		t.Fatal(err)
	}
	if !p.snapshots[1].Positions["AAA"].LastPrice.Equal(d("120")) {
		t.Errorf("snapshot mutated: %s", p.snapshots[1].Positions["AAA"].LastPrice)
	}

	if _, err := p.markToMarket(dates[2], map[string]decimal.Decimal{}); !errors.Is(err, MissingCloseErr) {
		t.Errorf("expected MissingCloseErr, got %v", err)
	}
}

func TestPortfolioViewValuesAtCloses(t *testing.T) {
	p := newPortfolio(d("100"))
	p.positions["AAA"] = position("AAA", "2", "50", "50")

	v := p.view(monday, 3, map[string]decimal.Decimal{"AAA": d("60")})
	if v.Day != 3 || !v.Cash.Equal(d("100")) || !v.TotalValue.Equal(d("220")) {
		t.Errorf("view: day %d cash %s total %s", v.Day, v.Cash, v.TotalValue)
	}
	if !v.Held("AAA").Equal(d("2")) || !v.Held("BBB").IsZero() {
		t.Errorf("held: AAA %s BBB %s", v.Held("AAA"), v.Held("BBB"))
	}

	// the view does not alias the ledger
	pos := v.Positions["AAA"]
	pos.Quantity = d("99")
	if !p.positions["AAA"].Quantity.Equal(d("2")) {
		t.Errorf("view aliased ledger position")
	}
}

func TestWeightedAvg(t *testing.T) {
	got := weightedAvg(d("0"), d("0"), d("10"), d("3"))
	if !got.Equal(d("10")) {
		t.Errorf("from flat: got %s", got)
	}
	got = weightedAvg(d("10"), d("2"), d("16"), d("1"))
	if !got.Equal(d("12")) {
		t.Errorf("scale in: got %s", got)
	}
}
