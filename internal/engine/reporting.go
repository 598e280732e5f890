package engine

import (
	"fmt"
	"io"
	"math"
	"portfolio-backtester/types"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const tradingDaysPerYear = 252

type analysisInput struct {
	strategyType     types.StrategyType
	initialCapital   decimal.Decimal
	snapshots        []types.PortfolioSnapshot
	fills            []types.FilledTrade
	realized         []types.RealizedTrade
	benchmark        []types.PriceBar
	riskFreeRate     decimal.Decimal
	transactionCosts decimal.Decimal
	slippageCosts    decimal.Decimal
}

// analyze derives the performance report from a finished run. Every metric is
// a pure function of the input, so computing them concurrently keeps the
// result deterministic.
func analyze(in analysisInput) types.BacktestResult {
	report := types.BacktestResult{
		StrategyType:          in.strategyType,
		TradingDays:           len(in.snapshots),
		TotalTrades:           len(in.fills),
		TotalTransactionCosts: in.transactionCosts,
		TotalSlippageCosts:    in.slippageCosts,
		FinalPortfolioValue:   in.initialCapital,
	}
	if len(in.snapshots) == 0 {
		return report
	}
	first, last := in.snapshots[0], in.snapshots[len(in.snapshots)-1]
	report.StartDate = first.Date
	report.EndDate = last.Date
	report.FinalPortfolioValue = last.TotalValue
	report.NetProfit = last.TotalValue.Sub(in.initialCapital)
	report.TotalReturn = calcTotalReturn(last.TotalValue, in.initialCapital)

	returns := dailyReturns(in.snapshots)
	days := int(last.Date.Sub(first.Date).Hours()/24) + 1

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		defer wg.Done()
		report.AnnualizedReturn = calcAnnualizedReturn(report.TotalReturn, days)
		report.MaxDrawdown, report.MaxDrawdownDuration = calcDrawdownMetrics(in.snapshots)
		report.CalmarRatio = calcCalmarRatio(report.AnnualizedReturn, report.MaxDrawdown)
	}()
	go func() {
		defer wg.Done()
		vol := calcVolatility(returns)
		report.Volatility = toDecimal(vol)
		report.SharpeRatio = calcSharpeRatio(returns, vol, in.riskFreeRate)
	}()
	go func() {
		defer wg.Done()
		report.SortinoRatio = calcSortinoRatio(returns, in.riskFreeRate)
	}()
	go func() {
		defer wg.Done()
		report.VaR95 = calcVaR95(returns, last.TotalValue)
	}()
	go func() {
		defer wg.Done()
		report.WinRate, report.AverageWin, report.AverageLoss, report.ProfitFactor = calcTradeStats(in.realized)
		report.MaxConsecutiveLosses = calcMaxConsecutiveLosses(in.realized)
	}()
	go func() {
		defer wg.Done()
		report.BenchmarkReturn, report.Alpha, report.Beta = calcBenchmarkMetrics(in.snapshots, in.benchmark)
	}()
	wg.Wait()

	return report
}

// dailyReturns returns the snapshot returns without the first day, whose
// return is zero by definition.
func dailyReturns(snapshots []types.PortfolioSnapshot) []float64 {
	if len(snapshots) < 2 {
		return nil
	}
	out := make([]float64, 0, len(snapshots)-1)
	for _, s := range snapshots[1:] {
		out = append(out, s.DailyReturn.InexactFloat64())
	}
	return out
}

func calcTotalReturn(finalValue, initialCapital decimal.Decimal) decimal.Decimal {
	if !initialCapital.IsPositive() {
		return decimal.Zero
	}
	return finalValue.Div(initialCapital).Sub(decimal.NewFromInt(1))
}

// calcAnnualizedReturn compounds totalReturn over days calendar days to a 365-day year.
func calcAnnualizedReturn(totalReturn decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	growth := 1 + totalReturn.InexactFloat64()
	if growth <= 0 {
		return decimal.NewFromInt(-1)
	}
	return toDecimal(math.Pow(growth, 365.0/float64(days)) - 1)
}

func calcVolatility(returns []float64) float64 {
	return sampleStdDev(returns) * math.Sqrt(tradingDaysPerYear)
}

func calcSharpeRatio(returns []float64, volatility float64, annualRiskFree decimal.Decimal) decimal.NullDecimal {
	if len(returns) < 2 || volatility == 0 {
		return decimal.NullDecimal{}
	}
	excess := mean(returns)*tradingDaysPerYear - annualRiskFree.InexactFloat64()
	return toNullDecimal(excess / volatility)
}

// calcSortinoRatio uses the sample standard deviation of the negative daily
// returns as the risk term.
func calcSortinoRatio(returns []float64, annualRiskFree decimal.Decimal) decimal.NullDecimal {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	dd := sampleStdDev(downside) * math.Sqrt(tradingDaysPerYear)
	if dd == 0 {
		return decimal.NullDecimal{}
	}
	excess := mean(returns)*tradingDaysPerYear - annualRiskFree.InexactFloat64()
	return toNullDecimal(excess / dd)
}

// calcDrawdownMetrics returns the deepest value/peak - 1 (<= 0) and the time
// from that drawdown's peak to its trough.
func calcDrawdownMetrics(snapshots []types.PortfolioSnapshot) (decimal.Decimal, time.Duration) {
	if len(snapshots) == 0 {
		return decimal.Zero, 0
	}

	peak := snapshots[0].TotalValue
	peakTime := snapshots[0].Date
	maxDD := decimal.Zero
	var maxDDDuration time.Duration

	for _, snap := range snapshots {
		if snap.TotalValue.GreaterThan(peak) {
			peak = snap.TotalValue
			peakTime = snap.Date
		}
		if !peak.IsPositive() {
			continue
		}
		dd := snap.TotalValue.Div(peak).Sub(decimal.NewFromInt(1))
		if dd.LessThan(maxDD) {
			maxDD = dd
			maxDDDuration = snap.Date.Sub(peakTime)
		}
	}
	return maxDD, maxDDDuration
}

func calcCalmarRatio(annualized, maxDrawdown decimal.Decimal) decimal.NullDecimal {
	if maxDrawdown.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(annualized.Div(maxDrawdown.Abs()))
}

// calcVaR95 is the 5th percentile daily return scaled to portfolioValue.
// A loss is reported as a negative amount.
func calcVaR95(returns []float64, portfolioValue decimal.Decimal) decimal.Decimal {
	if len(returns) == 0 {
		return decimal.Zero
	}
	return toDecimal(percentile(returns, 5)).Mul(portfolioValue)
}

// calcTradeStats summarizes realized sells. AverageLoss is reported as an absolute amount.
func calcTradeStats(realized []types.RealizedTrade) (winRate, avgWin, avgLoss decimal.Decimal, profitFactor decimal.NullDecimal) {
	if len(realized) == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.NullDecimal{}
	}

	sumWins, sumLosses := decimal.Zero, decimal.Zero
	wins, losses := 0, 0
	for _, tr := range realized {
		switch {
		case tr.PnL.IsPositive():
			sumWins = sumWins.Add(tr.PnL)
			wins++
		case tr.PnL.IsNegative():
			sumLosses = sumLosses.Add(tr.PnL.Abs())
			losses++
		}
	}

	winRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(realized))))
	avgWin, avgLoss = decimal.Zero, decimal.Zero
	if wins > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(losses)))
		profitFactor = decimal.NewNullDecimal(sumWins.Div(sumLosses))
	}
	return winRate, avgWin, avgLoss, profitFactor
}

func calcMaxConsecutiveLosses(realized []types.RealizedTrade) int {
	maxLossStreak := 0
	currentStreak := 0
	for _, tr := range realized {
		if tr.PnL.IsNegative() {
			currentStreak++
			if currentStreak > maxLossStreak {
				maxLossStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxLossStreak
}

// calcBenchmarkMetrics aligns the benchmark on the snapshot dates. Beta and
// alpha come from regressing portfolio daily returns on benchmark daily
// returns; alpha is the intercept annualized over 252 days.
func calcBenchmarkMetrics(snapshots []types.PortfolioSnapshot, benchmark []types.PriceBar) (benchReturn, alpha, beta decimal.NullDecimal) {
	if len(benchmark) == 0 || len(snapshots) == 0 {
		return
	}
	closes := make(map[time.Time]decimal.Decimal, len(benchmark))
	for _, b := range benchmark {
		closes[types.TradingDay(b.Date)] = b.Close
	}

	var firstClose, lastClose decimal.Decimal
	var portfolio, bench []float64
	aligned := 0
	havePrev := false
	var prevClose decimal.Decimal
	for i, snap := range snapshots {
		c, ok := closes[types.TradingDay(snap.Date)]
		if !ok {
			havePrev = false
			continue
		}
		aligned++
		if firstClose.IsZero() {
			firstClose = c
		}
		lastClose = c
		if havePrev && i > 0 && prevClose.IsPositive() {
			portfolio = append(portfolio, snap.DailyReturn.InexactFloat64())
			bench = append(bench, c.Div(prevClose).Sub(decimal.NewFromInt(1)).InexactFloat64())
		}
		prevClose = c
		havePrev = true
	}
	if aligned < 2 || !firstClose.IsPositive() {
		return
	}
	benchReturn = decimal.NewNullDecimal(lastClose.Div(firstClose).Sub(decimal.NewFromInt(1)))

	if len(bench) < 2 {
		return
	}
	mp, mb := mean(portfolio), mean(bench)
	var cov, varB float64
	for i := range bench {
		cov += (portfolio[i] - mp) * (bench[i] - mb)
		varB += (bench[i] - mb) * (bench[i] - mb)
	}
	if varB == 0 {
		return
	}
	b := cov / varB
	beta = toNullDecimal(b)
	alpha = toNullDecimal((mp - b*mb) * tradingDaysPerYear)
	return
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var varianceSum float64
	for _, x := range xs {
		diff := x - m
		varianceSum += diff * diff
	}
	return math.Sqrt(varianceSum / float64(len(xs)-1))
}

// percentile uses linear interpolation between closest ranks.
func percentile(xs []float64, p float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func toDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func toNullDecimal(f float64) decimal.NullDecimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}

// PrintReport writes a human readable summary of report to w.
func PrintReport(w io.Writer, report types.BacktestResult) {
	fmt.Fprintln(w, "===== Backtest Report =====")
	fmt.Fprintf(w, "Strategy:              %s\n", report.StrategyType)
	fmt.Fprintf(w, "Period:                %s .. %s (%d trading days)\n",
		report.StartDate.Format(time.DateOnly), report.EndDate.Format(time.DateOnly), report.TradingDays)
	fmt.Fprintf(w, "Total Trades:          %d\n", report.TotalTrades)

	fmt.Fprintln(w, "\n-- Absolute Performance --")
	fmt.Fprintf(w, "Final Value:           %s\n", report.FinalPortfolioValue.StringFixed(2))
	fmt.Fprintf(w, "Net Profit:            %s\n", report.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "Total Return:          %s\n", pct(report.TotalReturn))
	fmt.Fprintf(w, "Annualized Return:     %s\n", pct(report.AnnualizedReturn))

	fmt.Fprintln(w, "\n-- Risk --")
	fmt.Fprintf(w, "Volatility:            %s\n", pct(report.Volatility))
	fmt.Fprintf(w, "Max Drawdown:          %s\n", pct(report.MaxDrawdown))
	fmt.Fprintf(w, "Max Drawdown Days:     %d\n", report.MaxDrawdownDuration/(24*time.Hour))
	fmt.Fprintf(w, "VaR 95%%:               %s\n", report.VaR95.StringFixed(2))

	fmt.Fprintln(w, "\n-- Risk-Adjusted Metrics --")
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", ratio(report.SharpeRatio))
	fmt.Fprintf(w, "Sortino Ratio:         %s\n", ratio(report.SortinoRatio))
	fmt.Fprintf(w, "Calmar Ratio:          %s\n", ratio(report.CalmarRatio))

	fmt.Fprintln(w, "\n-- Benchmark --")
	fmt.Fprintf(w, "Benchmark Return:      %s\n", ratio(report.BenchmarkReturn))
	fmt.Fprintf(w, "Alpha:                 %s\n", ratio(report.Alpha))
	fmt.Fprintf(w, "Beta:                  %s\n", ratio(report.Beta))

	fmt.Fprintln(w, "\n-- Trade-Level Metrics --")
	fmt.Fprintf(w, "Win Rate:              %s\n", pct(report.WinRate))
	fmt.Fprintf(w, "Avg Win:               %s\n", report.AverageWin.StringFixed(2))
	fmt.Fprintf(w, "Avg Loss:              %s\n", report.AverageLoss.StringFixed(2))
	fmt.Fprintf(w, "Profit Factor:         %s\n", ratio(report.ProfitFactor))
	fmt.Fprintf(w, "Max Consecutive Losses:%d\n", report.MaxConsecutiveLosses)

	fmt.Fprintln(w, "\n-- Costs --")
	fmt.Fprintf(w, "Transaction Costs:     %s\n", report.TotalTransactionCosts.StringFixed(2))
	fmt.Fprintf(w, "Slippage Costs:        %s\n", report.TotalSlippageCosts.StringFixed(2))
	fmt.Fprintln(w, "===========================")
}

func pct(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func ratio(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	return d.Decimal.StringFixed(3)
}
