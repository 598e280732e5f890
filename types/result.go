package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestResult is derived entirely from the snapshot series and the trade log.
// Ratios that are undefined for a run (zero volatility, no drawdown, no
// benchmark) are reported as invalid NullDecimals.
type BacktestResult struct {
	StrategyType StrategyType `json:"strategyType"`
	StartDate    time.Time    `json:"startDate"`
	EndDate      time.Time    `json:"endDate"`
	TradingDays  int          `json:"tradingDays"`

	TotalReturn      decimal.Decimal     `json:"totalReturn"`
	AnnualizedReturn decimal.Decimal     `json:"annualizedReturn"`
	Volatility       decimal.Decimal     `json:"volatility"`
	SharpeRatio      decimal.NullDecimal `json:"sharpeRatio"`
	SortinoRatio     decimal.NullDecimal `json:"sortinoRatio"`
	CalmarRatio      decimal.NullDecimal `json:"calmarRatio"`

	MaxDrawdown         decimal.Decimal `json:"maxDrawdown"`
	MaxDrawdownDuration time.Duration   `json:"maxDrawdownDuration"`
	VaR95               decimal.Decimal `json:"var95"`

	BenchmarkReturn decimal.NullDecimal `json:"benchmarkReturn"`
	Alpha           decimal.NullDecimal `json:"alpha"`
	Beta            decimal.NullDecimal `json:"beta"`

	TotalTrades          int                 `json:"totalTrades"`
	WinRate              decimal.Decimal     `json:"winRate"`
	AverageWin           decimal.Decimal     `json:"averageWin"`
	AverageLoss          decimal.Decimal     `json:"averageLoss"`
	ProfitFactor         decimal.NullDecimal `json:"profitFactor"`
	MaxConsecutiveLosses int                 `json:"maxConsecutiveLosses"`

	NetProfit             decimal.Decimal `json:"netProfit"`
	FinalPortfolioValue   decimal.Decimal `json:"finalPortfolioValue"`
	TotalTransactionCosts decimal.Decimal `json:"totalTransactionCosts"`
	TotalSlippageCosts    decimal.Decimal `json:"totalSlippageCosts"`
}
