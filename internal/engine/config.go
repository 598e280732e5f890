package engine

import (
	"portfolio-backtester/types"

	"github.com/shopspring/decimal"
)

// ExecutionConfig parameterizes the broker's fill model.
type ExecutionConfig struct {
	Slippage         decimal.Decimal // fraction of the close, e.g. 0.0005
	TransactionCosts decimal.Decimal // fraction of notional
	ShowProgress     bool
}

func NewExecutionConfig(slippage, transactionCosts decimal.Decimal, showProgress bool) ExecutionConfig {
	return ExecutionConfig{
		Slippage:         slippage,
		TransactionCosts: transactionCosts,
		ShowProgress:     showProgress,
	}
}

type ReportingConfig struct {
	RiskFreeRate decimal.Decimal // annual
}

func NewReportingConfig(riskFreeRate decimal.Decimal) ReportingConfig {
	return ReportingConfig{RiskFreeRate: riskFreeRate}
}

func (c ExecutionConfig) validate() error {
	if c.Slippage.IsNegative() || c.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &ConfigurationError{Field: "slippage", Reason: "must be in [0, 1)"}
	}
	if c.TransactionCosts.IsNegative() || c.TransactionCosts.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &ConfigurationError{Field: "transaction_costs", Reason: "must be in [0, 1)"}
	}
	return nil
}

func validateStrategyConfig(cfg types.StrategyConfig) error {
	if cfg.StrategyType == "" {
		return &ConfigurationError{Field: "strategy_type", Reason: "missing"}
	}
	if len(cfg.Universe) == 0 {
		return &ConfigurationError{Field: "universe", Reason: "empty asset universe"}
	}
	seen := make(map[string]struct{}, len(cfg.Universe))
	for _, s := range cfg.Universe {
		if s == "" {
			return &ConfigurationError{Field: "universe", Reason: "empty symbol"}
		}
		if _, dup := seen[s]; dup {
			return &ConfigurationError{Field: "universe", Reason: "duplicate symbol " + s}
		}
		seen[s] = struct{}{}
	}
	if !cfg.InitialCapital.IsPositive() {
		return &ConfigurationError{Field: "initial_capital", Reason: "must be positive"}
	}
	if !cfg.MaxPositionSize.IsPositive() || cfg.MaxPositionSize.GreaterThan(decimal.NewFromInt(1)) {
		return &ConfigurationError{Field: "max_position_size", Reason: "must be in (0, 1]"}
	}
	if cfg.StopLossPercentage.Valid && !cfg.StopLossPercentage.Decimal.IsPositive() {
		return &ConfigurationError{Field: "stop_loss_percentage", Reason: "must be positive"}
	}
	if cfg.TakeProfitPercentage.Valid && !cfg.TakeProfitPercentage.Decimal.IsPositive() {
		return &ConfigurationError{Field: "take_profit_percentage", Reason: "must be positive"}
	}
	return nil
}
