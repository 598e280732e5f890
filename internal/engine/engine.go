package engine

import (
	"portfolio-backtester/types"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Engine runs backtests. It holds no per-run state, so one Engine can serve
// many runs, including concurrent ones.
type Engine struct {
	registry        *Registry
	executionConfig ExecutionConfig
	reportingConfig ReportingConfig
	logger          *zap.Logger
	observer        RunObserver
}

// Result is everything a run produced. On a strategy failure Run returns a
// partial Result (snapshots and fills up to the failing day) with a nil Report.
type Result struct {
	Report      *types.BacktestResult
	Snapshots   []types.PortfolioSnapshot
	Fills       []types.FilledTrade
	Realized    []types.RealizedTrade
	Diagnostics []Diagnostic
}

func NewEngine(registry *Registry, executionConfig ExecutionConfig, reportingConfig ReportingConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry:        registry,
		executionConfig: executionConfig,
		reportingConfig: reportingConfig,
		logger:          logger,
	}
}

// WithObserver returns a copy of the engine that reports every run to o.
func (e *Engine) WithObserver(o RunObserver) *Engine {
	cp := *e
	cp.observer = o
	return &cp
}

// Run simulates cfg over [start, end] using the pre-fetched priceSeries.
// benchmark may be nil.
func (e *Engine) Run(
	cfg types.StrategyConfig,
	start, end time.Time,
	priceSeries map[string][]types.PriceBar,
	benchmark []types.PriceBar,
) (result *Result, err error) {
	began := time.Now()
	if e.observer != nil {
		defer func() {
			fills := 0
			if result != nil {
				fills = len(result.Fills)
			}
			e.observer.ObserveRun(cfg.StrategyType, time.Since(began), fills, err)
		}()
	}

	start, end = types.TradingDay(start), types.TradingDay(end)
	if end.Before(start) {
		return nil, &ConfigurationError{Field: "date_range", Reason: "end before start"}
	}
	if err := e.executionConfig.validate(); err != nil {
		return nil, err
	}
	if err := validateStrategyConfig(cfg); err != nil {
		return nil, err
	}
	strat, err := e.registry.Build(cfg)
	if err != nil {
		return nil, err
	}

	feeds := make([]*dataFeed, 0, len(cfg.Universe))
	for _, sym := range cfg.Universe {
		bars := priceSeries[sym]
		if err := validateSeries(sym, bars, start, end); err != nil {
			return nil, err
		}
		feeds = append(feeds, newDataFeed(sym, bars, end))
	}
	if len(benchmark) > 0 {
		if err := validateBars("benchmark", benchmark); err != nil {
			return nil, err
		}
	}

	calendar := buildCalendar(feeds, start, end)
	if len(calendar) == 0 {
		return nil, &DataInsufficientError{Symbol: strings.Join(cfg.Universe, ","), Reason: "no common trading days in range"}
	}

	e.logger.Info("backtest started",
		zap.String("strategy", string(cfg.StrategyType)),
		zap.Strings("universe", cfg.Universe),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("trading_days", len(calendar)),
	)

	ledger := newPortfolio(cfg.InitialCapital)
	bt := newBacktester(strat, newBroker(e.executionConfig, cfg), ledger, feeds, calendar, e.executionConfig.ShowProgress, e.logger)
	runErr := bt.run()

	result = &Result{
		Snapshots:   ledger.snapshots,
		Fills:       ledger.fills,
		Realized:    ledger.realized,
		Diagnostics: bt.diagnostics,
	}
	if runErr != nil {
		e.logger.Error("backtest aborted",
			zap.String("strategy", string(cfg.StrategyType)),
			zap.Int("completed_days", len(ledger.snapshots)),
			zap.Error(runErr),
		)
		return result, runErr
	}

	report := analyze(analysisInput{
		strategyType:     cfg.StrategyType,
		initialCapital:   cfg.InitialCapital,
		snapshots:        ledger.snapshots,
		fills:            ledger.fills,
		realized:         ledger.realized,
		benchmark:        benchmark,
		riskFreeRate:     e.reportingConfig.RiskFreeRate,
		transactionCosts: ledger.transactionCosts,
		slippageCosts:    ledger.slippageCosts,
	})
	result.Report = &report

	e.logger.Info("backtest finished",
		zap.String("strategy", string(cfg.StrategyType)),
		zap.Int("fills", len(ledger.fills)),
		zap.Int("dropped_intents", len(bt.diagnostics)),
		zap.String("final_value", report.FinalPortfolioValue.String()),
		zap.String("total_return", report.TotalReturn.StringFixed(4)),
	)
	return result, nil
}
